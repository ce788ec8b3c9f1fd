package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when a job is not registered
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidExpression is returned for a cron expression that does not parse
	ErrInvalidExpression = errors.New("invalid cron expression")
)
