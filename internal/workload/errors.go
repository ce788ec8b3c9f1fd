package workload

import "errors"

var (
	// ErrUnnamed is returned for a definition without a name
	ErrUnnamed = errors.New("workload has no name")

	// ErrEmptyFile is returned when a definition file holds no workloads
	ErrEmptyFile = errors.New("no workloads in file")
)
