package inventory

import "errors"

var (
	// ErrClusterNotFound is returned when a cluster is not in the last known list
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrPrechecksBlocked is returned when prechecks report blocking issues
	ErrPrechecksBlocked = errors.New("prechecks do not allow proceeding")
)
