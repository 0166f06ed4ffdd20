package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstream        = errors.New("upstream error")
	ErrLockHeld        = errors.New("lock already held")
	ErrConditionFailed = errors.New("conditional write failed")
)
