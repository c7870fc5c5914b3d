package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrJobClaimed = errors.New("job already claimed")
	ErrLockHeld   = errors.New("worker run lock held by another invocation")
	ErrInvalidJob = errors.New("invalid job")
)
