package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrValidation       = fmt.Errorf("invalid command")
	ErrPersistence      = fmt.Errorf("durable store failure")
	ErrStaleHandle      = fmt.Errorf("stale connection handle")
	ErrIdentityMismatch = fmt.Errorf("identity does not match connection")
	ErrNotJoined        = fmt.Errorf("connection has not joined")
	ErrAlreadyJoined    = fmt.Errorf("connection already joined")
	ErrNotFound         = fmt.Errorf("record not found")
)
