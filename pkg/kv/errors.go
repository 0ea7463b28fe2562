package kv

import "errors"

var (
	ErrNotFound       = errors.New("kv: key not found")
	ErrEmptyBucket    = errors.New("kv: bucket name is empty")
	ErrEmptyKey       = errors.New("kv: key is empty")
	ErrFailedToOpen   = errors.New("kv: failed to open store")
	ErrFailedToFlush  = errors.New("kv: failed to flush store")
	ErrHealthcheck    = errors.New("kv: healthcheck failed")
	ErrInvalidPayload = errors.New("kv: invalid payload")
)
