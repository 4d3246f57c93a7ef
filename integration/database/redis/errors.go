package redis

import "errors"

var (
	ErrEmptyURL          = errors.New("redis: connection URL is empty")
	ErrInvalidURL        = errors.New("redis: invalid connection URL")
	ErrNotReady          = errors.New("redis: no successful ping within the retry budget")
	ErrHealthcheckFailed = errors.New("redis: healthcheck failed")
)
