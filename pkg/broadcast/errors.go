package broadcast

import "errors"

var (
	// ErrInvalidSubscriber is returned when the user identity is empty.
	ErrInvalidSubscriber = errors.New("invalid subscriber identity")
	// ErrCapacityExceeded is returned by Subscribe under the RejectNew policy
	// when the user already holds the maximum number of subscriptions.
	ErrCapacityExceeded = errors.New("subscriber capacity exceeded")
	// ErrBrokerClosed is returned by Subscribe after Close.
	ErrBrokerClosed = errors.New("broker is closed")
	// ErrReceiveTimeout is returned by Queue.Receive when no item arrived in time.
	ErrReceiveTimeout = errors.New("receive timed out")
	// ErrInvalidPolicy is returned when parsing an unknown admission policy name.
	ErrInvalidPolicy = errors.New("invalid admission policy")
)
