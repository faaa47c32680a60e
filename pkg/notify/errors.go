package notify

import "errors"

var (
	// ErrMarshalPayload indicates the notification payload could not be
	// encoded to JSON.
	ErrMarshalPayload = errors.New("failed to marshal notification payload")

	// ErrDeliveryFailed indicates every delivery attempt failed.
	ErrDeliveryFailed = errors.New("notification delivery failed")
)
