package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindNetworkUnreachable indicates a collaborator could not be reached.
	KindNetworkUnreachable Kind = "NETWORK_UNREACHABLE"

	// KindAuthRejected indicates the auth service refused the credentials.
	KindAuthRejected Kind = "AUTH_REJECTED"

	// KindMalformedPayload indicates scanned text is not a record.
	KindMalformedPayload Kind = "MALFORMED_PAYLOAD"

	// KindExpired indicates a record is past its expiry.
	KindExpired Kind = "EXPIRED"

	// KindPayloadTooLarge indicates an encoding exceeds the optical capacity.
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"

	// KindPermissionDenied indicates camera or geolocation access was refused.
	KindPermissionDenied Kind = "PERMISSION_DENIED"

	// KindNotFound indicates the requested device (camera) does not exist.
	KindNotFound Kind = "NOT_FOUND"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	KindNetworkUnreachable,
	KindAuthRejected,
	KindMalformedPayload,
	KindExpired,
	KindPayloadTooLarge,
	KindPermissionDenied,
	KindNotFound,
}

// Error is a classified failure.
type Error struct {
	// Kind selects the recovery policy.
	Kind Kind

	// Op names the operation that failed, e.g. "decode" or "auth.login".
	Op string

	// Message is a human-readable description.
	Message string

	// Details holds extra diagnostic context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// WithDetail returns e with key=value added to Details.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNetworkUnreachable reports whether err is a NetworkUnreachable failure.
func IsNetworkUnreachable(err error) bool { return Is(err, KindNetworkUnreachable) }

// IsAuthRejected reports whether err is an AuthRejected failure.
func IsAuthRejected(err error) bool { return Is(err, KindAuthRejected) }

// IsMalformedPayload reports whether err is a MalformedPayload failure.
func IsMalformedPayload(err error) bool { return Is(err, KindMalformedPayload) }

// IsExpired reports whether err is an Expired failure.
func IsExpired(err error) bool { return Is(err, KindExpired) }

// IsPayloadTooLarge reports whether err is a PayloadTooLarge failure.
func IsPayloadTooLarge(err error) bool { return Is(err, KindPayloadTooLarge) }

// IsPermissionDenied reports whether err is a PermissionDenied failure.
func IsPermissionDenied(err error) bool { return Is(err, KindPermissionDenied) }

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }
