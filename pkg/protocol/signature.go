package protocol

// RequestType names a request method together with its parameter and result
// types. The method name is the wire identifier.
type RequestType[P, R any] struct {
	Method string
}

// NotificationType names a targeted fire-and-forget method with parameter type P
type NotificationType[P any] struct {
	Method string
}

// BroadcastType names a room-wide fire-and-forget method with parameter type P
type BroadcastType[P any] struct {
	Method string
}

// NewRequestType declares a request signature
func NewRequestType[P, R any](method string) RequestType[P, R] {
	return RequestType[P, R]{Method: method}
}

// NewNotificationType declares a notification signature
func NewNotificationType[P any](method string) NotificationType[P] {
	return NotificationType[P]{Method: method}
}

// NewBroadcastType declares a broadcast signature
func NewBroadcastType[P any](method string) BroadcastType[P] {
	return BroadcastType[P]{Method: method}
}

// Empty is the parameter or result type of methods that carry nothing
type Empty struct{}
