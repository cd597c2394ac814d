package resterr

// Code is the closed error taxonomy surfaced to callers of the portal client.
type Code string

const (
	CodeSessionExpired     Code = "SESSION_EXPIRED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeUnsupportedFeature Code = "UNSUPPORTED_FEATURE"
	CodeUnknown            Code = "UNKNOWN"
)

// RestError is the only error type that crosses a public component boundary.
// Recoverable signals that the caller can retry after user action (for
// example re-authenticating for SESSION_EXPIRED).
type RestError struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	HTTPStatus  int    `json:"httpStatus,omitempty"`
	Details     any    `json:"details,omitempty"`
}

func (e *RestError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds a RestError with the given classification.
func New(code Code, message string, recoverable bool) *RestError {
	return &RestError{Code: code, Message: message, Recoverable: recoverable}
}

// WithStatus attaches an HTTP-equivalent status code.
func (e *RestError) WithStatus(status int) *RestError {
	e.HTTPStatus = status
	return e
}

// WithDetails attaches opaque diagnostic details.
func (e *RestError) WithDetails(details any) *RestError {
	e.Details = details
	return e
}
