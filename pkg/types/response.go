package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the body of every failed request. Retryable tells the
// client the same request may succeed later; otherwise the input must
// change first.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
