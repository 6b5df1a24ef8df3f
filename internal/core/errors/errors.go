package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidParams     = "invalid_params"
	HttpRunInFlightError  = "run_in_flight"
	HttpRunNotFoundError  = "run_not_found"
	HttpInvalidQueryError = "invalid_query"
)

// ErrorResponse is the error response body for ops API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
