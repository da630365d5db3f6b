package response

// Response represents a standard API response format
type Response struct {
	Status     string `json:"status"`      // "success", "partial" or "error"
	StatusCode int    `json:"status_code"` // HTTP status code
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data any) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Partial reports an operation that stopped early but still produced data,
// e.g. a billing run aborted after some invoices were committed.
func Partial(statusCode int, data any, err string) Response {
	return Response{
		Status:     "partial",
		StatusCode: statusCode,
		Data:       data,
		Error:      err,
	}
}
