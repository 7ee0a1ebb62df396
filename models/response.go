package models

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges admin mutations.
type SuccessResponse struct {
	Success bool `json:"success"`
}

func NewError(err string) ErrorResponse {
	return ErrorResponse{Error: err}
}

func OK() SuccessResponse {
	return SuccessResponse{Success: true}
}
