package types

// APIResponse is the envelope returned by the integration and proxy endpoints.
type APIResponse struct {
	Message string      `json:"message"`
	Error   bool        `json:"error"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(message string, data interface{}) APIResponse {
	return APIResponse{Message: message, Data: data}
}

func Failure(message string, data interface{}) APIResponse {
	return APIResponse{Message: message, Error: true, Data: data}
}
