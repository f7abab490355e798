// Package models defines API response structures shared by the HTTP layer.
package models

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// StatusOK indicates the request was handled successfully.
	StatusOK APIStatus = "ok"
	// StatusError indicates the request failed.
	StatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
