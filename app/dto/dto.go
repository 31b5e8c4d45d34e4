package dto

// APIResponse is the envelope of every JSON answer
type APIResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"User data delivered"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail is the Error payload of a failed APIResponse
type ErrorDetail struct {
	Code    string `json:"code" example:"VALIDATION_ERROR"`
	Details any    `json:"details,omitempty"`
}
