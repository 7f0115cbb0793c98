package models

// Error describes an API error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope returned by all endpoints
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}
