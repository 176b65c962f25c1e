package utils

import "github.com/gin-gonic/gin"

// ErrorBody is the uniform error envelope; success payloads are served as
// plain JSON by the controllers.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error writes a JSON error response with the given HTTP status.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, ErrorBody{Code: code, Message: message})
}
