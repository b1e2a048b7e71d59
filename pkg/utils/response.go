package utils

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse writes a JSON error envelope
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error": message,
	})
}

// RateLimitResponse writes a 429 with the retry window in seconds
func RateLimitResponse(c *gin.Context, status int, message string, resetInSeconds int64) {
	c.JSON(status, gin.H{
		"error":   message,
		"resetIn": resetInSeconds,
	})
}
