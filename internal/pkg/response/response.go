package response

import (
	"github.com/gin-gonic/gin"
)

// Success writes data as a 200 JSON body.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

// Error aborts the request with {"detail": message}.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}
