package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gallerywidget/internal/locale"
	"github.com/gin-gonic/gin"
)

const xhrHeaderValue = "XMLHttpRequest"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// positiveInt parses raw, returning fallback when it is empty or not a positive integer.
func positiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// RequireXMLHttpRequest rejects requests that were not sent through XMLHttpRequest.
func RequireXMLHttpRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Requested-With") != xhrHeaderValue {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": locale.T(RequestLanguage(c), locale.MsgXHROnly),
			})
			return
		}
		c.Next()
	}
}
