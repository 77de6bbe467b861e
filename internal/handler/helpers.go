package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"CareVault/internal/service"
	"CareVault/utils"
)

// respondServiceError maps service errors to status codes. Bodies carry
// fixed messages only.
func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		utils.Fail(c, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, service.ErrNoFileProvided):
		utils.Fail(c, http.StatusBadRequest, "No file uploaded")
	case errors.Is(err, service.ErrAccessDenied):
		utils.Fail(c, http.StatusForbidden, "Access denied")
	case errors.Is(err, service.ErrNotFound):
		utils.Fail(c, http.StatusNotFound, "File not found")
	case errors.Is(err, service.ErrInvalidOrExpiredShare):
		utils.Fail(c, http.StatusNotFound, "Invalid or expired share link")
	default:
		log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("user_id", utils.UserID(c)),
			zap.Error(err))
		_ = c.Error(err)
		utils.Fail(c, http.StatusInternalServerError, "internal server error")
	}
}

// writeBlob streams a download as an attachment.
func writeBlob(c *gin.Context, blob *service.Blob) {
	defer blob.Body.Close()
	safeName := utils.SanitizeHeaderFilename(blob.Name.String())
	c.DataFromReader(http.StatusOK, blob.Size, blob.ContentType, blob.Body, map[string]string{
		"Content-Disposition":    fmt.Sprintf(`attachment; filename="%s"`, safeName),
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	})
}

// requestBaseURL rebuilds the public origin of the request, honouring
// proxy headers.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
		scheme = forwarded
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	host := strings.TrimSpace(c.GetHeader("X-Forwarded-Host"))
	if host == "" {
		host = c.Request.Host
	}
	if host == "" {
		return ""
	}
	return scheme + "://" + host
}
