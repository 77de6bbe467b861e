package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"CareVault/internal/dto"
	"CareVault/internal/service"
	"CareVault/model"
	"CareVault/utils"
)

type ShareHandler struct {
	svc *service.RecordsService
	log *zap.Logger
}

func NewShareHandler(svc *service.RecordsService, log *zap.Logger) *ShareHandler {
	return &ShareHandler{svc: svc, log: log}
}

// Create issues a share link for one of the caller's records. The JSON body
// is optional.
func (h *ShareHandler) Create(c *gin.Context) {
	var req dto.CreateShareRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			utils.Fail(c, http.StatusBadRequest, "Invalid request")
			return
		}
	}

	res, err := h.svc.CreateShare(c.Request.Context(), utils.UserID(c), model.FileID(c.Param("filename")), service.ShareOptions{
		RequestBaseURL: requestBaseURL(c),
		Recipient:      req.Recipient,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ShareResponse{
		ShareURL:    res.URL,
		ExpiresAt:   res.ExpiresAt.UnixMilli(),
		EmailQueued: res.EmailQueued,
	})
}

// Revoke invalidates every link to the record.
func (h *ShareHandler) Revoke(c *gin.Context) {
	if err := h.svc.RevokeShare(c.Request.Context(), utils.UserID(c), model.FileID(c.Param("filename"))); err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	utils.Success(c)
}

// Download serves a shared record to anyone holding a valid token.
func (h *ShareHandler) Download(c *gin.Context) {
	blob, err := h.svc.FetchByShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	writeBlob(c, blob)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}
