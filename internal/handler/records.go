package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"CareVault/internal/dto"
	"CareVault/internal/service"
	"CareVault/model"
	"CareVault/utils"
)

type RecordsHandler struct {
	svc *service.RecordsService
	log *zap.Logger
}

func NewRecordsHandler(svc *service.RecordsService, log *zap.Logger) *RecordsHandler {
	return &RecordsHandler{svc: svc, log: log}
}

// Upload stores the multipart field "file" for the caller.
func (h *RecordsHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Fail(c, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			h.log.Warn("reading multipart upload failed", zap.Error(err))
		}
		respondServiceError(c, h.log, service.ErrNoFileProvided)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(c.Request.Context(), utils.UserID(c), file, fileHeader.Size, fileHeader.Filename)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.UploadResponse{
		Filename:     res.Filename,
		OriginalName: res.OriginalName,
	})
}

// List returns the caller's file names in upload order.
func (h *RecordsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.List(c.Request.Context(), utils.UserID(c)))
}

func (h *RecordsHandler) Download(c *gin.Context) {
	blob, err := h.svc.Fetch(c.Request.Context(), utils.UserID(c), model.FileID(c.Param("filename")))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	writeBlob(c, blob)
}

func (h *RecordsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), utils.UserID(c), model.FileID(c.Param("filename"))); err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	utils.Success(c)
}
