package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/quipe/internal/imagehost"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/telemetry"
	"go.uber.org/zap"
)

// запас на multipart-заголовки поверх размера файла
const multipartOverhead = 1 << 20

type UploadHandler struct {
	host imagehost.Host
	tel  *telemetry.Client
	log  *zap.Logger
}

func NewUploadHandler(host imagehost.Host, tel *telemetry.Client, log *zap.Logger) *UploadHandler {
	return &UploadHandler{host: host, tel: tel, log: log}
}

// Upload проверяет файл и только потом отправляет его в хранилище
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, imagehost.MaxFileSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(c, http.StatusBadRequest, imagehost.ErrTooLarge.Error())
			return
		}
		errorJSON(c, http.StatusBadRequest, imagehost.ErrNoFile.Error())
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if err := imagehost.Validate(contentType, fh.Size); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	f, err := fh.Open()
	if err != nil {
		internalError(c, h.log, err, "Internal server error")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, imagehost.MaxFileSize+1))
	if err != nil {
		internalError(c, h.log, err, "Internal server error")
		return
	}
	if len(data) > imagehost.MaxFileSize {
		errorJSON(c, http.StatusBadRequest, imagehost.ErrTooLarge.Error())
		return
	}

	img, err := h.host.Upload(c.Request.Context(), imagehost.Upload{
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if errors.Is(err, imagehost.ErrUpstream) {
		h.log.Warn("image upload failed", zap.Error(err))
		errorJSON(c, http.StatusBadGateway, imagehost.ErrUpstream.Error())
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Internal server error")
		return
	}

	attrs := map[string]any{"size": len(data), "contentType": contentType}
	if id, ok := middleware.UserID(c); ok {
		attrs["userId"] = id.String()
	}
	h.tel.Track("", "image_uploaded", attrs)

	c.JSON(http.StatusOK, img)
}
