package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plantcare/internal/config"
	"plantcare/internal/domain"
	"plantcare/internal/service"
)

const tokenHeader = "X-Staging-Token"

type Handler struct {
	service service.PlantService
	cfg     *config.Config
	log     *zap.Logger
}

func NewHandler(service service.PlantService, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": msg}. Storage and internal failures are
// reported with fallback only.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	kind := domain.KindOf(err)
	msg := fallback
	if kind != domain.KindStorage && kind != domain.KindInternal {
		msg = domain.MessageOf(err, fallback)
	}

	if kind == domain.KindStorage || kind == domain.KindInternal {
		h.log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}

	c.JSON(statusFor(kind), gin.H{"error": msg})
}

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 64 << 10

func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.App.MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return
		}
		h.log.Debug("No image in upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
		return
	}

	if file.Size > h.cfg.App.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.fail(c, err, "Failed to process file")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.fail(c, err, "Failed to read file")
		return
	}

	image, err := h.service.UploadImage(c.Request.Context(), data, file.Filename)
	if err != nil {
		h.fail(c, err, "Failed to store image")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Image uploaded successfully",
		"filename": image.Filename,
		"path":     image.StoragePath,
		"token":    image.Filename,
	})
}

type analyzeRequest struct {
	Token string `json:"token"`
}

// analyzeToken reads the ownership token from the query, header or JSON
// body, in that order. An absent token is not an error.
func analyzeToken(c *gin.Context) (string, error) {
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	if token := c.GetHeader(tokenHeader); token != "" {
		return token, nil
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", domain.NewValidationError("Invalid request body")
	}
	return req.Token, nil
}

func (h *Handler) AnalyzeDisease(c *gin.Context) {
	token, err := analyzeToken(c)
	if err != nil {
		h.fail(c, err, "Invalid request body")
		return
	}

	result, err := h.service.AnalyzeDisease(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err, "Failed to analyze disease.")
		return
	}

	c.JSON(http.StatusOK, result)
}

type remedyRequest struct {
	Context string `json:"context"`
}

func (h *Handler) SearchRemedy(c *gin.Context) {
	var req remedyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Context is required"})
		return
	}

	remedy, err := h.service.GetRemedy(c.Request.Context(), req.Context)
	if err != nil {
		h.fail(c, err, "An error occurred while processing the request")
		return
	}

	c.JSON(http.StatusOK, remedy)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
