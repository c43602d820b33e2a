package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/predict"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// Predictor is the prediction service as seen by the HTTP layer.
type Predictor interface {
	Predict(raw []byte) (*predict.Result, error)
	PredictTensor(t *preprocess.Tensor) (*predict.Result, error)
	NumClasses() int
}

// Info describes the loaded model for /health.
type Info struct {
	Device   string
	Backbone string
	Filter   string
}

// TensorRequest carries an already-normalized CHW image.
type TensorRequest struct {
	Image []float32 `json:"image"`
}

type Handler struct {
	predictor      Predictor
	info           Info
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandler(predictor Predictor, info Info, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		predictor:      predictor,
		info:           info,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"device":   h.info.Device,
		"backbone": h.info.Backbone,
		"filter":   h.info.Filter,
		"classes":  h.predictor.NumClasses(),
	})
}

// Predict classifies the multipart upload in the "image" field.
func (h *Handler) Predict(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		// Leave room for multipart framing around the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		abortWithError(c, http.StatusBadRequest, "no image uploaded: use 'image' as the form field name")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		abortWithError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "failed to open uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		abortWithError(c, http.StatusBadRequest, "uploaded image is empty")
		return
	}

	h.logger.Debug("received upload",
		zap.String("request_id", GetRequestID(c)),
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(data)),
	)

	result, err := h.predictor.Predict(data)
	if err != nil {
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// PredictTensor classifies a JSON array of 3*224*224 normalized values.
func (h *Handler) PredictTensor(c *gin.Context) {
	var req TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid JSON")
		return
	}

	tensor, err := preprocess.NewTensor(req.Image)
	if err != nil {
		abortWithError(c, http.StatusBadRequest,
			fmt.Sprintf("expected %d values, got %d", preprocess.TensorSize, len(req.Image)))
		return
	}

	result, err := h.predictor.PredictTensor(tensor)
	if err != nil {
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
