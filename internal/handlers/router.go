package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions configures the middleware chain.
type RouterOptions struct {
	AllowOrigin string
	Observer    RequestObserver
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// NewRouter mounts the API routes.
//
//	GET  /health         - health check
//	POST /predict        - multipart image upload (field "image")
//	POST /predict/image  - same as /predict
//	POST /predict/tensor - JSON {"image": [...]} of normalized values
//	GET  /metrics        - Prometheus exposition
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(Recovery(logger), RequestID(), AccessLog(logger))
	if opts.Observer != nil {
		r.Use(Metrics(opts.Observer))
	}
	allowOrigin := opts.AllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	r.Use(CORS(allowOrigin))

	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.Predict)
	r.POST("/predict/tensor", h.PredictTensor)

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
