package api

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/observability"
	"github.com/alfanzaky/txnhook/pkg/xresponse"
)

// RouterConfig holds HTTP surface options
type RouterConfig struct {
	MaxRequestSize int64
}

func init() {
	// Report validation failures by their JSON field names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(cfg RouterConfig, transactionHandler *TransactionHandler, metricsHandler *observability.MetricsHandler) *gin.Engine {
	router := gin.New()
	router.Use(observability.ObservabilityMiddleware())
	router.Use(recoveryMiddleware())

	SetupRoutes(router, cfg, transactionHandler, metricsHandler)
	return router
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg RouterConfig, transactionHandler *TransactionHandler, metricsHandler *observability.MetricsHandler) {
	router.GET("/", transactionHandler.Health)

	if metricsHandler != nil {
		router.GET("/metrics", metricsHandler.MetricsEndpoint())
		router.GET("/ready", metricsHandler.ReadinessEndpoint())
		router.GET("/live", metricsHandler.LivenessEndpoint())
	}

	v1 := router.Group("/v1")
	{
		webhooks := v1.Group("/webhooks")
		webhooks.Use(bodyLimitMiddleware(cfg.MaxRequestSize))
		webhooks.POST("/transactions", transactionHandler.ReceiveWebhook)

		v1.GET("/transactions/:transaction_id", transactionHandler.GetTransaction)
	}

	logger.Info("API routes configured successfully")
}

// bodyLimitMiddleware caps the request body size
func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			logger.String("error", fmt.Sprintf("%v", recovered)),
			logger.String("path", c.Request.URL.Path),
			logger.String("method", c.Request.Method),
		)

		xresponse.InternalServerError(c, "Internal server error")
		c.Abort()
	})
}
