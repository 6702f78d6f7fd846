package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TraceIDHeader is the HTTP header for trace ID
	TraceIDHeader = "X-Trace-ID"
	// ProcessTimeHeader reports server-side handling time in milliseconds
	ProcessTimeHeader = "X-Process-Time-ms"

	traceIDContextKey = "trace_id"
)

// ObservabilityMiddleware provides trace ID propagation, timing headers and metrics collection
func ObservabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Generate or extract trace ID
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Header(TraceIDHeader, traceID)
		c.Set(traceIDContextKey, traceID)
		c.Request = c.Request.WithContext(logger.ContextWithTraceID(c.Request.Context(), traceID))
		c.Writer = &timingWriter{ResponseWriter: c.Writer, start: start}

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, statusCode, duration)

		logger.Info("Request completed",
			logger.String("trace_id", traceID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.String("status", statusCode),
			logger.Float64("duration_ms", duration*1000),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// timingWriter stamps ProcessTimeHeader right before the status line is sent,
// which is the last moment headers can still change.
type timingWriter struct {
	gin.ResponseWriter
	start time.Time
}

func (w *timingWriter) stamp() {
	if !w.Written() {
		elapsed := float64(time.Since(w.start).Microseconds()) / 1000
		w.Header().Set(ProcessTimeHeader, fmt.Sprintf("%.2f", elapsed))
	}
}

func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// GetTraceID extracts trace ID from the gin context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(traceIDContextKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// LogWithFields logs with trace ID and custom fields
func LogWithFields(c *gin.Context, message string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("trace_id", GetTraceID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
	}, fields...)

	logger.Info(message, allFields...)
}

// RecordSystemError records system error with metrics and logging
func RecordSystemError(c *gin.Context, errorType, component string, err error) {
	metrics.RecordSystemError(errorType, component)

	logger.Error("System error occurred",
		logger.String("trace_id", GetTraceID(c)),
		logger.String("error_type", errorType),
		logger.String("component", component),
		logger.ErrorField(err),
		logger.String("method", c.Request.Method),
		logger.String("path", c.Request.URL.Path),
		logger.String("client_ip", c.ClientIP()),
	)
}
