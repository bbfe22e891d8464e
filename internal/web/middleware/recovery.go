package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	// EnableStackTrace adds the stack of the panicking goroutine to the log
	EnableStackTrace bool
	Logger           *zap.Logger
	// ResponseHandler writes the response; defaults to a JSON 500
	ResponseHandler func(http.ResponseWriter, *http.Request, interface{})
}

// DefaultRecoveryConfig returns the default recovery configuration
func DefaultRecoveryConfig(logger *zap.Logger) RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace: true,
		Logger:           logger,
		ResponseHandler:  defaultRecoveryResponse,
	}
}

// Recovery creates a middleware that turns panics into 500 responses
func Recovery(logger *zap.Logger) Middleware {
	return RecoveryWithConfig(DefaultRecoveryConfig(logger))
}

// RecoveryWithConfig creates a recovery middleware with custom configuration
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	respond := config.ResponseHandler
	if respond == nil {
		respond = defaultRecoveryResponse
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					fields := []zap.Field{
						zap.Error(panicError{value: rec}),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestID(r.Context())),
					}
					if config.EnableStackTrace {
						fields = append(fields, zap.Stack("stack"))
					}
					logger.Error("panic recovered", fields...)
					respond(w, r, rec)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func defaultRecoveryResponse(w http.ResponseWriter, r *http.Request, _ interface{}) {
	body, err := json.Marshal(map[string]string{
		"error":   "internal_server_error",
		"message": "An unexpected error occurred",
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write(body)
}

// panicError wraps a panic value as an error
type panicError struct {
	value interface{}
}

func (e panicError) Error() string {
	if err, ok := e.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.value)
}

func (e panicError) Unwrap() error {
	err, _ := e.value.(error)
	return err
}
