package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// InternalErrorMessage is the only detail a client sees for unexpected failures.
const InternalErrorMessage = "서버 오류가 발생했습니다. 잠시 후 다시 시도해주세요."

func newRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "req_00000000"
	}
	return "req_" + hex.EncodeToString(b)
}

// RequestLogger assigns a request id when the client did not send one, echoes
// it back, stores a request-scoped logger in the context and logs each request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = newRequestID()
				r.Header.Set(RequestIDHeader, requestID)
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLog := log.With(zap.String("request_id", requestID))
			r = r.WithContext(logger.WithContext(r.Context(), reqLog))

			reqLog.Debug("Request started",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if status >= http.StatusBadRequest {
				reqLog.Warn("Request completed", fields...)
			} else {
				reqLog.Info("Request completed", fields...)
			}
		})
	}
}

// Recoverer turns a panic into the generic 500 body and logs it with the
// request id.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context(), log).Error("Unhandled panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"code":       "INTERNAL_ERROR",
						"message":    InternalErrorMessage,
						"request_id": r.Header.Get(RequestIDHeader),
					},
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
