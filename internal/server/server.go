// Package server exposes the engine over the Chorus HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"chorus/internal/engine"
	"chorus/internal/repo"
)

// RequestIDHeader carries the id of every request and error response.
const RequestIDHeader = "X-Request-Id"

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	Logger *log.Logger
}

type apiErrorBody struct {
	Code      string         `json:"code" example:"LOCK_CONFLICT"`
	Message   string         `json:"message" example:"task is already locked"`
	Details   map[string]any `json:"details" jsonschema:"type=object,additionalProperties=true"`
	RequestID string         `json:"request_id"`
}

type requestIDKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Chorus API.
func New(cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorDetails(errs))
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(accessLog(logger))
	router.Use(middleware.Recoverer)

	hcfg := huma.DefaultConfig("Chorus API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	hcfg.Transformers = append(hcfg.Transformers, stampRequestID)
	api := humachi.New(router, hcfg)

	h := handlers{e: cfg.Engine, log: logger}
	registerHealth(api)
	registerProjects(api, h)
	registerTasks(api, h)
	registerAtomic(api, h)
	registerDiscovery(api, h)
	registerLocks(api, h)
	return router, nil
}

// requestID tags the request context and response with an id, keeping one
// the caller already sent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func accessLog(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"elapsed", time.Since(start), "request_id", requestIDFrom(r.Context()))
		})
	}
}

// stampRequestID fills request_id into error envelopes on the way out.
func stampRequestID(ctx huma.Context, _ string, v any) (any, error) {
	if e, ok := v.(*apiError); ok && e.Body.RequestID == "" {
		e.Body.RequestID = requestIDFrom(ctx.Context())
	}
	return v, nil
}

func errorDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return map[string]any{"errors": msgs}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	if details == nil {
		details = map[string]any{}
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

type handlers struct {
	e   engine.Engine
	log *log.Logger
}

func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var re *engine.RuleError
	if errors.As(err, &re) {
		return newAPIError(ruleStatus(re.Kind), re.Code, re.Message, re.Details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	}
	h.log.Error("request failed", "err", err)
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}

func ruleStatus(k engine.Kind) int {
	switch k {
	case engine.KindValidation:
		return http.StatusUnprocessableEntity
	case engine.KindConflict:
		return http.StatusConflict
	case engine.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusInternalServerError:
		return "INTERNAL_ERROR"
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
