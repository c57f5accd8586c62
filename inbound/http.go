package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/query"
)

const (
	RouteCreateOrder = "/webhooks/orders/create"
	RouteOrderDetail = "/orders/{order_id}"
	RouteHealth      = "/healthz"

	DefaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

	msgInternal = "Internal server error"
)

type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Ingestor     *Ingestor
	Orders       gocmd.Querier[query.GetOrderMessage, query.OrderDetail]
	Health       HealthCheck
	MaxBodyBytes int64
	Logger       core.Logger
}

type handler struct {
	ingestor     *Ingestor
	orders       gocmd.Querier[query.GetOrderMessage, query.OrderDetail]
	health       HealthCheck
	maxBodyBytes int64
	logger       core.Logger
}

// NewRouter mounts the webhook, order detail and health routes. Trailing
// slashes are accepted on the webhook and detail routes.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Ingestor == nil {
		return nil, fmt.Errorf("inbound: ingestor is required")
	}
	h := &handler{
		ingestor:     cfg.Ingestor,
		orders:       cfg.Orders,
		health:       cfg.Health,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       glog.Ensure(cfg.Logger),
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(extractTraceContext)
	r.Use(h.logRequests)
	r.Use(h.recoverJSON)

	r.Post(RouteCreateOrder, h.createOrder)
	r.Post(RouteCreateOrder+"/", h.createOrder)
	r.Get(RouteOrderDetail, h.getOrder)
	r.Get(RouteOrderDetail+"/", h.getOrder)
	r.Get(RouteHealth, h.healthz)
	return r, nil
}

type ingestResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id"`
	Created bool   `json:"created"`
}

type errorResponse struct {
	Error  string              `json:"error,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
	Code   string              `json:"code"`
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, core.ValidationError("request body too large", goerrors.FieldError{
				Field:   NonFieldErrors,
				Message: fmt.Sprintf("Request body exceeds %d bytes.", h.maxBodyBytes),
			}))
			return
		}
		h.writeError(w, r, core.ValidationError("read request body", goerrors.FieldError{
			Field:   NonFieldErrors,
			Message: msgInvalidJSON,
		}))
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), core.InboundRequest{
		Headers: flattenHeaders(r.Header),
		Body:    body,
		Metadata: map[string]any{
			"request_id":  middleware.GetReqID(r.Context()),
			"remote_addr": r.RemoteAddr,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, result.StatusCode, ingestResponse{
		OK:      true,
		OrderID: result.OrderID,
		Created: result.Created,
	})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.writeError(w, r, core.NotFoundError("order reads are not enabled", nil))
		return
	}
	detail, err := h.orders.Query(r.Context(), query.GetOrderMessage{OrderID: chi.URLParam(r, "order_id")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			core.LogError(r.Context(), h.logger, "health check failed", map[string]any{"error": err.Error()})
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeError renders a go-errors envelope. Internal failures never expose
// their cause to the caller.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rich := core.AsError(err)
	status := rich.Code
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	response := errorResponse{Code: rich.TextCode}
	switch {
	case len(rich.ValidationErrors) > 0:
		response.Errors = make(map[string][]string, len(rich.ValidationErrors))
		for _, field := range rich.ValidationErrors {
			response.Errors[field.Field] = append(response.Errors[field.Field], field.Message)
		}
	case status >= http.StatusInternalServerError:
		response.Error = msgInternal
	default:
		response.Error = rich.Message
	}

	fields := map[string]any{
		"status":     status,
		"code":       rich.TextCode,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
		"error":      err.Error(),
	}
	if status >= http.StatusInternalServerError {
		core.LogError(r.Context(), h.logger, "request failed", fields)
	} else {
		core.LogWarn(r.Context(), h.logger, "request rejected", fields)
	}
	writeJSON(w, status, response)
}

func (h *handler) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			h.writeError(w, r, core.InternalError(fmt.Errorf("panic: %v", recovered), "recovered panic"))
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		core.LogInfo(r.Context(), h.logger, "http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func extractTraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = strings.TrimSpace(values[0])
	}
	return flat
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
