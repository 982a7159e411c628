// Package api exposes a read-only administrative view of the gateway's
// live sessions: which connection handles hold a trust, and what schema
// each has committed. It never mutates dispatcher state.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"

	"github.com/knot-edge/gateway/internal/pkg/knot/audit"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
	"github.com/knot-edge/gateway/internal/pkg/presentation/api/auth"
)

var tracer = otel.Tracer("knot-gateway/api")

// TrustInspector is the subset of *trust.Store the admin API needs to
// inspect live sessions without being able to mutate them.
type TrustInspector interface {
	Lookup(handle uint64) (*trust.Trust, bool)
	Release(t *trust.Trust)
}

// Gateway is the subset of *gateway.Gateway the admin API depends on.
type Gateway interface {
	TrustSummaries() []trust.Summary
}

// RegisterHandlers mounts the admin API's routes onto router.
func RegisterHandlers(log *slog.Logger, router *chi.Mux, policies io.Reader, g Gateway, store TrustInspector, auditLog *audit.Log) (*chi.Mux, error) {
	router.Get("/health", healthHandler())

	router.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			authenticator, err := auth.NewAuthenticator(context.Background(), policies)
			if err != nil {
				panic("failed to create api authenticator: " + err.Error())
			}
			r.Use(authenticator)

			r.Get("/trusts", listTrustsHandler(log, g))
			r.Get("/trusts/{handle}/schema", trustSchemaHandler(log, store))
			r.Get("/audit/recent", recentAuditHandler(log, auditLog))
		})
	})

	return router, nil
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

type trustSummaryView struct {
	Handle      uint64 `json:"handle"`
	DeviceID    uint64 `json:"device_id"`
	Rollback    bool   `json:"rollback"`
	SchemaCount int    `json:"schemaCount"`
	ConfigCount int    `json:"configCount"`
}

func listTrustsHandler(log *slog.Logger, g Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "list-trusts")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		summaries := g.TrustSummaries()
		views := make([]trustSummaryView, 0, len(summaries))
		for _, s := range summaries {
			views = append(views, trustSummaryView{
				Handle: s.Handle, DeviceID: s.DeviceID, Rollback: s.Rollback,
				SchemaCount: s.SchemaCount, ConfigCount: s.ConfigCount,
			})
		}

		b, err := json.Marshal(views)
		if err != nil {
			requestLogger.Error("unable to marshal trust summaries", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}

type schemaEntryView struct {
	SensorID  uint8  `json:"sensorId"`
	TypeID    uint16 `json:"typeId"`
	ValueType uint8  `json:"valueType"`
	Unit      uint8  `json:"unit"`
	Name      string `json:"name"`
}

func trustSchemaHandler(log *slog.Logger, store TrustInspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "get-trust-schema")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		handle, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		t, ok := store.Lookup(handle)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		defer store.Release(t)

		views := make([]schemaEntryView, 0, len(t.Schema))
		for _, e := range t.Schema {
			views = append(views, schemaEntryView{
				SensorID: e.SensorID, TypeID: e.TypeID, ValueType: e.ValueType, Unit: e.Unit, Name: e.Name,
			})
		}

		b, err := json.Marshal(views)
		if err != nil {
			requestLogger.Error("unable to marshal schema", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}

func recentAuditHandler(log *slog.Logger, auditLog *audit.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "recent-audit")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		if auditLog == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		events, err := auditLog.Recent(ctx, 50)
		if err != nil {
			requestLogger.Error("unable to fetch recent audit events", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		b, err := json.Marshal(events)
		if err != nil {
			requestLogger.Error("unable to marshal audit events", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}

