package admin

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type capturingSystemLog struct {
	events []*model.SystemEvent
}

func (c *capturingSystemLog) AppendTx(_ context.Context, _ *sql.Tx, ev *model.SystemEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *capturingSystemLog) Append(_ context.Context, ev *model.SystemEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestAuditMiddleware_LogsMutatingRequests(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := AuditMiddleware(logger, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := `{}`
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/liquidation/sweep", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	logOutput := logBuf.String()
	if !strings.Contains(logOutput, "admin API audit") {
		t.Error("expected audit log entry")
	}
	if !strings.Contains(logOutput, "POST") {
		t.Error("expected method in audit log")
	}
	if !strings.Contains(logOutput, "/admin/v1/liquidation/sweep") {
		t.Error("expected path in audit log")
	}
}

func TestAuditMiddleware_SkipsGETRequests(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := AuditMiddleware(logger, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if logBuf.Len() > 0 {
		t.Error("expected no audit log for GET request")
	}
}

func TestAuditMiddleware_TruncatesLargeBody(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := AuditMiddleware(logger, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Create a body larger than 1KB
	largeBody := strings.Repeat("x", 2000)
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/analytics/rebuild", strings.NewReader(largeBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	logOutput := logBuf.String()
	if !strings.Contains(logOutput, "truncated") {
		t.Error("expected truncation indicator in audit log for large body")
	}
}

func TestAuditMiddleware_CapturesResponseStatus(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := AuditMiddleware(logger, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/admin/v1/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	logOutput := logBuf.String()
	if !strings.Contains(logOutput, "400") {
		t.Error("expected response status 400 in audit log")
	}
}

func TestAuditMiddleware_PersistsSystemEvent(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	systemLog := &capturingSystemLog{}

	handler := AuditMiddleware(logger, systemLog, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/liquidation/sweep", nil)
	req.SetBasicAuth("operator", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(systemLog.events) != 1 {
		t.Fatalf("expected one system event, got %d", len(systemLog.events))
	}
	ev := systemLog.events[0]
	if ev.EventType != model.SystemEventConfigChanged {
		t.Errorf("expected config_changed event, got %s", ev.EventType)
	}
	if ev.Actor != "operator" {
		t.Errorf("expected actor operator, got %q", ev.Actor)
	}
	if !strings.Contains(string(ev.Details), "/admin/v1/liquidation/sweep") {
		t.Error("expected request path in event details")
	}
}
