package main

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procurement/internal/config"
	"procurement/internal/document"
	"procurement/internal/identity"
	"procurement/internal/logging"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", config.StorageMemory)
	t.Setenv("UPLOADS_DIR", t.TempDir())
	t.Setenv("JWT_SECRET", "cmd-test-secret")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()

	st, err := openStores(cfg, logger, false)
	require.NoError(t, err)
	files, err := newFileStore(cfg)
	require.NoError(t, err)

	registry := newRegistry()
	metrics := service.NewMetrics(registry)
	runner := service.NewAdvisoryRunner(time.Second, logger, metrics)
	t.Cleanup(runner.Wait)
	resolver := identity.NewJWTResolver(cfg.Secret())
	hub := websocket.NewHub(resolver, logger, nil)

	extractor, validator := collaborators(cfg.AI, nil, time.Hour, logger)
	requests, documents := newHandlers(service.Deps{
		Tx: st.tx, Requests: st.requests, Approvals: st.approvals, Audit: st.audit,
		Files: files, Extractor: extractor, Validator: validator,
		Advisory: runner, Notifier: hub, Metrics: metrics, Logger: logger,
	}, logger)

	return compress(newRouter(routes{
		cfg: cfg, logger: logger, resolver: resolver, hub: hub, registry: registry,
		requests: requests, documents: documents,
	}))
}

func TestHealthAndAuth(t *testing.T) {
	cfg := testConfig(t)
	h := testRouter(t, cfg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/requests", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := identity.IssueToken(cfg.Secret(), identity.Actor{ID: "s-1", Role: identity.RoleStaff}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/requests",
		strings.NewReader(`{"title":"Laptop","description":"Developer laptop","amount":"1200"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestMetricsEndpointIsCompressed(t *testing.T) {
	cfg := testConfig(t)
	h := testRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollaboratorsWithoutKeyAreUnavailable(t *testing.T) {
	extractor, validator := collaborators(config.AIOptions{}, nil, time.Hour, logging.Discard())
	_, err := extractor.Extract(t.Context(), documentFixture())
	assert.Error(t, err)
	assert.NotNil(t, validator)
}

func documentFixture() document.Document {
	return document.Document{Filename: "q.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}
}
