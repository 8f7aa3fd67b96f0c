package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/antonvlk/meteohub/internal/api"
	"github.com/antonvlk/meteohub/internal/app"
	sharedtestutil "github.com/antonvlk/meteohub/internal/database/testutil"
	"github.com/antonvlk/meteohub/internal/ingest"
	"github.com/antonvlk/meteohub/internal/models"
	"github.com/antonvlk/meteohub/internal/query"
	"github.com/antonvlk/meteohub/internal/store"
	"github.com/antonvlk/meteohub/pkg/response"
)

// FakeClock is a mutable time source shared by the store, the ingest service
// and the query engine so tests can place readings in the past.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set pins the clock to a specific instant.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Store  *store.ReadingStore
	Ingest *ingest.Service
	Cached *query.CachedEngine
	Clock  *FakeClock
	Router *gin.Engine
}

// EnvOption adjusts the wiring of a test environment.
type EnvOption func(*envConfig)

type envConfig struct {
	cacheTTL     time.Duration
	timezone     string
	trendMinutes int
	ingestOpts   []ingest.Option
}

// WithCacheTTL enables the query result cache. The default is 0, which keeps
// every request hitting the store so tests stay deterministic.
func WithCacheTTL(ttl time.Duration) EnvOption {
	return func(cfg *envConfig) {
		cfg.cacheTTL = ttl
	}
}

// WithDisplayTimezone sets the human-facing timezone the router renders with.
func WithDisplayTimezone(tz string) EnvOption {
	return func(cfg *envConfig) {
		cfg.timezone = tz
	}
}

// WithDefaultTrendMinutes overrides the trend window used when requests name none.
func WithDefaultTrendMinutes(minutes int) EnvOption {
	return func(cfg *envConfig) {
		cfg.trendMinutes = minutes
	}
}

// WithIngestOptions forwards extra options to the ingest service.
func WithIngestOptions(opts ...ingest.Option) EnvOption {
	return func(cfg *envConfig) {
		cfg.ingestOpts = append(cfg.ingestOpts, opts...)
	}
}

// NewEnv provisions a fresh handler test environment with the schema applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := envConfig{
		timezone:     "UTC",
		trendMinutes: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))

	db := sharedtestutil.MustOpenTestDB(t)
	readings, err := store.NewReadingStore(db, store.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, readings.Initialize(context.Background()))

	engine, err := query.NewEngine(readings, query.WithClock(clock.Now))
	require.NoError(t, err)
	cached, err := query.NewCachedEngine(engine, cfg.cacheTTL)
	require.NoError(t, err)

	ingestOpts := append([]ingest.Option{
		ingest.WithClock(clock.Now),
		ingest.WithStoredHook(func(r models.Reading) {
			cached.InvalidateFor(r)
		}),
	}, cfg.ingestOpts...)
	svc, err := ingest.NewService(readings, ingestOpts...)
	require.NoError(t, err)

	appCfg := &app.Config{
		Query:   app.QueryConfig{DefaultTrendMinutes: cfg.trendMinutes},
		Display: app.DisplayConfig{Timezone: cfg.timezone},
	}

	router, err := api.NewRouter(db, svc, cached, appCfg)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Store:  readings,
		Ingest: svc,
		Cached: cached,
		Clock:  clock,
		Router: router,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding automatically.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
