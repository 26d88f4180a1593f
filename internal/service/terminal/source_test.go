package terminal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
)

// fakeBridge answers bridge methods the way the terminal side does.
type fakeBridge struct {
	mu      sync.Mutex
	calls   []string
	params  map[string]json.RawMessage
	refuse  map[string]bool
	unknown map[string]bool
	rates   []models.RawCandle
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		params:  make(map[string]json.RawMessage),
		refuse:  make(map[string]bool),
		unknown: make(map[string]bool),
	}
}

func (b *fakeBridge) handle(method string, params json.RawMessage) (interface{}, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, method)
	b.params[method] = params

	switch method {
	case "initialize":
		return ackResult{OK: !b.refuse[method], Message: "login failed"}, ""
	case "symbol_select":
		var p symbolParams
		_ = json.Unmarshal(params, &p)
		if b.unknown[p.Symbol] {
			return ackResult{OK: false, Message: "unknown symbol"}, ""
		}
		return ackResult{OK: true}, ""
	case "copy_rates":
		return ratesResult{Rates: b.rates}, ""
	case "shutdown":
		return ackResult{OK: true}, ""
	default:
		return nil, "no such method"
	}
}

func (b *fakeBridge) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBridge) httpServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&params)
		result, errMsg := b.handle(strings.TrimPrefix(r.URL.Path, "/"), params)
		raw, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(response{Result: raw, Error: errMsg})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *fakeBridge) wsServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     uint64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			result, errMsg := b.handle(req.Method, req.Params)
			raw, _ := json.Marshal(result)
			if err := conn.WriteJSON(response{ID: req.ID, Result: raw, Error: errMsg}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) Config {
	return Config{URL: url, Timeout: 2 * time.Second, InclusiveEndOffset: time.Minute}
}

func rangeQuery(start, end time.Time) models.FetchQuery {
	return models.FetchQuery{
		Instrument: models.Instrument{Name: "EURUSD", Index: 3, Digits: 5},
		Period:     models.DefaultPeriods[0],
		Shape:      models.ShapeRange,
		Window:     models.Window{Start: models.Calendar(start), End: models.Calendar(end)},
	}
}

func TestHTTPSourceLifecycle(t *testing.T) {
	bridge := newFakeBridge()
	bridge.rates = []models.RawCandle{{Time: 1641168000, Open: 1.13, High: 1.14, Low: 1.12, Close: 1.135, TickVolume: 42}}
	srv := bridge.httpServer(t)

	src := NewSource(testConfig(srv.URL), nil)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx, models.SourceConfig{TerminalPath: `C:\terminal64.exe`}))
	require.NoError(t, src.EnsureWatched(ctx, "EURUSD"))

	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	rows, err := src.FetchRaw(ctx, rangeQuery(start, start.Add(4*time.Hour)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0].TickVolume)

	var init initializeParams
	require.NoError(t, json.Unmarshal(bridge.params["initialize"], &init))
	assert.Equal(t, models.LoginPath, init.Mode)

	var rp ratesParams
	require.NoError(t, json.Unmarshal(bridge.params["copy_rates"], &rp))
	assert.Equal(t, start.Unix(), *rp.DateFrom)
	assert.Equal(t, start.Add(4*time.Hour-time.Minute).Unix(), *rp.DateTo, "range end is made inclusive")
	assert.Equal(t, 1, rp.Timeframe)
	assert.Nil(t, rp.Count)

	require.NoError(t, src.Close())
	assert.Equal(t, []string{"initialize", "symbol_select", "copy_rates", "shutdown"}, bridge.methods())
	require.NoError(t, src.Close())
}

func TestWebSocketSourceLifecycle(t *testing.T) {
	bridge := newFakeBridge()
	bridge.rates = []models.RawCandle{{Time: 60}, {Time: 120}}
	srv := bridge.wsServer(t)

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.PingInterval = 10 * time.Millisecond
	src := NewSource(cfg, nil)
	ctx := context.Background()

	require.NoError(t, src.Connect(ctx, models.SourceConfig{}))
	require.NoError(t, src.EnsureWatched(ctx, "GBPUSD"))

	q := models.FetchQuery{
		Instrument: models.Instrument{Name: "GBPUSD", Index: 5, Digits: 5},
		Period:     models.DefaultPeriods[5],
		Shape:      models.ShapeFromPos,
		Window:     models.Window{Start: models.Ordinal(100), End: models.Ordinal(150)},
	}
	for i := 0; i < 3; i++ {
		rows, err := src.FetchRaw(ctx, q)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	}

	var rp ratesParams
	require.NoError(t, json.Unmarshal(bridge.params["copy_rates"], &rp))
	assert.Equal(t, int64(100), *rp.StartPos)
	assert.Equal(t, int64(50), *rp.Count)
	assert.Equal(t, 16385, rp.Timeframe)

	require.NoError(t, src.Close())
}

func TestConnectRejectsPartialLogin(t *testing.T) {
	bridge := newFakeBridge()
	srv := bridge.httpServer(t)

	src := NewSource(testConfig(srv.URL), nil)
	err := src.Connect(context.Background(), models.SourceConfig{Server: "demo", Login: "1"})
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
	assert.Empty(t, bridge.methods(), "no I/O before the login rule passes")
}

func TestConnectFailures(t *testing.T) {
	bridge := newFakeBridge()
	bridge.refuse["initialize"] = true
	srv := bridge.httpServer(t)

	err := NewSource(testConfig(srv.URL), nil).Connect(context.Background(), models.SourceConfig{})
	assert.True(t, errs.IsKind(err, errs.KindSourceUnavailable))

	err = NewSource(testConfig("http://127.0.0.1:1"), nil).Connect(context.Background(), models.SourceConfig{})
	assert.True(t, errs.IsKind(err, errs.KindSourceUnavailable))

	err = NewSource(testConfig("ftp://bridge"), nil).Connect(context.Background(), models.SourceConfig{})
	assert.True(t, errs.IsKind(err, errs.KindSourceUnavailable))
}

func TestEnsureWatchedUnknownSymbol(t *testing.T) {
	bridge := newFakeBridge()
	bridge.unknown["XAUEUR"] = true
	srv := bridge.httpServer(t)

	src := NewSource(testConfig(srv.URL), nil)
	require.NoError(t, src.Connect(context.Background(), models.SourceConfig{}))

	err := src.EnsureWatched(context.Background(), "XAUEUR")
	assert.True(t, errs.IsKind(err, errs.KindResolution))
}

func TestFetchBeforeConnect(t *testing.T) {
	_, err := NewSource(testConfig("http://unused"), nil).FetchRaw(context.Background(), rangeQuery(time.Now(), time.Now()))
	assert.True(t, errs.IsKind(err, errs.KindSourceUnavailable))
}

func TestFactoryOpen(t *testing.T) {
	bridge := newFakeBridge()
	srv := bridge.httpServer(t)

	cfg := testConfig(srv.URL)
	cfg.Login = models.SourceConfig{Server: "demo", Login: "1", Password: "x", TerminalPath: "/opt/terminal"}
	src, err := NewFactory(cfg, nil).Open(context.Background())
	require.NoError(t, err)
	defer src.Close()

	var init initializeParams
	require.NoError(t, json.Unmarshal(bridge.params["initialize"], &init))
	assert.Equal(t, models.LoginFull, init.Mode)
	assert.Equal(t, "demo", init.Server)
}
