package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lacymorrow/trade/internal/types"
)

type fakeController struct {
	state    types.BotState
	startErr error
	stopErr  error
	runs     int
}

func (f *fakeController) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = types.StateRunning
	return nil
}

func (f *fakeController) Stop(ctx context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = types.StateStopped
	return nil
}

func (f *fakeController) RunOnce(ctx context.Context) (*types.CycleSummary, error) {
	f.runs++
	return &types.CycleSummary{Symbols: 2, Signals: 1}, nil
}

func (f *fakeController) Status() types.BotStatus {
	return types.BotStatus{State: f.state, TestMode: true}
}

type fakeData struct {
	trades []types.Trade
	err    error
}

func (f *fakeData) GetPriceSeries(ctx context.Context, symbol, timeframe string, limit int) (*types.PriceSeries, error) {
	return nil, nil
}
func (f *fakeData) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	return f.trades, f.err
}
func (f *fakeData) TradableSymbols(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeData) ClearCache()                                           {}

func doRequest(t *testing.T, handler http.Handler, method, path string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, resp
}

func TestStartStopStatusRoutes(t *testing.T) {
	ctrl := &fakeController{state: types.StateStopped}
	srv := New(":0", ctrl, &fakeData{})
	h := srv.Handler()

	rec, resp := doRequest(t, h, http.MethodPost, "/api/v1/bot/start")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("start: code=%d resp=%+v", rec.Code, resp)
	}

	rec, resp = doRequest(t, h, http.MethodGet, "/api/v1/bot/status")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status: code=%d resp=%+v", rec.Code, resp)
	}

	rec, resp = doRequest(t, h, http.MethodPost, "/api/v1/bot/stop")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("stop: code=%d resp=%+v", rec.Code, resp)
	}
}

func TestStartConflict(t *testing.T) {
	ctrl := &fakeController{startErr: fmt.Errorf("cannot start from state running")}
	srv := New(":0", ctrl, &fakeData{})

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/bot/start")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestRunOnceRoute(t *testing.T) {
	ctrl := &fakeController{}
	srv := New(":0", ctrl, &fakeData{})

	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/bot/run-once")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("run-once: code=%d resp=%+v", rec.Code, resp)
	}
	if ctrl.runs != 1 {
		t.Errorf("controller runs = %d, want 1", ctrl.runs)
	}
}

func TestTradesRoute(t *testing.T) {
	data := &fakeData{trades: []types.Trade{{Symbol: "BTCUSD", Price: 65000, Size: 0.1}}}
	srv := New(":0", &fakeController{}, data)

	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/trades/BTCUSD?limit=10")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("trades: code=%d resp=%+v", rec.Code, resp)
	}
}

func TestTradesRouteUpstreamFailure(t *testing.T) {
	data := &fakeData{err: fmt.Errorf("feed down")}
	srv := New(":0", &fakeController{}, data)

	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/trades/AAPL")
	if rec.Code != http.StatusBadGateway || resp.Success {
		t.Errorf("expected 502 error envelope, got code=%d resp=%+v", rec.Code, resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New(":0", &fakeController{}, &fakeData{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bot/start", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
