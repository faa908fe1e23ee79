package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/strategy"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestParseExecutionReport(t *testing.T) {
	msg := json.RawMessage(`{"e":"executionReport","E":1,"s":"BTCUSDT","c":"abc","S":"BUY","o":"LIMIT","q":"0.00400000","p":"25000.00","x":"TRADE","X":"PARTIALLY_FILLED","i":4293153,"l":"0.00100000","z":"0.00150000"}`)
	fill, ok, err := parseExecutionReport(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatalf("expected execution report to be accepted")
	}
	if fill.OrderID != "4293153" {
		t.Fatalf("unexpected order id %q", fill.OrderID)
	}
	if fill.Status != strategy.OrderStatusPartiallyFilled {
		t.Fatalf("unexpected status %q", fill.Status)
	}
	if fill.LastFilledQty.String() != "0.001" || fill.CumulativeFilledQty.String() != "0.0015" {
		t.Fatalf("unexpected quantities %s %s", fill.LastFilledQty, fill.CumulativeFilledQty)
	}
	if fill.RemainingQty().String() != "0.0025" {
		t.Fatalf("unexpected remaining %s", fill.RemainingQty())
	}
}

func TestParseExecutionReportIgnoresOtherEvents(t *testing.T) {
	_, ok, err := parseExecutionReport(json.RawMessage(`{"e":"outboundAccountPosition","E":1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ok {
		t.Fatalf("expected account position event to be skipped")
	}
}

func TestParseExecutionReportRejectsBadQty(t *testing.T) {
	_, _, err := parseExecutionReport(json.RawMessage(`{"e":"executionReport","i":1,"X":"FILLED","q":"1","l":"abc","z":"1"}`))
	if err == nil {
		t.Fatalf("expected error for malformed quantity")
	}
}

func TestFillStreamDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	reports := []string{
		`{"e":"executionReport","i":7,"X":"NEW","q":"0.004","l":"0","z":"0"}`,
		`{"e":"outboundAccountPosition"}`,
		`{"e":"executionReport","i":7,"X":"PARTIALLY_FILLED","q":"0.004","l":"0.001","z":"0.001"}`,
		`{"e":"executionReport","i":7,"X":"FILLED","q":"0.004","l":"0.003","z":"0.004"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(userDataStreamPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"listenKey":"lk1"}`))
	})
	mux.HandleFunc("/ws/lk1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for _, report := range reports {
			if err := conn.Write(ctx, websocket.MessageText, []byte(report)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	restClient := rest.New(server.URL, time.Second, zap.NewNop())
	restClient.SetCredentials("key", "secret")
	wsBase := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	stream := NewFillStream(restClient, wsBase, 10*time.Millisecond, 0, zap.NewNop())

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	if err := stream.Start(runCtx); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []strategy.OrderStatus{strategy.OrderStatusNew, strategy.OrderStatusPartiallyFilled, strategy.OrderStatusFilled}
	for i, status := range want {
		select {
		case fill := <-stream.Fills():
			if fill.OrderID != "7" || fill.Status != status {
				t.Fatalf("fill %d: unexpected %+v", i, fill)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for fill %d", i)
		}
	}
}

func TestFillStreamStartFailsWithoutCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key"}`))
	}))
	defer server.Close()

	restClient := rest.New(server.URL, time.Second, zap.NewNop())
	restClient.SetCredentials("bad", "secret")
	stream := NewFillStream(restClient, "ws://127.0.0.1:1/ws", time.Millisecond, 0, zap.NewNop())
	if err := stream.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
}
