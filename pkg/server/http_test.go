package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/gocollab/pkg/protocol"
	"github.com/NicolasHaas/gocollab/pkg/vm"
)

func newWSTestServer(t *testing.T, bans Banner, httpCfg HTTPConfig) (*httptest.Server, *Metrics) {
	t.Helper()
	cfg := DefaultConfig()
	metrics := NewMetrics()
	coord := NewCoordinator(cfg, CoordinatorDeps{Machine: vm.NewPattern(16, 16), Metrics: metrics})

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(cancel)

	if httpCfg.SendQueue == 0 {
		httpCfg.SendQueue = 64
	}
	srv := httptest.NewServer(NewWSHandler(coord, bans, metrics, httpCfg))
	t.Cleanup(srv.Close)
	return srv, metrics
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{protocol.ProtocolText}, HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.Dial(wsURL(srv), header)
	if ws != nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

// readUntil reads instructions until one with the given opcode arrives.
func readUntil(t *testing.T, ws *websocket.Conn, opcode string) []string {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", opcode, err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		el, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("server sent bad frame %q: %v", data, err)
		}
		if el[0] == opcode {
			return el
		}
	}
}

func TestWebSocketJoin(t *testing.T) {
	srv, _ := newWSTestServer(t, nil, HTTPConfig{})
	ws, _, err := dialWS(t, srv, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if got := ws.Subprotocol(); got != protocol.ProtocolText {
		t.Errorf("subprotocol = %q", got)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(protocol.Encode("connect", "vm0"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if diff := cmp.Diff([]string{"connect", "1", "1", "1", "0"}, readUntil(t, ws, "connect")); diff != "" {
		t.Errorf("connect reply (-want +got):\n%s", diff)
	}
	if got := readUntil(t, ws, "size"); got[2] != "16" || got[3] != "16" {
		t.Errorf("size = %v", got)
	}
}

func TestWebSocketMalformedFrameCloses(t *testing.T) {
	srv, metrics := newWSTestServer(t, nil, HTTPConfig{})
	ws, _, err := dialWS(t, srv, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("4.chat,99.x;")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	if got := metrics.MalformedFrames.Load(); got != 1 {
		t.Errorf("malformed frames = %d, want 1", got)
	}
}

func TestWebSocketRejections(t *testing.T) {
	bans := &fakeBanner{banned: map[string]bool{"127.0.0.1": true}}

	tests := []struct {
		name     string
		bans     Banner
		cfg      HTTPConfig
		header   http.Header
		protocol []string
		want     int
	}{
		{"no subprotocol", nil, HTTPConfig{}, nil, nil, http.StatusBadRequest},
		{"banned", bans, HTTPConfig{}, nil, []string{protocol.ProtocolText}, http.StatusForbidden},
		{"origin not allowed", nil, HTTPConfig{AllowedOrigins: []string{"vm.example.com"}},
			http.Header{"Origin": {"https://evil.example.com"}}, []string{protocol.ProtocolText}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newWSTestServer(t, tt.bans, tt.cfg)
			dialer := websocket.Dialer{Subprotocols: tt.protocol, HandshakeTimeout: 5 * time.Second}
			ws, resp, err := dialer.Dial(wsURL(srv), tt.header)
			if err == nil {
				_ = ws.Close()
				t.Fatal("Dial succeeded")
			}
			if resp == nil {
				t.Fatalf("no HTTP response: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestWebSocketAllowedOrigin(t *testing.T) {
	srv, _ := newWSTestServer(t, nil, HTTPConfig{AllowedOrigins: []string{"vm.example.com"}})
	if _, _, err := dialWS(t, srv, http.Header{"Origin": {"https://VM.example.com:8443"}}); err != nil {
		t.Fatalf("Dial with allowed origin: %v", err)
	}
}
