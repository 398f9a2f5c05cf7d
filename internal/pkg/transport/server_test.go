package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/endorses/mtmon/internal/pkg/monitor"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
	"github.com/endorses/mtmon/internal/pkg/tlsutil"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type selection struct {
	session string
	iface   string
}

type fakeLifecycle struct {
	hub *Hub

	mu           sync.Mutex
	connected    []string
	selected     []selection
	disconnected []string
	ifaces       []source.Interface
}

func (f *fakeLifecycle) Connect(id string) {
	f.mu.Lock()
	f.connected = append(f.connected, id)
	f.mu.Unlock()
	f.hub.Emit(id, monitor.EventConnected, monitor.Connected{Msg: "ok"})
}

func (f *fakeLifecycle) SelectInterface(id, ifaceID string) {
	f.mu.Lock()
	f.selected = append(f.selected, selection{session: id, iface: ifaceID})
	f.mu.Unlock()
	f.hub.Emit(id, monitor.EventIfaceSelected, monitor.IfaceSelected{Iface: ifaceID})
}

func (f *fakeLifecycle) Disconnect(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
}

func (f *fakeLifecycle) Interfaces(context.Context) []source.Interface {
	if f.ifaces == nil {
		return []source.Interface{}
	}
	return f.ifaces
}

func (f *fakeLifecycle) DeviceConfig() monitor.DeviceConfig {
	return monitor.DeviceConfig{RouterIP: "192.0.2.1", PollInterval: 1000}
}

func (f *fakeLifecycle) snapshot() (connected, disconnected []string, selected []selection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connected...),
		append([]string(nil), f.disconnected...),
		append([]selection(nil), f.selected...)
}

type testServer struct {
	srv       *Server
	http      *httptest.Server
	lifecycle *fakeLifecycle
	metrics   *telemetry.Metrics
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	metrics := telemetry.New()
	hub := NewHub(8, metrics)
	lc := &fakeLifecycle{hub: hub}
	srv := NewServer(cfg, lc, hub, metrics)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		ts.Close()
	})
	return &testServer{srv: srv, http: ts, lifecycle: lc, metrics: metrics}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWS_ConnectAck(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := ts.dial(t)

	f := readFrame(t, conn)
	assert.Equal(t, "connected", f.Event)
	assert.JSONEq(t, `{"msg":"ok"}`, string(f.Data))

	connected, _, _ := ts.lifecycle.snapshot()
	require.Len(t, connected, 1)
	assert.Len(t, connected[0], 36, "session ids are UUIDs")
}

func TestWS_SelectIface(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := ts.dial(t)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "select_iface",
		"data":  map[string]any{"iface": "3"},
	}))

	f := readFrame(t, conn)
	assert.Equal(t, "iface_selected", f.Event)
	assert.JSONEq(t, `{"iface":"3"}`, string(f.Data))

	connected, _, selected := ts.lifecycle.snapshot()
	require.Len(t, selected, 1)
	assert.Equal(t, selection{session: connected[0], iface: "3"}, selected[0])
}

func TestWS_IgnoresUnknownAndMalformedFrames(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := ts.dial(t)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "subscribe"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "select_iface", "data": map[string]any{"iface": 7}}))

	f := readFrame(t, conn)
	assert.Equal(t, "iface_selected", f.Event)
	assert.JSONEq(t, `{"iface":"7"}`, string(f.Data))
}

func TestWS_CloseDisconnects(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := ts.dial(t)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool {
		_, disconnected, _ := ts.lifecycle.snapshot()
		return len(disconnected) == 1
	}, 2*time.Second, 5*time.Millisecond)

	connected, disconnected, _ := ts.lifecycle.snapshot()
	assert.Equal(t, connected, disconnected)
	assert.Eventually(t, func() bool { return ts.srv.hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWS_SessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t, Config{})
	a := ts.dial(t)
	readFrame(t, a)
	b := ts.dial(t)
	readFrame(t, b)

	require.NoError(t, a.WriteJSON(map[string]any{"event": "select_iface", "data": map[string]any{"iface": "1"}}))
	f := readFrame(t, a)
	assert.Equal(t, "iface_selected", f.Event)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "the other viewer receives nothing")
}

func TestStop_ClosesViewers(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := ts.dial(t)
	readFrame(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.srv.Stop(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, disconnected, _ := ts.lifecycle.snapshot()
	assert.Len(t, disconnected, 1)
}

func TestAPI_Interfaces(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.lifecycle.ifaces = []source.Interface{{ID: "1", Name: "ether1"}, {ID: "2", Name: "wlan1"}}

	body := get(t, ts.http.URL+"/api/interfaces")
	assert.JSONEq(t, `[{"id":"1","name":"ether1"},{"id":"2","name":"wlan1"}]`, body)
}

func TestAPI_InterfacesEmpty(t *testing.T) {
	ts := newTestServer(t, Config{})

	assert.JSONEq(t, `[]`, get(t, ts.http.URL+"/api/interfaces"))
}

func TestAPI_Config(t *testing.T) {
	ts := newTestServer(t, Config{})

	assert.JSONEq(t, `{"router_ip":"192.0.2.1","poll_interval":1000}`, get(t, ts.http.URL+"/api/config"))
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.http.URL+"/api/config", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{})

	assert.JSONEq(t, `{"status":"ok","viewers":0}`, get(t, ts.http.URL+"/healthz"))
	assert.Contains(t, get(t, ts.http.URL+"/metrics"), "mtmon_sessions_active")
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dashboard</h1>"), 0o600))
	ts := newTestServer(t, Config{StaticDir: dir})

	assert.Contains(t, get(t, ts.http.URL+"/"), "dashboard")
}

func TestStartStop(t *testing.T) {
	hub := NewHub(0, nil)
	srv := NewServer(Config{Listen: "127.0.0.1:0"}, &fakeLifecycle{hub: hub}, hub, nil)
	require.NoError(t, srv.Start())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	assert.JSONEq(t, `{"status":"ok","viewers":0}`, get(t, "http://"+srv.Addr()+"/healthz"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}

func TestStartTLS(t *testing.T) {
	tlsCfg, err := tlsutil.BuildServerConfig(tlsutil.ServerConfig{SelfSigned: true})
	require.NoError(t, err)

	hub := NewHub(0, nil)
	srv := NewServer(Config{Listen: "127.0.0.1:0", TLS: tlsCfg}, &fakeLifecycle{hub: hub}, hub, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	// #nosec G402 -- self-signed test certificate
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := client.Get("https://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	dialer := websocket.Dialer{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	conn, wsResp, err := dialer.Dial("wss://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	if wsResp != nil && wsResp.Body != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()
	assert.Equal(t, "connected", readFrame(t, conn).Event)
}

func TestHub_DropsWhenFullOrGone(t *testing.T) {
	metrics := telemetry.New()
	hub := NewHub(1, metrics)
	c := hub.register(context.Background(), "s1", nil)

	hub.Emit("s1", "metrics", map[string]int{"n": 1})
	hub.Emit("s1", "metrics", map[string]int{"n": 2})
	hub.Emit("ghost", "metrics", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DroppedTotal))
	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"event":"metrics","data":{"n":1}}`, string(<-c.send))

	hub.unregister("s1")
	assert.Equal(t, 0, hub.Len())
	assert.Error(t, c.ctx.Err())
}

func TestParseSelect(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"string", `{"iface":"12"}`, "12"},
		{"number", `{"iface":12}`, "12"},
		{"null", `{"iface":null}`, ""},
		{"empty string", `{"iface":""}`, ""},
		{"missing", `{}`, ""},
		{"no data", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelect(json.RawMessage(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseSelect(json.RawMessage(`{"iface":true}`))
	assert.Error(t, err)
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
