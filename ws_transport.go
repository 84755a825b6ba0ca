package syncdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPDoer abstracts the HTTP client so tests can inject a fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebSocketTransportConfig configures the combined HTTP + WebSocket
// transport.
type WebSocketTransportConfig struct {
	// ServerURL is the HTTP base URL, e.g. "http://localhost:8080".
	// Documents are fetched and stored at {ServerURL}/documents/{id}.
	ServerURL string `yaml:"server_url"`

	// WebSocketURL is the realtime endpoint, e.g. "ws://localhost:8080/ws".
	// Derived from ServerURL when empty.
	WebSocketURL string `yaml:"websocket_url"`

	// ClientID is sent as a query parameter on the websocket dial so the
	// server can route patches.
	ClientID string `yaml:"client_id"`

	// HTTPClient overrides the HTTP client. Defaults to http.DefaultClient.
	HTTPClient HTTPDoer `yaml:"-"`

	// DialTimeout bounds the websocket handshake. Default: 10s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// PingInterval is the keepalive ping period. Default: 30s.
	PingInterval time.Duration `yaml:"ping_interval"`

	// Logger is the diagnostic logger. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// WebSocketTransport talks to a sync server over HTTP for whole-document
// load/save and a websocket for realtime patch exchange.
type WebSocketTransport struct {
	cfg    WebSocketTransportConfig
	client HTTPDoer
	logger *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu        sync.Mutex
	connected bool
	onPatch   func(Patch)
	done      chan struct{}
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport builds a transport from cfg without connecting.
func NewWebSocketTransport(cfg WebSocketTransportConfig) (*WebSocketTransport, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("transport: server URL is required")
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.WebSocketURL == "" {
		ws := cfg.ServerURL
		ws = strings.Replace(ws, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		cfg.WebSocketURL = ws + "/ws"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocketTransport{
		cfg:    cfg,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}, nil
}

// Connect dials the websocket endpoint and starts the read and ping loops.
func (t *WebSocketTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	url := t.cfg.WebSocketURL
	if t.cfg.ClientID != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "clientId=" + t.cfg.ClientID
	}
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	t.conn = conn
	t.connected = true
	t.done = make(chan struct{})
	go t.readLoop(conn, t.done)
	go t.pingLoop(conn, t.done)
	t.logger.Info("transport connected", "url", t.cfg.WebSocketURL)
	return nil
}

// Close shuts the websocket down.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	close(t.done)
	return t.conn.Close()
}

// Connected reports whether the websocket is up.
func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// RegisterPatchReceived installs the handler for pushed patches.
func (t *WebSocketTransport) RegisterPatchReceived(fn func(Patch)) {
	t.mu.Lock()
	t.onPatch = fn
	t.mu.Unlock()
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				t.logger.Warn("websocket read failed", "error", err)
				t.mu.Lock()
				t.connected = false
				t.mu.Unlock()
			}
			return
		}
		p, err := DecodeWirePatch(data)
		if err != nil {
			t.logger.Warn("dropping malformed patch frame", "error", err)
			continue
		}
		t.mu.Lock()
		fn := t.onPatch
		t.mu.Unlock()
		if fn != nil {
			fn(p)
		}
	}
}

func (t *WebSocketTransport) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Warn("websocket ping failed", "error", err)
				t.mu.Lock()
				t.connected = false
				t.mu.Unlock()
				return
			}
		}
	}
}

func (t *WebSocketTransport) documentURL(documentID string) string {
	return t.cfg.ServerURL + "/documents/" + documentID
}

// LoadDocument fetches a document over HTTP in the background.
func (t *WebSocketTransport) LoadDocument(documentID string, onLoaded func(DocumentData), onError func(string, error)) {
	go func() {
		req, err := http.NewRequest(http.MethodGet, t.documentURL(documentID), nil)
		if err != nil {
			onError(documentID, err)
			return
		}
		resp, err := t.client.Do(req)
		if err != nil {
			onError(documentID, fmt.Errorf("load document: %w", err))
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			onError(documentID, fmt.Errorf("load document: %w", err))
			return
		}
		if resp.StatusCode != http.StatusOK {
			onError(documentID, fmt.Errorf("load document: server returned %d", resp.StatusCode))
			return
		}
		var data DocumentData
		if err := json.Unmarshal(body, &data); err != nil {
			onError(documentID, fmt.Errorf("load document: %w", err))
			return
		}
		if data.DocumentID == "" {
			data.DocumentID = documentID
		}
		onLoaded(data)
	}()
}

// SaveDocument stores a document over HTTP in the background.
func (t *WebSocketTransport) SaveDocument(doc DocumentData, onSaved func(string), onError func(string, error)) {
	go func() {
		payload, err := json.Marshal(doc)
		if err != nil {
			onError(doc.DocumentID, err)
			return
		}
		req, err := http.NewRequest(http.MethodPut, t.documentURL(doc.DocumentID), bytes.NewReader(payload))
		if err != nil {
			onError(doc.DocumentID, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			onError(doc.DocumentID, fmt.Errorf("save document: %w", err))
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
			onError(doc.DocumentID, fmt.Errorf("save document: server returned %d", resp.StatusCode))
			return
		}
		onSaved(doc.DocumentID)
	}()
}

// SendPatch pushes a patch over the websocket in the background. The ack
// fires once the frame is written; delivery guarantees are the server's.
func (t *WebSocketTransport) SendPatch(p Patch, onAck func(string), onError func(string, error)) {
	go func() {
		data, err := EncodeWirePatch(p)
		if err != nil {
			onError(p.DocumentID, err)
			return
		}
		t.mu.Lock()
		conn, connected := t.conn, t.connected
		t.mu.Unlock()
		if !connected {
			onError(p.DocumentID, fmt.Errorf("send patch: transport not connected"))
			return
		}
		t.writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, data)
		t.writeMu.Unlock()
		if err != nil {
			onError(p.DocumentID, fmt.Errorf("send patch: %w", err))
			return
		}
		onAck(p.DocumentID)
	}()
}
