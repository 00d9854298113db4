package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justmert/near-oracle/pkg/feeder/scheduler"
	"github.com/justmert/near-oracle/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 64
	maxClientFrame = 4 << 10
)

// Stream message types.
const (
	MessageSnapshot    = "snapshot"
	MessagePriceUpdate = "price_update"
	MessagePong        = "pong"
	MessageError       = "error"
)

// ClientMessage is a request sent by a stream client.
type ClientMessage struct {
	Type   string   `json:"type"`   // "subscribe", "unsubscribe" or "ping"
	Assets []string `json:"assets"` // asset ids; empty or ["*"] means every asset
}

// StreamMessage is sent to stream clients. A snapshot carries the latest
// price of every subscribed asset; a price_update carries one publication.
type StreamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Prices    []PriceData `json:"prices,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// PriceData is a published asset price.
type PriceData struct {
	AssetID    string    `json:"asset_id"`
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	Multiplier uint64    `json:"multiplier"`
	Decimals   uint8     `json:"decimals"`
	Sources    int       `json:"sources"`
	CycleID    string    `json:"cycle_id"`
	Published  time.Time `json:"published"`
}

func newPriceData(p scheduler.Publication) PriceData {
	return PriceData{
		AssetID:    p.AssetID,
		Symbol:     p.Symbol,
		Price:      p.Encoded.String(),
		Multiplier: p.Encoded.Mantissa,
		Decimals:   p.Encoded.Decimals,
		Sources:    p.Sources,
		CycleID:    p.CycleID,
		Published:  p.Timestamp,
	}
}

// subscription is the set of asset ids a client follows.
type subscription struct {
	all    bool
	assets map[string]struct{}
}

func newSubscription() subscription {
	return subscription{all: true, assets: make(map[string]struct{})}
}

func (s subscription) matches(assetID string) bool {
	if s.all {
		return true
	}
	_, ok := s.assets[assetID]
	return ok
}

func wildcard(assets []string) bool {
	return len(assets) == 0 || (len(assets) == 1 && assets[0] == "*")
}

func (s *subscription) add(assets []string) {
	if wildcard(assets) {
		s.all = true
		s.assets = make(map[string]struct{})
		return
	}
	s.all = false
	for _, id := range assets {
		s.assets[id] = struct{}{}
	}
}

func (s *subscription) remove(assets []string) {
	if wildcard(assets) {
		s.all = false
		s.assets = make(map[string]struct{})
		return
	}
	for _, id := range assets {
		delete(s.assets, id)
	}
}

// WebSocketServer streams publications to connected clients. Every new
// client starts subscribed to all assets and immediately receives a snapshot
// of the latest published prices.
type WebSocketServer struct {
	addr     string
	logger   *logging.Logger
	upgrader websocket.Upgrader
	updates  chan scheduler.Publication

	// mu guards clients, every client's subscription and latest.
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	latest  map[string]PriceData

	ctx    context.Context
	cancel context.CancelFunc
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	sub  subscription
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(addr string, logger *logging.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketServer{
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		updates: make(chan scheduler.Publication, 100),
		clients: make(map[*streamClient]struct{}),
		latest:  make(map[string]PriceData),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler serving /ws.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves the stream and blocks until Stop is called.
func (s *WebSocketServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.dispatch()

	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error", "error", err)
		}
	}()

	<-s.ctx.Done()

	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop stops the WebSocket server.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// SendUpdate queues a publication for delivery. It never blocks the caller
// for more than a short grace period.
func (s *WebSocketServer) SendUpdate(p scheduler.Publication) {
	select {
	case s.updates <- p:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Stream queue full, dropping publication", "asset", p.AssetID)
	}
}

// dispatch delivers queued publications until the server stops.
func (s *WebSocketServer) dispatch() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-s.updates:
			s.deliver(p)
		}
	}
}

// deliver records p as the latest price of its asset and sends it to every
// client subscribed to that asset. Clients whose buffer is full are dropped.
func (s *WebSocketServer) deliver(p scheduler.Publication) {
	data := newPriceData(p)
	frame, err := encodeFrame(MessagePriceUpdate, []PriceData{data})
	if err != nil {
		s.logger.Error("Failed to encode price update", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[p.AssetID] = data
	for c := range s.clients {
		if c.sub.matches(p.AssetID) {
			s.enqueueLocked(c, frame)
		}
	}
}

// enqueueLocked queues frame for c. A client whose buffer is full is
// disconnected. Frames are only queued for registered clients, so a closed
// send channel is never written. s.mu must be held.
func (s *WebSocketServer) enqueueLocked(c *streamClient, frame []byte) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		s.logger.Warn("Stream client too slow, disconnecting", "clients", len(s.clients)-1)
		delete(s.clients, c)
		c.close()
	}
}

// snapshotLocked returns the latest prices matching sub, sorted by asset id.
// s.mu must be held.
func (s *WebSocketServer) snapshotLocked(sub subscription) []PriceData {
	out := make([]PriceData, 0, len(s.latest))
	for id, p := range s.latest {
		if sub.matches(id) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		sub:  newSubscription(),
	}

	// Registration and the initial snapshot happen under one lock so no
	// publication falls between them.
	s.mu.Lock()
	s.clients[c] = struct{}{}
	if frame, err := encodeFrame(MessageSnapshot, s.snapshotLocked(c.sub)); err == nil {
		s.enqueueLocked(c, frame)
	}
	s.mu.Unlock()

	go s.writeLoop(c)
	go s.readLoop(c)

	s.logger.Info("Stream client connected", "remote", conn.RemoteAddr())
}

func (s *WebSocketServer) removeClient(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *WebSocketServer) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("Stream write failed", "remote", c.conn.RemoteAddr(), "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketServer) readLoop(c *streamClient) {
	defer func() {
		s.removeClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Stream client error", "error", err)
			}
			return
		}
		s.handleClientMessage(c, data)
	}
}

// handleClientMessage applies a client request and queues the reply, if
// any. A subscribe is answered with a snapshot of the requested assets.
func (s *WebSocketServer) handleClientMessage(c *streamClient, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.enqueueLocked(c, errorFrame("invalid message"))
		return
	}

	switch msg.Type {
	case "subscribe":
		c.sub.add(msg.Assets)
		requested := newSubscription()
		if !wildcard(msg.Assets) {
			requested.add(msg.Assets)
		}
		if frame, err := encodeFrame(MessageSnapshot, s.snapshotLocked(requested)); err == nil {
			s.enqueueLocked(c, frame)
		}
	case "unsubscribe":
		c.sub.remove(msg.Assets)
	case "ping":
		if frame, err := encodeFrame(MessagePong, nil); err == nil {
			s.enqueueLocked(c, frame)
		}
	default:
		s.enqueueLocked(c, errorFrame("unknown message type: "+msg.Type))
	}
}

func encodeFrame(kind string, prices []PriceData) ([]byte, error) {
	return json.Marshal(StreamMessage{Type: kind, Timestamp: time.Now().UTC(), Prices: prices})
}

func errorFrame(reason string) []byte {
	frame, _ := json.Marshal(StreamMessage{Type: MessageError, Timestamp: time.Now().UTC(), Error: reason})
	return frame
}
