package partysync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

const (
	// first byte of the server's handshake reply frame
	wsAccepted byte = 0
	wsRejected byte = 1

	defaultWSHandshakeTimeout = 5 * time.Second
	defaultWSSendQueue        = 256
	wsWriteTimeout            = 5 * time.Second
)

// WebSocketConfig configures both ends of the WebSocket transport.
type WebSocketConfig struct {
	// OriginPatterns is passed to websocket.AcceptOptions.
	OriginPatterns   []string
	HandshakeTimeout time.Duration
	// SendQueue bounds the frames buffered per connection. A reliable send
	// into a full queue closes the connection; an unreliable one is dropped.
	SendQueue int
	Logger    zerolog.Logger
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultWSHandshakeTimeout
	}
	if c.SendQueue <= 0 {
		c.SendQueue = defaultWSSendQueue
	}
	return c
}

// WebSocketTransport accepts party connections over WebSocket. Mount it as
// an http.Handler; the first binary frame a client sends is its connect
// request and the server answers with an accept or reject frame.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	logger zerolog.Logger
	queue  eventQueue

	ctx    context.Context
	cancel context.CancelFunc
	nextID atomic.Uint32

	mu     sync.Mutex
	peers  map[PeerID]*wsPeer
	closed bool
}

var (
	_ Transport    = (*WebSocketTransport)(nil)
	_ http.Handler = (*WebSocketTransport)(nil)
)

func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketTransport{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[PeerID]*wsPeer),
	}
}

func (t *WebSocketTransport) PollEvents(h EventHandler) {
	t.queue.drain(h)
}

func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: t.cfg.OriginPatterns,
	})
	if err != nil {
		t.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("[ws] upgrade failed")
		return
	}
	conn.SetReadLimit(common.MaxFrameSize)

	hctx, cancel := context.WithTimeout(t.ctx, t.cfg.HandshakeTimeout)
	typ, data, err := conn.Read(hctx)
	cancel()
	if err != nil || typ != websocket.MessageBinary {
		t.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("[ws] no connect request")
		conn.Close(websocket.StatusPolicyViolation, "expected connect request")
		return
	}

	if t.isClosed() {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	req := &wsRequest{
		transport: t,
		conn:      conn,
		data:      data,
		decision:  make(chan *wsPeer, 1),
	}
	t.queue.push(transportEvent{kind: eventRequest, req: req})

	var peer *wsPeer
	select {
	case peer = <-req.decision:
	case <-t.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	if peer == nil {
		frame := append([]byte{wsRejected}, req.reject...)
		wctx, cancel := context.WithTimeout(t.ctx, wsWriteTimeout)
		_ = conn.Write(wctx, websocket.MessageBinary, frame)
		cancel()
		conn.Close(websocket.StatusPolicyViolation, "rejected")
		return
	}
	t.run(peer, r.RemoteAddr)
}

func (t *WebSocketTransport) run(p *wsPeer, remote string) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()

	go func() {
		if err := p.writeLoop(ctx); err != nil {
			t.logger.Debug().Err(err).Uint32("peer", uint32(p.id)).Msg("[ws] write failed")
		}
		p.shutdown(websocket.StatusNormalClosure, "")
		cancel()
	}()

	err := p.readLoop(ctx, func(data []byte) {
		t.queue.push(transportEvent{kind: eventMessage, peer: p, data: data})
	})
	if err != nil && !isNormalClose(err) {
		t.logger.Debug().Err(err).Str("remote", remote).Msg("[ws] read failed")
	}
	p.shutdown(websocket.StatusNormalClosure, "")

	t.mu.Lock()
	delete(t.peers, p.id)
	t.mu.Unlock()
	t.queue.push(transportEvent{kind: eventDisconnected, peer: p})
}

func (t *WebSocketTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close disconnects every peer and refuses new upgrades.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peers := make([]*wsPeer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	for _, p := range peers {
		p.shutdown(websocket.StatusGoingAway, "shutting down")
	}
	t.cancel()
	return nil
}

type wsRequest struct {
	transport *WebSocketTransport
	conn      *websocket.Conn
	data      []byte
	decision  chan *wsPeer

	peer   *wsPeer
	reject []byte
	done   bool
}

func (r *wsRequest) Data() []byte {
	return r.data
}

func (r *wsRequest) Accept() Peer {
	if r.done {
		return r.peer
	}
	r.done = true
	t := r.transport
	p := &wsPeer{
		id:     PeerID(t.nextID.Add(1)),
		wsLink: newWSLink(r.conn, t.cfg.SendQueue),
	}
	// the accept marker precedes anything the server sends next
	p.send <- []byte{wsAccepted}

	t.mu.Lock()
	t.peers[p.id] = p
	t.mu.Unlock()

	r.peer = p
	r.decision <- p
	return p
}

func (r *wsRequest) Reject(data []byte) {
	if r.done {
		return
	}
	r.done = true
	r.reject = slices.Clone(data)
	r.decision <- nil
}

func (r *wsRequest) accepted() (Peer, bool) {
	if r.peer == nil {
		return nil, false
	}
	return r.peer, true
}

func (r *wsRequest) decided() bool {
	return r.done
}

type wsPeer struct {
	id PeerID
	*wsLink
}

func (p *wsPeer) ID() PeerID {
	return p.id
}

func (p *wsPeer) Send(data []byte, method DeliveryMethod) error {
	return p.enqueue(data, method)
}

func (p *wsPeer) Close() error {
	p.shutdown(websocket.StatusNormalClosure, "")
	return nil
}

// wsLink pumps frames for one WebSocket connection on either side.
type wsLink struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSLink(conn *websocket.Conn, queue int) *wsLink {
	return &wsLink{
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (l *wsLink) enqueue(data []byte, method DeliveryMethod) error {
	select {
	case <-l.done:
		return common.ErrPeerClosed
	default:
	}

	select {
	case l.send <- slices.Clone(data):
		return nil
	default:
	}
	if method == Unreliable {
		return nil
	}
	l.shutdown(websocket.StatusPolicyViolation, "send buffer full")
	return common.ErrSendBufferFull
}

func (l *wsLink) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return nil
		case frame := <-l.send:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := l.conn.Write(wctx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (l *wsLink) readLoop(ctx context.Context, fn func(data []byte)) error {
	for {
		typ, data, err := l.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		fn(data)
	}
}

func (l *wsLink) shutdown(code websocket.StatusCode, reason string) {
	l.closeOnce.Do(func() {
		close(l.done)
		// Close waits for the peer's close frame
		go l.conn.Close(code, reason)
	})
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// WebSocketDialer connects to a party over WebSocket. Without URL the
// address is taken from the join secret.
type WebSocketDialer struct {
	URL    string
	Path   string
	Secure bool
	Config WebSocketConfig
}

var _ Dialer = WebSocketDialer{}

func (d WebSocketDialer) endpoint(secret proto.JoinSecret) (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if !secret.Addr.IsValid() {
		return "", common.ErrInvalidAddress
	}
	u := url.URL{Scheme: "ws", Host: secret.Addr.String(), Path: d.Path}
	if d.Secure {
		u.Scheme = "wss"
	}
	if u.Path == "" {
		u.Path = "/party"
	}
	return u.String(), nil
}

func (d WebSocketDialer) Dial(ctx context.Context, secret proto.JoinSecret, request []byte) (Conn, error) {
	cfg := d.Config.withDefaults()
	endpoint, err := d.endpoint(secret)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(common.MaxFrameSize + 1)

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.Write(hctx, websocket.MessageBinary, request); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send connect request: %w", err)
	}
	_, reply, err := conn.Read(hctx)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	if len(reply) == 0 {
		conn.CloseNow()
		return nil, fmt.Errorf("read handshake reply: %w", common.ErrShortBuffer)
	}
	if reply[0] == wsRejected {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, rejectErrorFrom(reply[1:])
	}

	c := &WebSocketConn{wsLink: newWSLink(conn, cfg.SendQueue), logger: cfg.Logger}
	go c.run()
	cfg.Logger.Debug().Str("url", endpoint).Msg("[ws] connected")
	return c, nil
}

// WebSocketConn is the client side of a WebSocket party connection.
type WebSocketConn struct {
	*wsLink
	logger zerolog.Logger

	mu    sync.Mutex
	inbox [][]byte
	err   error
}

var _ Conn = (*WebSocketConn)(nil)

func (c *WebSocketConn) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := c.writeLoop(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("[ws] write failed")
		}
		c.shutdown(websocket.StatusNormalClosure, "")
		cancel()
	}()

	err := c.readLoop(ctx, func(data []byte) {
		c.mu.Lock()
		c.inbox = append(c.inbox, data)
		c.mu.Unlock()
	})
	if err != nil && !isNormalClose(err) {
		c.logger.Debug().Err(err).Msg("[ws] read failed")
	}
	c.shutdown(websocket.StatusNormalClosure, "")

	c.mu.Lock()
	c.err = common.ErrPeerClosed
	c.mu.Unlock()
}

func (c *WebSocketConn) Send(data []byte, method DeliveryMethod) error {
	return c.enqueue(data, method)
}

func (c *WebSocketConn) Poll(fn func(data []byte)) error {
	c.mu.Lock()
	frames := c.inbox
	c.inbox = nil
	err := c.err
	c.mu.Unlock()

	for _, f := range frames {
		fn(f)
	}
	return err
}

func (c *WebSocketConn) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "")
	return nil
}
