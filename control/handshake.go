package control

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connectRetries and connectBackoff implement connect_to_server's fixed
// backoff: 5 attempts, 1 s apart.
const (
	connectRetries = 5
	connectBackoff = time.Second
)

// acceptPollSlice is accept_connection's inner poll granularity: the overall
// caller timeout is serviced in 1 s slices so a blocked Accept stays
// cancellation-responsive.
const acceptPollSlice = time.Second

// State is one of the connection-state machine's members.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config carries the ambient stack (logging, tracing, metrics) and addressing
// attributes attached to every connection opened through this package.
type Config struct {
	Node    string
	Service string

	MessageTimeout time.Duration

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

func (c Config) withDefaults() Config {
	if c.MessageTimeout == 0 {
		c.MessageTimeout = 5 * time.Second
	}
	return c
}

// Connection is one endpoint of a control-channel byte stream, driven through
// DISCONNECTED -> CONNECTING -> CONNECTED -> {ERROR, DISCONNECTED}.
type Connection struct {
	conn        net.Conn
	id          ConnectionID
	cfg         Config
	isInitiator bool

	mu    sync.Mutex
	state atomic.Int32
	err   error

	peerAddr string
}

func newConnection(conn net.Conn, cfg Config, isInitiator bool) *Connection {
	c := &Connection{
		conn:        conn,
		id:          newConnectionID(),
		cfg:         cfg.withDefaults(),
		isInitiator: isInitiator,
		peerAddr:    conn.RemoteAddr().String(),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the connection's correlation identifier.
func (c *Connection) ID() ConnectionID { return c.id }

// State reports the connection's current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// PeerAddress reports the remote endpoint's address, recorded on connect.
func (c *Connection) PeerAddress() string { return c.peerAddr }

func (c *Connection) logf(format string, args ...any) {
	if c.cfg.StructuredLogger != nil {
		c.cfg.StructuredLogger.Debugw(fmt.Sprintf(format, args...), "connection_id", c.id.String())
		return
	}
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debugf(format, args...)
	}
}

func (c *Connection) enterError(err error) error {
	c.state.Store(int32(StateError))
	c.err = err
	return err
}

// send serializes and writes one frame. The control channel's public
// operations are fully serialized within one endpoint.
func (c *Connection) send(m Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateError {
		return ErrClosed
	}
	if err := sendMessage(c.conn, m, c.cfg.MessageTimeout); err != nil {
		return c.enterError(err)
	}
	return nil
}

// recv blocks up to timeout for the next frame.
func (c *Connection) recv(timeout time.Duration) (Msg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateError {
		return Msg{}, ErrClosed
	}
	m, err := receiveMessage(c.conn, timeout)
	if err != nil {
		return Msg{}, c.enterError(err)
	}
	return m, nil
}

// SendReady transmits a READY frame without waiting for a reply.
func (c *Connection) SendReady() error {
	return c.send(Msg{Type: MsgReady})
}

// WaitReady blocks for the peer's READY frame.
func (c *Connection) WaitReady(timeout time.Duration) error {
	m, err := c.recv(timeout)
	if err != nil {
		return err
	}
	if m.Type != MsgReady {
		return c.enterError(ErrHandshakeMismatch)
	}
	return nil
}

// CompleteHandshake performs step 8 of the connection protocol: the
// initiator sends READY then waits for the acceptor's READY; the acceptor
// waits first, then replies. On success the connection is marked CONNECTED.
func (c *Connection) CompleteHandshake(timeout time.Duration) (err error) {
	span := startSpan(c.cfg.Tracer, "control.complete_handshake",
		logKV("node", c.cfg.Node), logKV("service", c.cfg.Service), logKV("initiator", c.isInitiator))
	defer func() { endSpan(span, err) }()

	if c.isInitiator {
		if err = c.SendReady(); err != nil {
			return err
		}
		if err = c.WaitReady(timeout); err != nil {
			return err
		}
	} else {
		if err = c.WaitReady(timeout); err != nil {
			return err
		}
		if err = c.SendReady(); err != nil {
			return err
		}
	}
	c.state.Store(int32(StateConnected))
	c.logf("control: handshake complete peer=%s", c.peerAddr)
	spanAddEvent(span, "handshake_complete", logKV("peer", c.peerAddr))
	return nil
}

// Respond sends the acceptor's CONNECT_RESPONSE (step 5).
func (c *Connection) Respond(accept bool, local QPInfo) error {
	return c.send(Msg{Type: MsgConnectResponse, Accept: accept, QPInfo: local})
}

// SendError transmits an ERROR frame and transitions the channel to ERROR.
func (c *Connection) SendError(text string) error {
	_ = c.send(Msg{Type: MsgError, Err: text})
	return c.enterError(fmt.Errorf("control: %s", text))
}

// Close releases the underlying transport. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateError {
		c.state.Store(int32(StateDisconnected))
	}
	return c.conn.Close()
}

// dial implements connect_to_server's fixed backoff: 5 attempts, 1 s apart.
func dial(network, addr string, dialTimeout time.Duration) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < connectRetries; attempt++ {
		conn, err := net.DialTimeout(network, addr, dialTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < connectRetries-1 {
			time.Sleep(connectBackoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
}

// Dial performs steps 2 and 3 of the connection protocol: it connects to
// addr with connect_to_server's retry policy, sends a CONNECT_REQUEST
// carrying local, and returns once the acceptor's CONNECT_RESPONSE arrives.
// A response with accept=false yields ErrRejected; the caller still gets the
// remote QPInfo the acceptor attached, for diagnostics.
func Dial(network, addr string, cfg Config, local QPInfo) (conn *Connection, peer QPInfo, err error) {
	cfg = cfg.withDefaults()
	span := startSpan(cfg.Tracer, "control.dial", logKV("node", cfg.Node), logKV("service", cfg.Service))
	defer func() { endSpan(span, err) }()

	if cfg.Metrics != nil {
		cfg.Metrics.DialStarted(metricAttrs(cfg.Node, cfg.Service))
	}

	rawConn, err := dial(network, addr, cfg.MessageTimeout)
	if err != nil {
		spanRecordError(span, err)
		if cfg.Metrics != nil {
			cfg.Metrics.DialFailed(err, metricAttrs(cfg.Node, cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}

	c := newConnection(rawConn, cfg, true)
	if err = c.send(Msg{Type: MsgConnectRequest, QPInfo: local}); err != nil {
		rawConn.Close()
		spanRecordError(span, err)
		if cfg.Metrics != nil {
			cfg.Metrics.DialFailed(err, metricAttrs(cfg.Node, cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}

	resp, err := c.recv(cfg.MessageTimeout)
	if err != nil {
		rawConn.Close()
		spanRecordError(span, err)
		if cfg.Metrics != nil {
			cfg.Metrics.DialFailed(err, metricAttrs(cfg.Node, cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}
	if resp.Type != MsgConnectResponse {
		rawConn.Close()
		err = c.enterError(ErrHandshakeMismatch)
		spanRecordError(span, err)
		if cfg.Metrics != nil {
			cfg.Metrics.DialFailed(err, metricAttrs(cfg.Node, cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}
	if !resp.Accept {
		rawConn.Close()
		err = ErrRejected
		spanRecordError(span, err)
		if cfg.Metrics != nil {
			cfg.Metrics.DialFailed(err, metricAttrs(cfg.Node, cfg.Service, logKV("error", err)))
		}
		return nil, resp.QPInfo, err
	}

	if cfg.Metrics != nil {
		cfg.Metrics.DialSucceeded(metricAttrs(cfg.Node, cfg.Service))
	}
	c.logf("control: dial established peer=%s", c.peerAddr)
	spanAddEvent(span, "dial_established", logKV("peer", c.peerAddr))
	return c, resp.QPInfo, nil
}

// Listener accepts incoming connection requests on a bound stream socket.
type Listener struct {
	ln    net.Listener
	cfg   Config
	state atomic.Int32
}

// Listen performs start_server: bind, listen, and mark the channel
// CONNECTING.
func Listen(network, addr string, cfg Config) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{ln: ln, cfg: cfg.withDefaults()}
	l.state.Store(int32(StateConnecting))
	return l, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Accept implements accept_connection: it waits, in 1 s inner poll slices,
// up to timeout for an incoming stream, then performs step 3 of the
// connection protocol by receiving the initiator's CONNECT_REQUEST. The
// caller is expected to build its own QP from the returned QPInfo (step 4)
// and then call Connection.Respond (step 5).
func (l *Listener) Accept(timeout time.Duration) (conn *Connection, peer QPInfo, err error) {
	span := startSpan(l.cfg.Tracer, "control.accept", logKV("node", l.cfg.Node), logKV("service", l.cfg.Service))
	defer func() { endSpan(span, err) }()

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.AcceptStarted(metricAttrs(l.cfg.Node, l.cfg.Service))
	}

	rawConn, err := l.acceptWithPolling(timeout)
	if err != nil {
		spanRecordError(span, err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.AcceptFailed(err, metricAttrs(l.cfg.Node, l.cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}

	c := newConnection(rawConn, l.cfg, false)
	req, err := c.recv(l.cfg.MessageTimeout)
	if err != nil {
		rawConn.Close()
		spanRecordError(span, err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.AcceptFailed(err, metricAttrs(l.cfg.Node, l.cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}
	if req.Type != MsgConnectRequest {
		rawConn.Close()
		err = c.enterError(ErrHandshakeMismatch)
		spanRecordError(span, err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.AcceptFailed(err, metricAttrs(l.cfg.Node, l.cfg.Service, logKV("error", err)))
		}
		return nil, QPInfo{}, err
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.AcceptSucceeded(metricAttrs(l.cfg.Node, l.cfg.Service))
	}
	c.logf("control: accepted peer=%s", c.peerAddr)
	spanAddEvent(span, "accept_established", logKV("peer", c.peerAddr))
	return c, req.QPInfo, nil
}

func (l *Listener) acceptWithPolling(timeout time.Duration) (net.Conn, error) {
	tcpLn, ok := l.ln.(*net.TCPListener)
	if !ok || timeout <= 0 {
		return l.ln.Accept()
	}
	deadline := time.Now().Add(timeout)
	for {
		sliceEnd := time.Now().Add(acceptPollSlice)
		if sliceEnd.After(deadline) {
			sliceEnd = deadline
		}
		if err := tcpLn.SetDeadline(sliceEnd); err != nil {
			return nil, err
		}
		conn, err := tcpLn.Accept()
		if err == nil {
			return conn, nil
		}
		var netErr net.Error
		if ne, ok := err.(net.Error); ok {
			netErr = ne
		}
		if netErr == nil || !netErr.Timeout() {
			return nil, err
		}
		if !sliceEnd.Before(deadline) {
			return nil, ErrTimeout
		}
	}
}
