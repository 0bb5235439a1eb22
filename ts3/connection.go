package ts3

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultDialTimeout = 10 * time.Second

	// Depth of the per-command reply channel between the receive goroutine
	// and the Execute caller. Replies carry at most a handful of data lines
	// before the status line, so this never fills in practice.
	replyChannelDepth = 16
)

// Connection is one ServerQuery session. It owns the transport, the
// background receive goroutine, the event registration set, and the
// keepalive scheduler. All exported methods are safe for concurrent use.
type Connection struct {
	logger            *slog.Logger
	errorHandler      func(error)
	disconnectHandler func(*Connection, error)
	dialTimeout       time.Duration
	tlsConfig         *tls.Config
	hostKeyCallback   ssh.HostKeyCallback
	keepaliveInterval time.Duration

	stateLock sync.Mutex
	transport io.ReadWriteCloser
	reader    *bufio.Reader
	connected bool
	isSSH     bool
	keepalive *keepaliveScheduler

	// slot is the single-flight submission slot. A capacity-1 channel is
	// used instead of a mutex because blocked channel waiters are served
	// in arrival order, which keeps queued commands FIFO.
	slot      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	replyLock sync.Mutex
	replyCh   chan replyLine

	dispatcher *eventDispatcher
}

type replyLine struct {
	records []*Record
	status  *Status
}

// NewConnection returns an unconnected Connection with default settings.
func NewConnection() *Connection {
	conn := &Connection{
		logger:      slog.Default(),
		dialTimeout: defaultDialTimeout,
		slot:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	conn.dispatcher = newEventDispatcher(conn.logger)
	return conn
}

// SetLogger sets the structured logger used for protocol diagnostics.
func (conn *Connection) SetLogger(logger *slog.Logger) *Connection {
	if logger != nil {
		conn.logger = logger
		conn.dispatcher.logger = logger
	}
	return conn
}

// SetErrorHandler sets a hook invoked for recoverable failures: dropped
// malformed lines, failing event handlers, and the disconnect cause.
func (conn *Connection) SetErrorHandler(errorHandler func(error)) *Connection {
	conn.errorHandler = errorHandler
	conn.dispatcher.errorHandler = errorHandler
	return conn
}

// SetDisconnectHandler sets a hook invoked once when the session ends with
// an error. An explicit Close does not trigger it.
func (conn *Connection) SetDisconnectHandler(disconnectHandler func(*Connection, error)) *Connection {
	conn.disconnectHandler = disconnectHandler
	return conn
}

// SetDialTimeout sets the timeout used when establishing the transport.
func (conn *Connection) SetDialTimeout(timeout time.Duration) *Connection {
	if timeout > 0 {
		conn.dialTimeout = timeout
	}
	return conn
}

// SetTLSConfig sets the TLS configuration used for tcps:// URIs.
func (conn *Connection) SetTLSConfig(config *tls.Config) *Connection {
	conn.tlsConfig = config
	return conn
}

// SetHostKeyCallback sets the host key verification used for ssh:// URIs.
// The default accepts any host key.
func (conn *Connection) SetHostKeyCallback(callback ssh.HostKeyCallback) *Connection {
	conn.hostKeyCallback = callback
	return conn
}

// SetKeepalive sets the keepalive period started automatically after
// Connect. Zero leaves the keepalive scheduler off.
func (conn *Connection) SetKeepalive(interval time.Duration) *Connection {
	conn.keepaliveInterval = interval
	return conn
}

// Connect opens the transport for the given URI and starts the receive
// loop. Supported schemes are telnet:// (plain TCP, the default), tcps://
// (TLS), and ssh://. Credentials in the URI userinfo are used for the SSH
// handshake, or trigger an automatic Login on plain transports.
func (conn *Connection) Connect(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return NewError(InvalidURIError, err)
	}

	var username, password string
	if parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
	}

	var transport io.ReadWriteCloser
	var isSSH bool
	switch parsed.Scheme {
	case "", "telnet", "tcp":
		transport, err = dialTCP(hostWithDefaultPort(parsed.Host, defaultQueryPort), conn.dialTimeout)
	case "tcps", "tls":
		transport, err = dialTLS(hostWithDefaultPort(parsed.Host, defaultQueryPort), conn.tlsConfig, conn.dialTimeout)
	case "ssh":
		transport, err = dialSSH(hostWithDefaultPort(parsed.Host, defaultSSHPort), username, password, conn.dialTimeout, conn.hostKeyCallback)
		isSSH = true
	default:
		return NewError(InvalidURIError, "unsupported scheme "+parsed.Scheme)
	}
	if err != nil {
		return NewError(ConnectionRefusedError, err)
	}

	if err := conn.start(transport, isSSH); err != nil {
		return err
	}

	if username != "" && !isSSH {
		if err := conn.Login(username, password); err != nil {
			_ = conn.Close()
			return err
		}
	}

	if conn.keepaliveInterval > 0 {
		conn.StartKeepalive(conn.keepaliveInterval)
	}

	return nil
}

// start adopts an established transport: it consumes the two greeting
// lines the server sends, then launches the receive loop.
func (conn *Connection) start(transport io.ReadWriteCloser, isSSH bool) error {
	conn.stateLock.Lock()
	if conn.connected {
		conn.stateLock.Unlock()
		_ = transport.Close()
		return NewError(AlreadyConnectedError)
	}
	select {
	case <-conn.done:
		conn.stateLock.Unlock()
		_ = transport.Close()
		return NewError(DisconnectedError, "connection is closed")
	default:
	}
	conn.transport = transport
	conn.reader = bufio.NewReader(transport)
	conn.isSSH = isSSH
	conn.stateLock.Unlock()

	greeting, err := conn.readLine()
	if err != nil {
		_ = transport.Close()
		return NewError(ConnectionRefusedError, err)
	}
	if !strings.HasPrefix(greeting, "TS3") {
		_ = transport.Close()
		return NewError(ProtocolError, fmt.Sprintf("unexpected greeting %q", greeting))
	}
	if _, err := conn.readLine(); err != nil {
		_ = transport.Close()
		return NewError(ConnectionRefusedError, err)
	}

	conn.stateLock.Lock()
	conn.connected = true
	conn.stateLock.Unlock()

	go conn.readRoutine()
	return nil
}

// Execute sends one command and blocks until its trailing status line
// arrives. Data records are returned in wire order. A non-zero status is
// returned as data, not as an error; only a dead session yields an error,
// tagged DisconnectedError. Concurrent callers are serialized in strict
// submission order.
func (conn *Connection) Execute(command *Command) ([]*Record, Status, error) {
	if command == nil || command.verb == "" {
		return nil, Status{}, NewError(CommandError, "invalid command provided")
	}

	select {
	case conn.slot <- struct{}{}:
	case <-conn.done:
		return nil, Status{}, NewError(DisconnectedError, "connection is closed")
	}
	defer func() { <-conn.slot }()

	select {
	case <-conn.done:
		return nil, Status{}, NewError(DisconnectedError, "connection is closed")
	default:
	}

	replyCh := make(chan replyLine, replyChannelDepth)
	conn.replyLock.Lock()
	conn.replyCh = replyCh
	conn.replyLock.Unlock()
	defer func() {
		conn.replyLock.Lock()
		conn.replyCh = nil
		conn.replyLock.Unlock()
	}()

	if err := conn.writeLine(command.encode()); err != nil {
		return nil, Status{}, NewError(DisconnectedError, err)
	}

	var records []*Record
	for {
		select {
		case reply := <-replyCh:
			if reply.status != nil {
				return records, *reply.status, nil
			}
			records = append(records, reply.records...)
		case <-conn.done:
			return nil, Status{}, NewError(DisconnectedError, "connection closed while awaiting reply")
		}
	}
}

// Subscribe registers an observer for the notifications the selector
// names. Observers for one event run in registration order.
func (conn *Connection) Subscribe(selector Selector, handler EventHandler) SubscriptionID {
	return conn.dispatcher.subscribe(selector, handler)
}

// Unsubscribe removes a registration. Removing an unknown id is a no-op.
func (conn *Connection) Unsubscribe(id SubscriptionID) {
	conn.dispatcher.unsubscribe(id)
}

// Close tears the session down: it stops the keepalive scheduler, closes
// the transport, and fails every pending and future Execute with a
// DisconnectedError. Close is idempotent.
func (conn *Connection) Close() error {
	conn.shutdown(nil)
	return nil
}

// readRoutine is the only goroutine that reads from the transport. Every
// line is classified and routed: notifications to the dispatcher, reply
// lines to the pending Execute. Undecodable lines are dropped.
func (conn *Connection) readRoutine() {
	for {
		line, err := conn.readLine()
		if err != nil {
			select {
			case <-conn.done:
			default:
				conn.shutdown(NewError(ConnectionError, fmt.Sprintf("socket read error: %v", err)))
			}
			return
		}
		if line == "" {
			continue
		}

		switch classifyLine(line) {
		case lineNotification:
			verb, record, decodeErr := decodeNotification(line)
			if decodeErr != nil {
				conn.reportDroppedLine(line, decodeErr)
				continue
			}
			conn.dispatcher.dispatch(verb, record)

		case lineStatus:
			status, decodeErr := parseStatusLine(line)
			if decodeErr != nil {
				conn.reportDroppedLine(line, decodeErr)
				continue
			}
			conn.deliverReply(replyLine{status: &status})

		case lineData:
			records, decodeErr := DecodeRecords(line)
			if decodeErr != nil {
				conn.reportDroppedLine(line, decodeErr)
				continue
			}
			conn.deliverReply(replyLine{records: records})
		}
	}
}

func (conn *Connection) deliverReply(reply replyLine) {
	conn.replyLock.Lock()
	replyCh := conn.replyCh
	conn.replyLock.Unlock()

	if replyCh == nil {
		conn.logger.Warn("dropping reply line with no command in flight")
		return
	}

	select {
	case replyCh <- reply:
	case <-conn.done:
	}
}

// readLine blocks until a full line arrives. Terminators are normalized:
// the server ends lines with LF CR, so the CR left over from the previous
// line is trimmed from the front as well.
func (conn *Connection) readLine() (string, error) {
	line, err := conn.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.Trim(line, "\r\n"), nil
}

func (conn *Connection) writeLine(line string) error {
	conn.stateLock.Lock()
	transport := conn.transport
	connected := conn.connected
	conn.stateLock.Unlock()

	if !connected || transport == nil {
		return fmt.Errorf("connection is not established")
	}

	if _, err := transport.Write([]byte(line + lineTerminator)); err != nil {
		conn.shutdown(NewError(ConnectionError, fmt.Sprintf("socket error while sending command: %v", err)))
		return err
	}
	return nil
}

func (conn *Connection) reportDroppedLine(line string, err error) {
	conn.logger.Warn("dropping undecodable line", "line", line, "error", err)
	if conn.errorHandler != nil {
		conn.errorHandler(err)
	}
}

// shutdown performs the one-time teardown. A nil cause is an explicit
// Close; a non-nil cause is reported and forwarded to the disconnect
// handler.
func (conn *Connection) shutdown(cause error) {
	conn.closeOnce.Do(func() {
		conn.stateLock.Lock()
		conn.connected = false
		transport := conn.transport
		scheduler := conn.keepalive
		conn.keepalive = nil
		conn.stateLock.Unlock()

		close(conn.done)
		if scheduler != nil {
			scheduler.stop()
		}
		if transport != nil {
			_ = transport.Close()
		}
		conn.dispatcher.clear()

		if cause != nil {
			conn.logger.Warn("session ended", "error", cause)
			if conn.errorHandler != nil {
				conn.errorHandler(cause)
			}
			if conn.disconnectHandler != nil {
				conn.disconnectHandler(conn, cause)
			}
		} else {
			conn.logger.Debug("session closed")
		}
	})
}
