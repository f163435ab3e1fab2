package ftpconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/octoftp/internal/utils"
)

// Conn is one authenticated control connection in passive, binary mode.
// It is not safe for concurrent transfers; each worker owns its own Conn.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	host   string
	addr   string

	timeout time.Duration
	dialer  *net.Dialer
	log     zerolog.Logger

	tlsConfig   *tls.Config
	sessions    *sessionStore
	protected   bool
	passive     bool
	disableEPSV bool
	welcome     string

	socketBuffer int

	mu         sync.Mutex
	activeData net.Conn
}

type Option func(*Conn)

// WithTLSConfig sets the base TLS configuration (roots, client certs). The
// session cache and ServerName are managed by Conn.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Conn) {
		c.tlsConfig = cfg.Clone()
	}
}

// WithDialer sets the base dialer, e.g. for keep-alive or a local address.
// Dial works on a copy, so d can be shared between connections.
func WithDialer(d *net.Dialer) Option {
	return func(c *Conn) {
		dc := *d
		c.dialer = &dc
	}
}

// WithSocketBuffers sets the kernel receive and send buffer sizes of the
// control and data sockets.
func WithSocketBuffers(size int) Option {
	return func(c *Conn) {
		c.socketBuffer = size
	}
}

// WithDisableEPSV forces PASV for servers that mishandle EPSV.
func WithDisableEPSV() Option {
	return func(c *Conn) {
		c.disableEPSV = true
	}
}

// Dial opens the control connection and prepares it for transfers: connect,
// (AUTH TLS), login, passive mode, data channel protection, TYPE I.
func Dial(ctx context.Context, target utils.ServerTarget, opts ...Option) (*Conn, error) {
	c := &Conn{
		host:    target.Host,
		addr:    target.Addr(),
		timeout: target.Timeout,
		dialer:  &net.Dialer{},
		log:     utils.GetLogger("ftpconn").With().Str("addr", target.Addr()).Logger(),
	}
	if c.timeout <= 0 {
		c.timeout = utils.DefaultConnectTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer.Timeout = c.timeout
	if c.socketBuffer > 0 {
		size := c.socketBuffer
		c.dialer.Control = func(network, address string, rc syscall.RawConn) error {
			return rc.Control(func(fd uintptr) { setSocketBuffers(fd, size) })
		}
	}

	if err := c.connect(ctx); err != nil {
		return nil, &utils.ConnectError{Addr: c.addr, Stage: "connect", Err: err}
	}
	if target.UseTLS {
		if err := c.upgradeToTLS(target.Insecure); err != nil {
			c.conn.Close()
			return nil, &utils.ConnectError{Addr: c.addr, Stage: "tls", Err: err}
		}
	}
	if err := c.login(target.Username, target.Password); err != nil {
		c.conn.Close()
		return nil, &utils.ConnectError{Addr: c.addr, Stage: "login", Err: err}
	}

	// Passive mode must be in effect before PROT; some servers reject a
	// protection request issued earlier.
	c.passive = true
	c.log.Debug().Msg("Passive mode enabled")

	if target.UseTLS {
		c.protectDataChannel()
	}
	if _, err := c.expectCode(200, "TYPE", "I"); err != nil {
		c.conn.Close()
		return nil, &utils.ConnectError{Addr: c.addr, Stage: "type", Err: err}
	}
	c.log.Debug().Msg("Binary mode set")
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	c.log.Debug().Msg("Connecting to server")
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	resp, err := readResponse(c.reader)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if resp.Code != 220 {
		conn.Close()
		return &ProtocolError{Command: "CONNECT", Response: resp.Message, Code: resp.Code}
	}
	c.welcome = resp.String()
	return nil
}

func (c *Conn) upgradeToTLS(insecure bool) error {
	if _, err := c.expectCode(234, "AUTH", "TLS"); err != nil {
		return err
	}
	cfg := c.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg.InsecureSkipVerify = cfg.InsecureSkipVerify || insecure
	if cfg.ServerName == "" {
		cfg.ServerName = c.host
	}
	c.sessions = &sessionStore{}
	cfg.ClientSessionCache = controlCache{store: c.sessions}
	c.tlsConfig = cfg

	tlsConn := tls.Client(c.conn, cfg)
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.log.Debug().Uint16("version", tlsConn.ConnectionState().Version).Msg("Control channel secured")
	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	return nil
}

func (c *Conn) login(user, password string) error {
	c.log.Debug().Str("user", user).Msg("Logging in")
	resp, err := c.sendCommand("USER", user)
	if err != nil {
		return err
	}
	if resp.Code == 230 {
		return nil
	}
	if resp.Code != 331 {
		return &ProtocolError{Command: "USER", Response: resp.Message, Code: resp.Code}
	}
	resp, err = c.sendCommand("PASS", password)
	if err != nil {
		return err
	}
	if resp.Code != 230 && resp.Code != 202 {
		return &ProtocolError{Command: "PASS", Response: resp.Message, Code: resp.Code}
	}
	return nil
}

// protectDataChannel tries PROT P and falls back to PROT C. Neither failure
// aborts the connection.
func (c *Conn) protectDataChannel() {
	if _, err := c.expectCode(200, "PBSZ", "0"); err != nil {
		c.log.Debug().Err(err).Msg("PBSZ rejected")
	}
	_, err := c.expectCode(200, "PROT", "P")
	if err == nil {
		c.protected = true
		c.log.Debug().Msg("Data channel encryption enabled (PROT P)")
		return
	}
	c.log.Debug().Err(err).Msg("PROT P failed, trying clear data channel")
	if _, err := c.expectCode(200, "PROT", "C"); err != nil {
		c.log.Warn().Err(err).Msg("PROT C also failed, continuing without explicit protection level")
		return
	}
	c.log.Debug().Msg("Using clear text data channel (PROT C)")
}

func (c *Conn) Welcome() string { return c.welcome }

// DataProtected reports whether data connections are TLS wrapped.
func (c *Conn) DataProtected() bool { return c.protected }

func (c *Conn) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

func (c *Conn) CurrentDir() (string, error) {
	resp, err := c.expectCode(257, "PWD")
	if err != nil {
		return "", err
	}
	msg := resp.Message
	start := strings.Index(msg, "\"")
	end := strings.LastIndex(msg, "\"")
	if start >= 0 && end > start {
		return strings.ReplaceAll(msg[start+1:end], "\"\"", "\""), nil
	}
	return "", fmt.Errorf("invalid PWD response: %s", msg)
}

func (c *Conn) Size(path string) (int64, error) {
	resp, err := c.expectCode(213, "SIZE", path)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE response: %s", resp.Message)
	}
	return size, nil
}

// Quit sends QUIT and closes the connection.
func (c *Conn) Quit() error {
	if c.conn == nil {
		return nil
	}
	c.closeActiveData()
	_, _ = c.sendCommand("QUIT")
	return c.conn.Close()
}

// Close drops the control connection and any open data connection without
// a QUIT exchange. Used to abandon a transfer mid-stream.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	c.closeActiveData()
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) closeActiveData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeData != nil {
		c.activeData.Close()
		c.activeData = nil
	}
}

func (c *Conn) sendCommand(command string, args ...string) (*Response, error) {
	cmd := command
	if len(args) > 0 {
		cmd = command + " " + strings.Join(args, " ")
	}
	logged := cmd
	if command == "PASS" {
		logged = "PASS ****"
	}
	c.log.Debug().Str("cmd", logged).Msg("ftp command")

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}
	resp, err := c.readReply()
	if err != nil {
		return nil, err
	}
	c.log.Debug().Int("code", resp.Code).Str("message", resp.Message).Msg("ftp response")
	return resp, nil
}

func (c *Conn) readReply() (*Response, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

func (c *Conn) expectCode(code int, command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != code {
		return resp, &ProtocolError{Command: command, Response: resp.Message, Code: resp.Code}
	}
	return resp, nil
}

func (c *Conn) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, &ProtocolError{Command: command, Response: resp.Message, Code: resp.Code}
	}
	return resp, nil
}
