package ftpconn

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// parsePASV extracts the port from a 227 reply "(h1,h2,h3,h4,p1,p2)". The
// advertised address is ignored; data connections always go to the control
// host since servers behind NAT commonly advertise a private address.
func parsePASV(msg string) (int, error) {
	start := strings.Index(msg, "(")
	end := strings.LastIndex(msg, ")")
	if start == -1 || end == -1 || end <= start {
		return 0, fmt.Errorf("invalid PASV response: %s", msg)
	}
	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return 0, fmt.Errorf("invalid PASV response: %s", msg)
	}
	p1, err1 := strconv.Atoi(strings.TrimSpace(parts[4]))
	p2, err2 := strconv.Atoi(strings.TrimSpace(parts[5]))
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return 0, fmt.Errorf("invalid PASV port: %s", msg)
	}
	return p1*256 + p2, nil
}

// parseEPSV extracts the port from a 229 reply "(|||port|)".
func parseEPSV(msg string) (int, error) {
	start := strings.Index(msg, "(")
	end := strings.LastIndex(msg, ")")
	if start == -1 || end == -1 || end <= start+1 {
		return 0, fmt.Errorf("invalid EPSV response: %s", msg)
	}
	inner := msg[start+1 : end]
	delim := inner[0:1]
	fields := strings.Split(inner, delim)
	if len(fields) != 5 {
		return 0, fmt.Errorf("invalid EPSV response: %s", msg)
	}
	port, err := strconv.Atoi(fields[3])
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid EPSV port: %s", msg)
	}
	return port, nil
}

func (c *Conn) passivePort() (int, error) {
	if !c.disableEPSV {
		resp, err := c.sendCommand("EPSV")
		if err != nil {
			return 0, err
		}
		if resp.Code == 229 {
			return parseEPSV(resp.Message)
		}
		c.log.Debug().Int("code", resp.Code).Msg("EPSV unsupported, using PASV")
		c.disableEPSV = true
	}
	resp, err := c.expectCode(227, "PASV")
	if err != nil {
		return 0, err
	}
	return parsePASV(resp.Message)
}

// transferCmd opens a passive data connection, issues command and returns
// the data stream once the server has answered with a 1xx reply. When rest is
// non-negative a REST is sent first.
func (c *Conn) transferCmd(command, arg string, rest int64) (*transfer, error) {
	if !c.passive {
		return nil, fmt.Errorf("passive mode not enabled")
	}
	port, err := c.passivePort()
	if err != nil {
		return nil, err
	}
	host, _, err := net.SplitHostPort(c.addr)
	if err != nil {
		host = c.host
	}
	raw, err := c.dialer.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to open data connection: %w", err)
	}
	c.mu.Lock()
	c.activeData = raw
	c.mu.Unlock()

	fail := func(err error) (*transfer, error) {
		c.closeActiveData()
		return nil, err
	}

	if rest >= 0 {
		if _, err := c.expectCode(350, "REST", strconv.FormatInt(rest, 10)); err != nil {
			return fail(err)
		}
	}
	args := []string{}
	if arg != "" {
		args = append(args, arg)
	}
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return fail(err)
	}
	if !resp.Is1xx() {
		return fail(&ProtocolError{Command: command, Response: resp.Message, Code: resp.Code})
	}

	var data net.Conn = raw
	if c.protected {
		cfg := c.tlsConfig.Clone()
		cfg.ClientSessionCache = dataCache{store: c.sessions}
		tlsConn := tls.Client(raw, cfg)
		if err := raw.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return fail(err)
		}
		if err := tlsConn.Handshake(); err != nil {
			return fail(fmt.Errorf("data channel TLS handshake failed: %w", err))
		}
		raw.SetDeadline(time.Time{})
		c.log.Debug().Bool("resumed", tlsConn.ConnectionState().DidResume).Msg("Data channel secured")
		data = tlsConn
		c.mu.Lock()
		c.activeData = tlsConn
		c.mu.Unlock()
	}
	return &transfer{c: c, data: data, command: command}, nil
}

// transfer is a data stream whose Close consumes the completion reply.
type transfer struct {
	c       *Conn
	data    net.Conn
	command string
	closed  bool
}

func (t *transfer) Read(p []byte) (int, error) {
	if err := t.data.SetReadDeadline(time.Now().Add(t.c.timeout)); err != nil {
		return 0, err
	}
	return t.data.Read(p)
}

func (t *transfer) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.c.closeActiveData()
	resp, err := t.c.readReply()
	if err != nil {
		return err
	}
	if !resp.Is2xx() {
		return &ProtocolError{Command: t.command, Response: resp.Message, Code: resp.Code}
	}
	return nil
}

func (c *Conn) readLines(command, path string) ([]string, error) {
	t, err := c.transferCmd(command, path, -1)
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(t)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	scanErr := scanner.Err()
	if err := t.Close(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read %s data: %w", command, scanErr)
	}
	return lines, nil
}

// MLSD returns raw machine listing lines for path (current directory when
// empty).
func (c *Conn) MLSD(path string) ([]string, error) {
	return c.readLines("MLSD", path)
}

// List returns raw LIST lines for path (current directory when empty).
func (c *Conn) List(path string) ([]string, error) {
	return c.readLines("LIST", path)
}

// RetrieveFrom starts RETR of path at offset. The caller reads the stream
// and either calls Close to collect the completion reply, or closes the Conn
// to abandon the transfer.
func (c *Conn) RetrieveFrom(path string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		offset = 0
	}
	return c.transferCmd("RETR", path, offset)
}
