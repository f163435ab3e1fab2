package ftptest

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"
)

type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	user      string
	loggedIn  bool
	secure    bool
	protected bool
	cwd       string
	rest      int64
	pasv      net.Listener
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{server: s, conn: conn, reader: bufio.NewReader(conn), cwd: "/"}
}

func (s *session) reply(code int, format string, args ...any) error {
	_, err := fmt.Fprintf(s.conn, "%d %s\r\n", code, fmt.Sprintf(format, args...))
	return err
}

func (s *session) run() {
	defer s.conn.Close()
	defer s.closePassive()
	if _, err := fmt.Fprintf(s.conn, "220-octoftp test server\r\n220 Ready\r\n"); err != nil {
		return
	}
	for {
		s.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd, arg, _ := strings.Cut(line, " ")
		if !s.handle(strings.ToUpper(cmd), arg) {
			return
		}
	}
}

// handle executes one command and reports whether the session continues.
func (s *session) handle(cmd, arg string) bool {
	srv := s.server
	var err error
	switch cmd {
	case "AUTH":
		if srv.TLS == nil || strings.ToUpper(arg) != "TLS" {
			err = s.reply(504, "AUTH not supported")
			break
		}
		if err = s.reply(234, "Proceed with negotiation"); err != nil {
			return false
		}
		tlsConn := tls.Server(s.conn, srv.TLS)
		if err := tlsConn.Handshake(); err != nil {
			return false
		}
		s.conn = tlsConn
		s.reader = bufio.NewReader(tlsConn)
		s.secure = true
	case "USER":
		s.user = arg
		err = s.reply(331, "Password required")
	case "PASS":
		if s.user == srv.User && arg == srv.Password {
			s.loggedIn = true
			srv.Logins.Add(1)
			err = s.reply(230, "Login successful")
		} else {
			err = s.reply(530, "Login incorrect")
		}
	case "QUIT":
		s.reply(221, "Goodbye")
		return false
	default:
		if !s.loggedIn {
			err = s.reply(530, "Please login with USER and PASS")
			break
		}
		err = s.handleLoggedIn(cmd, arg)
	}
	return err == nil
}

func (s *session) handleLoggedIn(cmd, arg string) error {
	srv := s.server
	switch cmd {
	case "PBSZ":
		if !s.secure {
			return s.reply(503, "PBSZ requires AUTH")
		}
		return s.reply(200, "PBSZ=0")
	case "PROT":
		switch strings.ToUpper(arg) {
		case "P":
			if !s.secure || srv.RejectProtP {
				return s.reply(536, "PROT P not supported")
			}
			s.protected = true
			return s.reply(200, "Protection level set to P")
		case "C":
			if srv.RejectProtC {
				return s.reply(536, "PROT C not supported")
			}
			s.protected = false
			return s.reply(200, "Protection level set to C")
		}
		return s.reply(504, "Unknown protection level")
	case "TYPE":
		return s.reply(200, "Switching to Binary mode")
	case "PWD":
		return s.reply(257, "\"%s\" is the current directory", s.cwd)
	case "CWD":
		target := s.resolve(arg)
		if !srv.isDir(target) {
			return s.reply(550, "Failed to change directory")
		}
		s.cwd = target
		return s.reply(250, "Directory successfully changed")
	case "SIZE":
		content, ok := srv.file(s.resolve(arg))
		if !ok {
			return s.reply(550, "Could not get file size")
		}
		return s.reply(213, "%d", len(content))
	case "EPSV":
		if srv.DisableEPSV {
			return s.reply(502, "EPSV not implemented")
		}
		port, err := s.openPassive()
		if err != nil {
			return s.reply(425, "Cannot open passive connection")
		}
		return s.reply(229, "Entering Extended Passive Mode (|||%d|)", port)
	case "PASV":
		port, err := s.openPassive()
		if err != nil {
			return s.reply(425, "Cannot open passive connection")
		}
		return s.reply(227, "Entering Passive Mode (10,0,0,1,%d,%d)", port/256, port%256)
	case "REST":
		offset, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || offset < 0 {
			return s.reply(501, "Invalid offset")
		}
		s.rest = offset
		srv.recordRest(offset)
		return s.reply(350, "Restart position accepted (%d)", offset)
	case "RETR":
		return s.retrieve(arg)
	case "MLSD":
		if srv.DisableMLSD {
			return s.reply(502, "MLSD not implemented")
		}
		return s.sendListing(arg, true)
	case "LIST":
		return s.sendListing(arg, false)
	}
	return s.reply(502, "Command not implemented")
}

func (s *session) resolve(p string) string {
	if p == "" {
		return s.cwd
	}
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Clean(path.Join(s.cwd, p))
}

func (s *session) openPassive() (int, error) {
	s.closePassive()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	s.pasv = ln
	s.server.PassiveOpened.Add(1)
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (s *session) closePassive() {
	if s.pasv != nil {
		s.pasv.Close()
		s.pasv = nil
	}
}

// acceptData accepts the passive connection, sends the 150 preliminary
// reply and, for protected sessions, performs the data TLS handshake.
func (s *session) acceptData() (net.Conn, error) {
	if s.pasv == nil {
		return nil, s.reply(425, "Use PASV or EPSV first")
	}
	ln := s.pasv
	defer s.closePassive()
	if tcp, ok := ln.(*net.TCPListener); ok {
		tcp.SetDeadline(time.Now().Add(10 * time.Second))
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, s.reply(425, "Cannot open data connection")
	}
	if err := s.reply(150, "Opening BINARY mode data connection"); err != nil {
		conn.Close()
		return nil, err
	}
	if !s.protected {
		return conn, nil
	}
	tlsConn := tls.Server(conn, s.server.TLS)
	tlsConn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, s.reply(522, "SSL connection failed")
	}
	tlsConn.SetDeadline(time.Time{})
	if tlsConn.ConnectionState().DidResume {
		s.server.ResumedData.Add(1)
	} else if s.server.RequireSessionReuse {
		s.server.RejectedData.Add(1)
		tlsConn.Close()
		return nil, s.reply(522, "SSL connection failed: session reuse required")
	}
	return tlsConn, nil
}

func (s *session) retrieve(arg string) error {
	srv := s.server
	offset := s.rest
	s.rest = 0
	name := s.resolve(arg)
	content, ok := srv.file(name)
	if !ok || (srv.FailRetrieve != nil && srv.FailRetrieve(name, offset)) {
		s.closePassive()
		return s.reply(550, "Failed to open file")
	}
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	data, err := s.acceptData()
	if data == nil {
		return err
	}
	srv.Retrieves.Add(1)
	block := srv.BlockSize
	if block <= 0 {
		block = 8192
	}
	remaining := content[offset:]
	for len(remaining) > 0 {
		n := min(block, len(remaining))
		data.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if _, err := data.Write(remaining[:n]); err != nil {
			data.Close()
			return s.reply(426, "Connection closed; transfer aborted")
		}
		remaining = remaining[n:]
		if srv.BlockDelay > 0 && len(remaining) > 0 {
			time.Sleep(srv.BlockDelay)
		}
	}
	data.Close()
	return s.reply(226, "Transfer complete")
}

func (s *session) sendListing(arg string, mlsd bool) error {
	dir := s.resolve(arg)
	if !s.server.isDir(dir) {
		s.closePassive()
		return s.reply(550, "No such directory")
	}
	data, err := s.acceptData()
	if data == nil {
		return err
	}
	w := bufio.NewWriter(data)
	if mlsd {
		fmt.Fprintf(w, "type=cdir;modify=20240115103000; .\r\n")
		fmt.Fprintf(w, "type=pdir;modify=20240115103000; ..\r\n")
	}
	for _, e := range s.server.children(dir) {
		if mlsd {
			fmt.Fprintf(w, "%s\r\n", formatMLSD(e))
		} else {
			fmt.Fprintf(w, "%s\r\n", formatLIST(e))
		}
	}
	w.Flush()
	data.Close()
	return s.reply(226, "Directory send OK")
}

func formatMLSD(e entry) string {
	kind := "file"
	if e.isDir {
		kind = "dir"
	}
	return fmt.Sprintf("type=%s;size=%d;modify=20240115103000; %s", kind, e.size, e.name)
}

func formatLIST(e entry) string {
	perms := "-rw-r--r--"
	if e.isDir {
		perms = "drwxr-xr-x"
	}
	return fmt.Sprintf("%s 1 ftp ftp %d Jan 15 10:30 %s", perms, e.size, e.name)
}
