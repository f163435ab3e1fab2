// Package ftptest provides an in-process FTP/FTPS server serving an in-memory
// file tree, for tests of the client packages.
package ftptest

import (
	"crypto/tls"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Server is a minimal FTP server. Configure the exported fields before Start.
type Server struct {
	User     string
	Password string

	// TLS enables AUTH TLS and PROT P when non-nil.
	TLS *tls.Config
	// RejectProtP answers PROT P with 536.
	RejectProtP bool
	// RejectProtC answers PROT C with 536.
	RejectProtC bool
	// DisableMLSD answers MLSD with 502.
	DisableMLSD bool
	// DisableEPSV answers EPSV with 502.
	DisableEPSV bool
	// RequireSessionReuse refuses protected data connections whose TLS
	// handshake did not resume the control session.
	RequireSessionReuse bool
	// BlockSize and BlockDelay pace RETR so tests can observe a transfer
	// in flight.
	BlockSize  int
	BlockDelay time.Duration
	// FailRetrieve, when set, decides whether a RETR is answered with 550.
	FailRetrieve func(name string, offset int64) bool

	Logins        atomic.Int64
	Retrieves     atomic.Int64
	ResumedData   atomic.Int64
	RejectedData  atomic.Int64
	PassiveOpened atomic.Int64

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	rests    []int64
	listener net.Listener
	wg       sync.WaitGroup
	conns    map[net.Conn]struct{}
	closed   bool
}

func NewServer() *Server {
	return &Server{
		User:      "anonymous",
		Password:  "anonymous@",
		BlockSize: 8192,
		files:     make(map[string][]byte),
		dirs:      map[string]bool{"/": true},
		conns:     make(map[net.Conn]struct{}),
	}
}

// AddFile stores content at the absolute path p, creating parent directories.
func (s *Server) AddFile(p string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean("/" + p)
	s.files[p] = content
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		s.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
}

// AddDir creates an empty directory at p.
func (s *Server) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dir := path.Clean("/" + p); ; dir = path.Dir(dir) {
		s.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
}

// RestOffsets returns every REST offset received, across all sessions.
func (s *Server) RestOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.rests...)
}

// Start listens on a random loopback port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.listener = ln
	s.wg.Add(1)
	go s.serve()
	return nil
}

func (s *Server) Host() string { return "127.0.0.1" }

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops accepting, drops every open session and waits for them.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(s, conn).run()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) file(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[p]
	return content, ok
}

func (s *Server) isDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[p]
}

func (s *Server) recordRest(offset int64) {
	s.mu.Lock()
	s.rests = append(s.rests, offset)
	s.mu.Unlock()
}

type entry struct {
	name  string
	size  int64
	isDir bool
}

func (s *Server) children(dir string) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entry
	for p := range s.dirs {
		if p != "/" && path.Dir(p) == dir {
			out = append(out, entry{name: path.Base(p), isDir: true})
		}
	}
	for p, content := range s.files {
		if path.Dir(p) == dir {
			out = append(out, entry{name: path.Base(p), size: int64(len(content))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].name) < strings.ToLower(out[j].name) })
	return out
}
