package ftpconn

import (
	"crypto/tls"
	"sync"
)

// sessionStore holds the TLS session negotiated on the control channel so
// every data channel of the same connection resumes it. Strict servers
// (vsftpd require_ssl_reuse, ProFTPD) refuse data connections that present a
// different session.
type sessionStore struct {
	mu      sync.Mutex
	session *tls.ClientSessionState
}

func (s *sessionStore) get() (*tls.ClientSessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session != nil
}

func (s *sessionStore) set(cs *tls.ClientSessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = cs
}

// controlCache records sessions (and later tickets) issued on the control
// channel. The control handshake itself never resumes.
type controlCache struct{ store *sessionStore }

func (c controlCache) Get(string) (*tls.ClientSessionState, bool) { return nil, false }

func (c controlCache) Put(_ string, cs *tls.ClientSessionState) {
	if cs != nil {
		c.store.set(cs)
	}
}

// dataCache offers the control session to a data handshake regardless of the
// cache key (data ports differ from the control port). Tickets issued on a
// data channel are dropped.
type dataCache struct{ store *sessionStore }

func (c dataCache) Get(string) (*tls.ClientSessionState, bool) { return c.store.get() }

func (c dataCache) Put(string, *tls.ClientSessionState) {}
