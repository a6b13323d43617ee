package export

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"shadowfs/internal/filesystem"
	"shadowfs/internal/util"
)

// DefaultAddr is the address the NFS export listens on when none is given.
const DefaultAddr = "127.0.0.1:12049"

// Server exports a FileSystem over NFSv3.
type Server struct {
	adapter *BillyAdapter
	server  *nfs.Server
	handler nfs.Handler
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer creates an NFS server for fs. Nothing is bound until Listen.
func NewServer(fs filesystem.FileSystem) *Server {
	// Match go-nfs verbosity to ours
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}
	adapter := NewBillyAdapter(fs)
	handler := nfshelper.NewNullAuthHandler(adapter)
	cacheHelper := nfshelper.NewCachingHandler(handler, 65536)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		adapter: adapter,
		server: &nfs.Server{
			Handler: cacheHelper,
			Context: ctx,
		},
		handler: cacheHelper,
		cancel:  cancel,
	}
}

// Adapter returns the billy view the server exports.
func (s *Server) Adapter() *BillyAdapter {
	return s.adapter
}

// Listen binds the server to addr.
func (s *Server) Listen(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		listener.Close()
		return net.ErrClosed
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. It returns nil once the server
// has been shut down.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("nfs server is not listening")
	}

	log.Infof("[NFS] Serving on %s", listener.Addr())
	err := s.server.Serve(listener)
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	return err
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// WaitReady blocks until the listener accepts TCP connections.
func (s *Server) WaitReady(ctx context.Context) error {
	return util.PollUntil(ctx, util.DefaultPollConfig(), func() bool {
		addr := s.Addr()
		if addr == nil {
			return false
		}
		conn, err := net.DialTimeout("tcp", addr.String(), 250*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
}

// Shutdown stops accepting connections and cancels in-flight handlers.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	// Settle time for in-flight requests after the listener closes.
	time.Sleep(100 * time.Millisecond)
	if s.cancel != nil {
		s.cancel()
	}
}
