// Package server implements the MJPEG fan-out server: a single producer
// reading JPEG frames from an input stream, broadcast through a shared
// latest-frame slot to any number of HTTP clients.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/liqinliqin/streameye/internal/frameslot"
	"github.com/liqinliqin/streameye/internal/logger"
	"github.com/liqinliqin/streameye/internal/metrics"
	"github.com/liqinliqin/streameye/internal/segment"
)

// Server owns the frame slot, the client registry and the listener, and
// coordinates startup and shutdown of the producer and session goroutines.
type Server struct {
	cfg      Config
	slot     *frameslot.Slot
	seg      *segment.Segmenter
	metrics  *metrics.Metrics
	registry *registry

	ln net.Listener
	wg sync.WaitGroup // session goroutines

	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

// New creates a server reading frames from input. The server does not touch
// the network until Start.
func New(cfg Config, input io.Reader) *Server {
	srv := &Server{
		cfg:      cfg,
		slot:     frameslot.New(),
		seg:      segment.New(input, cfg.Separator),
		registry: newRegistry(),
		done:     make(chan struct{}),
	}
	srv.metrics = metrics.New(func() metrics.InputStats {
		st := srv.seg.Stats()
		return metrics.InputStats{
			BytesIn:  st.BytesIn,
			Frames:   st.FramesOut,
			Discards: st.Discards,
		}
	})
	return srv
}

// Metrics exposes the server's metrics instance.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// ClientCount returns the number of live client sessions.
func (s *Server) ClientCount() int {
	return s.registry.count()
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the listener and launches the producer and acceptor. It
// returns once both are running.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.ln = ln

	logger.Info("Server", "listening on %s", ln.Addr())
	if s.seg.AutoSeparator() {
		logger.Debug("Server", "autodetecting jpeg frame boundaries")
	} else {
		logger.Debug("Server", "using a %d-byte input separator", s.seg.SeparatorLen())
	}

	go s.produce()
	go s.acceptLoop()

	if s.cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Server", "metrics listening on %s", s.cfg.MetricsAddr)
			if err := s.metrics.StartServer(s.cfg.MetricsAddr); err != nil {
				logger.Error("Server", "metrics server: %v", err)
			}
		}()
	}

	return nil
}

// Done is closed when the input stream ends or fails, requesting shutdown.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// produce is the single producer: it pulls frames from the segmenter and
// publishes each into the slot. It never waits for consumers.
func (s *Server) produce() {
	for {
		frame, err := s.seg.Next()
		if err != nil {
			if !errors.Is(err, segment.ErrInputClosed) {
				logger.Error("Server", "input: read failed: %v", err)
			}
			s.signalDone()
			return
		}

		s.slot.Publish(frame)
		s.metrics.FramesPublished.Add(1)
	}
}

// acceptLoop accepts connections until the listener is closed. Accept
// errors other than listener shutdown are logged and ignored.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("Server", "accept failed: %v", err)
			continue
		}

		sess := newSession(s, conn)

		s.wg.Add(1)
		if !s.registry.add(sess) {
			s.wg.Done()
			_ = conn.Close()
			continue
		}

		logger.Info("Server", "new client connection from %s", sess.addr)
		s.metrics.ActiveClients.Store(uint64(s.registry.count()))
		s.metrics.TotalClients.Add(1)

		go sess.run()
	}
}

// Stop shuts the server down: close the listener, stop every session, wake
// all slot subscribers, and join the session goroutines. Safe to call more
// than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		logger.Debug("Server", "closing server")
		if s.ln != nil {
			_ = s.ln.Close()
		}

		logger.Debug("Server", "waiting for clients to finish")
		s.registry.stopAll()
		s.slot.Close()
		s.wg.Wait()
		s.signalDone()
	})
}
