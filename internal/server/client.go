package server

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/liqinliqin/streameye/internal/logger"
)

// Boundary is the multipart boundary token sent to every client.
const Boundary = "jpgboundary"

const responsePreamble = "HTTP/1.0 200 OK\r\n" +
	"Server: streamEye\r\n" +
	"Connection: close\r\n" +
	"Max-Age: 0\r\n" +
	"Expires: 0\r\n" +
	"Cache-Control: no-cache, private\r\n" +
	"Pragma: no-cache\r\n" +
	"Content-Type: multipart/x-mixed-replace; boundary=" + Boundary + "\r\n" +
	"\r\n"

// session is one streaming client connection. It subscribes to the frame
// slot and writes multipart parts until the peer goes away or the server
// shuts down.
type session struct {
	srv  *Server
	conn net.Conn
	addr string

	running  atomic.Bool
	lastSeen uint64
}

func newSession(srv *Server, conn net.Conn) *session {
	s := &session{
		srv:  srv,
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
	s.running.Store(true)
	return s
}

// stop requests session teardown. Closing the connection unblocks a session
// parked in a socket read or write.
func (s *session) stop() {
	s.running.Store(false)
	_ = s.conn.Close()
}

// run drives the session through greeting, streaming and closing. It is the
// session goroutine's entry point.
func (s *session) run() {
	defer s.close()

	if err := s.greet(); err != nil {
		logger.Debug("Client", "%s: greeting failed: %v", s.addr, err)
		return
	}

	s.stream()
}

// greet consumes whatever request the client sent, bounded by the
// configured read timeout, then writes the response preamble. The request
// content is ignored.
func (s *session) greet() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.ClientReadTimeout))
	buf := make([]byte, 1024)
	if _, err := s.conn.Read(buf); err != nil {
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			return fmt.Errorf("read request: %w", err)
		}
		// No request within the timeout; stream anyway.
	}

	if _, err := s.conn.Write([]byte(responsePreamble)); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}

	logger.Debug("Client", "%s: preamble sent", s.addr)
	return nil
}

// stream is the per-frame loop. All socket writes happen outside the frame
// slot; the slot hands out shared immutable frames.
func (s *session) stream() {
	for s.running.Load() {
		frame, epoch, ok := s.srv.slot.Subscribe(s.lastSeen)
		if !ok {
			return
		}
		if !s.running.Load() {
			return
		}

		if missed := epoch - s.lastSeen - 1; missed > 0 && s.lastSeen > 0 {
			s.srv.metrics.ClientFramesDropped.Add(missed)
			logger.Debug("Client", "%s: skipped %d frame(s)", s.addr, missed)
		}
		s.lastSeen = epoch

		if err := s.writePart(frame); err != nil {
			logger.Debug("Client", "%s: write failed: %v", s.addr, err)
			s.srv.metrics.ClientWriteErrors.Add(1)
			return
		}

		s.srv.metrics.ClientFramesSent.Add(1)
		s.srv.metrics.BytesOut.Add(uint64(len(frame)))
	}
}

// writePart emits one multipart part for frame.
func (s *session) writePart(frame []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		Boundary, len(frame))
	if _, err := s.conn.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte("\r\n"))
	return err
}

func (s *session) close() {
	_ = s.conn.Close()
	s.srv.registry.remove(s)
	s.srv.metrics.ActiveClients.Store(uint64(s.srv.registry.count()))
	s.srv.wg.Done()

	logger.Info("Client", "%s: connection closed", s.addr)
}
