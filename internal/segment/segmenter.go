// Package segment carves a raw MJPEG byte stream into individual JPEG frames.
//
// The input is a concatenation of JPEG images, optionally delimited by a
// caller-supplied separator. Frames are detected purely by marker bytes; the
// JPEG payload itself is never interpreted.
package segment

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"

	"github.com/liqinliqin/streameye/internal/logger"
)

const (
	// InputBufLen is the size of a single read from the input stream.
	InputBufLen = 64 * 1024

	// JPEGBufLen bounds the accumulator; a frame that would grow past
	// JPEGBufLen-1 bytes is discarded.
	JPEGBufLen = 4 * 1024 * 1024
)

var (
	// JPEGStart is the JPEG start-of-image marker.
	JPEGStart = []byte{0xFF, 0xD8}
	// JPEGEnd is the JPEG end-of-image marker.
	JPEGEnd = []byte{0xFF, 0xD9}

	// autoSeparator is EOI immediately followed by SOI, the boundary
	// between two concatenated JPEG frames.
	autoSeparator = []byte{0xFF, 0xD9, 0xFF, 0xD8}
)

// ErrInputClosed is returned by Next after the input stream has ended.
var ErrInputClosed = errors.New("segment: input stream closed")

// Stats is a snapshot of segmenter counters.
type Stats struct {
	FramesOut uint64
	BytesIn   uint64
	Discards  uint64
}

// Segmenter accumulates input chunks and emits complete JPEG frames.
// It is driven by a single goroutine; only Stats may be called concurrently.
type Segmenter struct {
	r      io.Reader
	sep    []byte
	auto   bool
	maxBuf int

	buf     []byte
	chunk   []byte
	pending [][]byte
	err     error

	framesOut atomic.Uint64
	bytesIn   atomic.Uint64
	discards  atomic.Uint64
}

// New creates a Segmenter reading from r. A nil or empty sep selects the
// automatic EOI+SOI boundary; an explicit sep is stripped from the output.
func New(r io.Reader, sep []byte) *Segmenter {
	auto := len(sep) == 0
	if auto {
		sep = autoSeparator
	}
	return &Segmenter{
		r:      r,
		sep:    sep,
		auto:   auto,
		maxBuf: JPEGBufLen,
		buf:    make([]byte, 0, JPEGBufLen),
		chunk:  make([]byte, InputBufLen),
	}
}

// AutoSeparator reports whether frame boundaries are auto-detected.
func (s *Segmenter) AutoSeparator() bool {
	return s.auto
}

// SeparatorLen returns the length of the active separator in bytes.
func (s *Segmenter) SeparatorLen() int {
	return len(s.sep)
}

// Stats returns a snapshot of the segmenter counters.
func (s *Segmenter) Stats() Stats {
	return Stats{
		FramesOut: s.framesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		Discards:  s.discards.Load(),
	}
}

// Next returns the next complete frame. Each returned slice is freshly
// allocated and owned by the caller. Once the input ends, Next returns
// ErrInputClosed; any partial frame left in the accumulator is dropped.
func (s *Segmenter) Next() ([]byte, error) {
	for {
		if len(s.pending) > 0 {
			frame := s.pending[0]
			s.pending = s.pending[1:]
			return frame, nil
		}
		if s.err != nil {
			return nil, s.err
		}

		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.bytesIn.Add(uint64(n))
			if n > s.maxBuf-1-len(s.buf) {
				logger.Error("Segmenter", "input: jpeg size too large, discarding buffer (%d bytes)", len(s.buf)+n)
				s.discards.Add(1)
				s.buf = s.buf[:0]
			} else {
				s.buf = append(s.buf, s.chunk[:n]...)
				s.scan()
			}
		}
		if err != nil {
			if err == io.EOF {
				logger.Debug("Segmenter", "input: end of stream")
				s.flushFinal()
				s.err = ErrInputClosed
			} else {
				s.err = err
			}
		}
	}
}

// flushFinal emits the accumulator tail at end of input when it forms a
// complete frame. Only auto mode flushes: a trailing SOI..EOI sequence is
// the stream's last frame, while an explicitly separated stream ends at the
// last separator and the tail is dropped.
func (s *Segmenter) flushFinal() {
	if !s.auto || len(s.buf) < len(JPEGStart)+len(JPEGEnd) {
		return
	}
	if !bytes.HasPrefix(s.buf, JPEGStart) || !bytes.HasSuffix(s.buf, JPEGEnd) {
		return
	}

	frame := bytes.Clone(s.buf)
	logger.Debug("Segmenter", "input: jpeg buffer ready with %d bytes", len(frame))
	s.pending = append(s.pending, frame)
	s.framesOut.Add(1)
	s.buf = s.buf[:0]
}

// scan repeatedly searches the tail of the accumulator for the separator and
// moves completed frames to the pending queue. The search window is bounded
// to min(2*InputBufLen, size): a separator whose final byte was just
// appended cannot start earlier than one chunk before the tail.
func (s *Segmenter) scan() {
	for {
		win := 2 * InputBufLen
		if win > len(s.buf) {
			win = len(s.buf)
		}
		start := len(s.buf) - win

		k := bytes.Index(s.buf[start:], s.sep)
		if k < 0 {
			return
		}
		k += start

		var frame []byte
		var rem int
		if s.auto {
			// Keep the trailing EOI on the emitted frame and the
			// leading SOI on the remainder.
			frame = bytes.Clone(s.buf[:k+len(JPEGEnd)])
			rem = k + len(JPEGEnd)
		} else {
			frame = bytes.Clone(s.buf[:k])
			rem = k + len(s.sep)
		}

		logger.Debug("Segmenter", "input: jpeg buffer ready with %d bytes", len(frame))
		s.pending = append(s.pending, frame)
		s.framesOut.Add(1)
		s.buf = append(s.buf[:0], s.buf[rem:]...)
	}
}
