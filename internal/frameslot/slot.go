// Package frameslot provides a single-slot latest-frame rendezvous between
// one producer and many consumers.
//
// The slot holds at most one frame. Publishing replaces the previous frame
// and wakes every waiting subscriber; a subscriber that re-enters Subscribe
// after the producer has moved on skips directly to the newest frame. There
// is no queue and the producer never waits for consumers.
package frameslot

import "sync"

// Slot is the shared latest-frame slot. Frames are treated as immutable
// once published: Publish stores the slice by reference and subscribers
// must not modify the bytes they receive.
type Slot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  []byte
	epoch  uint64
	closed bool
}

// New creates an empty slot at epoch 0.
func New() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish replaces the slot contents with frame, increments the epoch and
// wakes all subscribers. The caller gives up ownership of frame.
func (s *Slot) Publish(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.frame = frame
	s.epoch++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Subscribe blocks until the slot holds a frame with an epoch greater than
// lastSeen, or the slot is closed. It returns the frame, its epoch, and
// ok=false once the slot is closed. Consecutive calls with the returned
// epoch observe strictly increasing epochs and never see a frame twice.
func (s *Slot) Subscribe(lastSeen uint64) (frame []byte, epoch uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.epoch <= lastSeen && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, lastSeen, false
	}
	return s.frame, s.epoch, true
}

// Epoch returns the current publication count.
func (s *Slot) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Close marks the slot closed and wakes every subscriber. Publish becomes a
// no-op afterwards.
func (s *Slot) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
