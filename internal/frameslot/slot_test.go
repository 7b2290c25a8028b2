package frameslot

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestPublishThenSubscribe(t *testing.T) {
	s := New()
	s.Publish([]byte("frame-1"))

	frame, epoch, ok := s.Subscribe(0)
	if !ok {
		t.Fatalf("Subscribe ok = false, want true")
	}
	if epoch != 1 {
		t.Errorf("epoch = %d, want 1", epoch)
	}
	if !bytes.Equal(frame, []byte("frame-1")) {
		t.Errorf("frame = %q", frame)
	}
}

func TestSubscribeBlocksUntilPublish(t *testing.T) {
	s := New()

	got := make(chan uint64, 1)
	go func() {
		_, epoch, ok := s.Subscribe(0)
		if ok {
			got <- epoch
		}
	}()

	select {
	case epoch := <-got:
		t.Fatalf("Subscribe returned epoch %d before any publish", epoch)
	case <-time.After(50 * time.Millisecond):
	}

	s.Publish([]byte("x"))

	select {
	case epoch := <-got:
		if epoch != 1 {
			t.Errorf("epoch = %d, want 1", epoch)
		}
	case <-time.After(time.Second):
		t.Fatalf("Subscribe did not wake after publish")
	}
}

func TestSubscribeSkipsToLatest(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Publish([]byte{byte(i)})
	}

	frame, epoch, ok := s.Subscribe(1)
	if !ok {
		t.Fatalf("Subscribe ok = false, want true")
	}
	if epoch != 5 {
		t.Errorf("epoch = %d, want 5", epoch)
	}
	if frame[0] != 4 {
		t.Errorf("frame = %v, want latest", frame)
	}
}

func TestEpochsStrictlyIncreasing(t *testing.T) {
	s := New()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	var seen []uint64
	go func() {
		defer wg.Done()
		var last uint64
		for {
			_, epoch, ok := s.Subscribe(last)
			if !ok {
				return
			}
			seen = append(seen, epoch)
			last = epoch
		}
	}()

	for i := 0; i < n; i++ {
		s.Publish([]byte{byte(i)})
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	s.Close()
	wg.Wait()

	if len(seen) == 0 {
		t.Fatalf("subscriber observed no epochs")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("epochs not strictly increasing: %d then %d", seen[i-1], seen[i])
		}
	}
	if last := seen[len(seen)-1]; last > n {
		t.Fatalf("observed epoch %d beyond publish count %d", last, n)
	}
}

func TestCloseWakesSubscribers(t *testing.T) {
	s := New()

	done := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _, ok := s.Subscribe(0)
			done <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	s.Close()

	for i := 0; i < 3; i++ {
		select {
		case ok := <-done:
			if ok {
				t.Errorf("Subscribe ok = true after Close")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d not woken by Close", i)
		}
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	s := New()
	s.Publish([]byte("a"))
	s.Close()
	s.Publish([]byte("b"))

	if got := s.Epoch(); got != 1 {
		t.Errorf("epoch = %d, want 1", got)
	}
}
