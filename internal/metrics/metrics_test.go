package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestCountersExposed(t *testing.T) {
	m := New(func() InputStats {
		return InputStats{BytesIn: 4096, Frames: 7, Discards: 1}
	})
	m.FramesPublished.Add(7)
	m.ActiveClients.Store(2)

	body := scrape(t, m)

	for _, want := range []string{
		"streameye_frames_published_total 7",
		"streameye_active_clients 2",
		"streameye_input_bytes_total 4096",
		"streameye_input_frames_total 7",
		"streameye_input_discards_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilInputStats(t *testing.T) {
	m := New(nil)
	body := scrape(t, m)

	if strings.Contains(body, "streameye_input_bytes_total") {
		t.Errorf("input metrics registered without a stats source")
	}
	if !strings.Contains(body, "streameye_frames_published_total") {
		t.Errorf("fan-out metrics missing")
	}
}
