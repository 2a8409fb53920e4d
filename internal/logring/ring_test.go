package logring

import (
	"strings"
	"testing"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
)

func TestRing_AppendAndTail(t *testing.T) {
	r := New(3)
	r.SetNow(func() time.Time {
		return time.Date(2026, time.August, 24, 10, 0, 0, 0, markethours.IST)
	})

	r.Appendf("one")
	r.Appendf("two")

	lines := r.Lines()
	if len(lines) != 2 {
		t.Fatalf("len=%d, want 2", len(lines))
	}
	if !strings.HasSuffix(lines[0], "one") || !strings.HasSuffix(lines[1], "two") {
		t.Errorf("unexpected order: %v", lines)
	}
	if !strings.HasPrefix(lines[0], "[24-08-2026 10:00:00]") {
		t.Errorf("missing IST timestamp prefix: %q", lines[0])
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New(2)
	r.Appendf("a")
	r.Appendf("b")
	r.Appendf("c")

	lines := r.Lines()
	if len(lines) != 2 {
		t.Fatalf("len=%d, want 2", len(lines))
	}
	if !strings.HasSuffix(lines[0], "b") || !strings.HasSuffix(lines[1], "c") {
		t.Errorf("oldest not overwritten: %v", lines)
	}
}

func TestRing_Tail(t *testing.T) {
	r := New(10)
	for _, s := range []string{"1", "2", "3", "4"} {
		r.Appendf(s)
	}
	tail := r.Tail(2)
	if len(tail) != 2 || !strings.HasSuffix(tail[0], "3") || !strings.HasSuffix(tail[1], "4") {
		t.Errorf("Tail(2)=%v", tail)
	}
	if got := r.Tail(100); len(got) != 4 {
		t.Errorf("Tail(100) len=%d, want 4", len(got))
	}
}

func TestRing_Subscribe(t *testing.T) {
	r := New(5)
	ch, cancel := r.Subscribe(2)
	defer cancel()

	r.Appendf("hello")
	select {
	case line := <-ch:
		if !strings.HasSuffix(line, "hello") {
			t.Errorf("got %q", line)
		}
	default:
		t.Fatal("no line delivered to subscriber")
	}

	cancel()
	r.Appendf("after cancel")
	select {
	case line := <-ch:
		t.Fatalf("received after cancel: %q", line)
	default:
	}
}

func TestRing_SlowSubscriberDrops(t *testing.T) {
	r := New(5)
	ch, cancel := r.Subscribe(1)
	defer cancel()

	r.Appendf("1")
	r.Appendf("2") // buffer full, must not block
	if got := len(ch); got != 1 {
		t.Errorf("buffered=%d, want 1", got)
	}
}
