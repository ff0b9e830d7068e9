package convo

import (
	"testing"
	"time"

	"github.com/voicelab/voicebridge/internal/domain"
)

func TestLog_AppendOrdering(t *testing.T) {
	l := New()
	l.Append(domain.SenderSystem, "first")
	l.Append(domain.SenderUser, "second")
	l.Append(domain.SenderAgent, "third")

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"first", "second", "third"}
	for i, e := range entries {
		if e.Text != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], e.Text)
		}
	}
	if entries[1].Timestamp.Before(entries[0].Timestamp) {
		t.Error("timestamps out of order")
	}
}

func TestLog_OnChangeFires(t *testing.T) {
	l := New()
	calls := 0
	l.OnChange(func() { calls++ })
	l.Append(domain.SenderSystem, "hello")
	if calls != 1 {
		t.Errorf("expected 1 change notification, got %d", calls)
	}
}

func typingCount(l *Log) int {
	n := 0
	for _, e := range l.Entries() {
		if e.IsTyping {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLog_RevealCompletes(t *testing.T) {
	l := New()
	e := l.Append(domain.SenderAgent, "")
	l.Reveal(e, "hello world", 3, time.Millisecond)

	waitFor(t, func() bool {
		entries := l.Entries()
		return entries[0].Text == "hello world" && !entries[0].IsTyping
	})
}

func TestLog_AtMostOneTyping(t *testing.T) {
	l := New()
	first := l.Append(domain.SenderAgent, "")
	l.Reveal(first, "a long first reply that keeps typing", 1, 50*time.Millisecond)

	if typingCount(l) != 1 {
		t.Fatalf("expected 1 typing entry, got %d", typingCount(l))
	}

	// Starting a second reveal must finalize the first immediately.
	second := l.Append(domain.SenderAgent, "")
	l.Reveal(second, "second reply", 1, 50*time.Millisecond)

	entries := l.Entries()
	if entries[0].IsTyping {
		t.Error("first entry still typing after new reveal started")
	}
	if entries[0].Text != "a long first reply that keeps typing" {
		t.Errorf("first entry not finalized: %q", entries[0].Text)
	}
	if typingCount(l) != 1 {
		t.Errorf("expected exactly 1 typing entry, got %d", typingCount(l))
	}
	l.FinishReveal()
	if typingCount(l) != 0 {
		t.Errorf("expected no typing entries after FinishReveal, got %d", typingCount(l))
	}
}

func TestLog_FinishRevealIdempotent(t *testing.T) {
	l := New()
	l.FinishReveal()
	e := l.Append(domain.SenderAgent, "")
	l.Reveal(e, "reply", 2, time.Hour)
	l.FinishReveal()
	l.FinishReveal()

	entries := l.Entries()
	if entries[0].Text != "reply" || entries[0].IsTyping {
		t.Errorf("entry not finalized: %+v", entries[0])
	}
}
