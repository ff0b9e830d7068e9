// Package convo holds the append-only conversation log and the progressive
// "typing" reveal used for agent replies.
package convo

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voicelab/voicebridge/internal/domain"
)

// Log is an insertion-ordered record of exchanged messages. Entries are
// never removed within a session; an entry mutates in place only while a
// reveal is progressing on it.
type Log struct {
	mu       sync.Mutex
	entries  []*domain.ConversationEntry
	onChange func()
	reveal   *revealTask
	now      func() time.Time
}

func New() *Log {
	return &Log{now: time.Now}
}

// OnChange registers a single change-notification hook, called after every
// append and after every reveal step. It decouples state ownership from
// rendering; the callback must not call back into the Log.
func (l *Log) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Append adds one entry and returns its handle. The handle is only needed
// for entries that will be progressively revealed.
func (l *Log) Append(sender domain.Sender, text string) *domain.ConversationEntry {
	l.mu.Lock()
	e := &domain.ConversationEntry{
		Sender:    sender,
		Text:      text,
		Timestamp: l.now(),
	}
	l.entries = append(l.entries, e)
	fn := l.onChange
	l.mu.Unlock()

	log.Debug().Str("module", "convo").Str("sender", string(sender)).Msg("entry appended")
	if fn != nil {
		fn()
	}
	return e
}

// Entries returns a snapshot copy of the log.
func (l *Log) Entries() []domain.ConversationEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ConversationEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// Len reports the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type revealTask struct {
	entry        *domain.ConversationEntry
	full         string
	pos          int
	charsPerTick int
	stop         chan struct{}
	done         bool
}

// Reveal grows the entry's text by charsPerTick characters every tick until
// the full text is shown, with IsTyping set for the duration. Receipt and
// presentation are deliberately separate: the caller already has the full
// text when the reveal starts. At most one reveal runs per log; starting a
// new one finalizes the previous entry immediately so no typing marker is
// orphaned.
func (l *Log) Reveal(entry *domain.ConversationEntry, full string, charsPerTick int, tick time.Duration) {
	if charsPerTick < 1 {
		charsPerTick = 1
	}

	l.mu.Lock()
	l.finalizeLocked()
	entry.Text = ""
	entry.IsTyping = true
	task := &revealTask{
		entry:        entry,
		full:         full,
		charsPerTick: charsPerTick,
		stop:         make(chan struct{}),
	}
	l.reveal = task
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
	go l.run(task, tick)
}

// FinishReveal finalizes any in-flight reveal synchronously.
func (l *Log) FinishReveal() {
	l.mu.Lock()
	l.finalizeLocked()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// finalizeLocked completes the current reveal, if any. Caller holds l.mu.
func (l *Log) finalizeLocked() {
	t := l.reveal
	if t == nil || t.done {
		return
	}
	t.done = true
	t.entry.Text = t.full
	t.entry.IsTyping = false
	close(t.stop)
	l.reveal = nil
}

func (l *Log) run(task *revealTask, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-task.stop:
			return
		case <-ticker.C:
			if l.step(task) {
				return
			}
		}
	}
}

// step advances one tick and reports whether the reveal completed.
func (l *Log) step(task *revealTask) bool {
	l.mu.Lock()
	if task.done {
		l.mu.Unlock()
		return true
	}
	task.pos += task.charsPerTick
	runes := []rune(task.full)
	finished := task.pos >= len(runes)
	if finished {
		task.pos = len(runes)
		task.done = true
		task.entry.IsTyping = false
		l.reveal = nil
	}
	task.entry.Text = string(runes[:task.pos])
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
	return finished
}
