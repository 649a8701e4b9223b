package history

import (
	"sort"
	"sync"
	"time"

	"github.com/xtding233/foraging-backend/internal/patch"
)

// Entry is one recorded patch state. Seq is the manager's change number.
type Entry struct {
	Seq   uint64      `json:"seq" yaml:"seq"`
	Op    string      `json:"op" yaml:"op"`
	State patch.State `json:"state" yaml:"state"`
	At    time.Time   `json:"at" yaml:"at"`
}

// Memory keeps the most recent entries of a single manager in a ring.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewMemory returns a ring holding at most capacity entries (minimum 1).
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{entries: make([]Entry, capacity)}
}

// Record implements patch.Recorder.
func (m *Memory) Record(seq uint64, op string, s patch.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = Entry{Seq: seq, Op: op, State: s, At: time.Now().UTC()}
	m.next++
	if m.next == len(m.entries) {
		m.next = 0
		m.full = true
	}
}

// Entries returns the retained entries ordered by Seq.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	var out []Entry
	if !m.full {
		out = append(out, m.entries[:m.next]...)
	} else {
		out = make([]Entry, 0, len(m.entries))
		out = append(out, m.entries[m.next:]...)
		out = append(out, m.entries[:m.next]...)
	}
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Patch returns the retained entries for one patch ordered by Seq.
func (m *Memory) Patch(id int) []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if e.State.PatchID == id {
			out = append(out, e)
		}
	}
	return out
}

// Tee fans every record out to rs in order. Nil recorders are skipped.
func Tee(rs ...patch.Recorder) patch.Recorder {
	var out tee
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type tee []patch.Recorder

func (t tee) Record(seq uint64, op string, s patch.State) {
	for _, r := range t {
		r.Record(seq, op, s)
	}
}

var (
	_ patch.Recorder = (*Memory)(nil)
	_ patch.Recorder = (*Run)(nil)
	_ patch.Recorder = tee(nil)
)
