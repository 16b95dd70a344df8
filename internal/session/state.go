package session

import (
	"time"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const MaxEntries = 20

// Entry is one generation attempt as shown in the history.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Model     string
	Mode      string
	Prompt    string

	Image       []byte
	ContentType string
	Base64      string

	Notices []string
	Message string
	Status  int
	Body    string
}

func (e Entry) Failed() bool { return len(e.Image) == 0 }

// State is the whole of a user's session. It is a value: every interaction
// takes the previous State and returns the next one.
type State struct {
	ID            string
	Entries       []Entry
	LastReference *inference.Reference
}

func New() State {
	return State{ID: uuid.NewString()}
}

// Record returns a copy of s with e appended, keeping the newest MaxEntries.
func (s State) Record(e Entry) State {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	entries := make([]Entry, 0, len(s.Entries)+1)
	entries = append(entries, s.Entries...)
	entries = append(entries, e)
	if len(entries) > MaxEntries {
		entries = lo.Drop(entries, len(entries)-MaxEntries)
	}
	s.Entries = entries
	return s
}

func (s State) WithReference(ref *inference.Reference) State {
	s.LastReference = ref
	return s
}

func (s State) Entry(id string) (Entry, bool) {
	return lo.Find(s.Entries, func(e Entry) bool { return e.ID == id })
}

func (s State) Latest() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

// History lists entries newest first.
func (s State) History() []Entry {
	return lo.Reverse(append([]Entry(nil), s.Entries...))
}
