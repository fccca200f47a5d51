package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// State is the lifecycle state of a channel view.
type State int

const (
	Idle State = iota
	LoadingCacheHistory
	LoadingServerHistory
	Live
	LoadingMoreHistory
)

func (s State) String() string {
	switch s {
	case LoadingCacheHistory:
		return "loading_cache_history"
	case LoadingServerHistory:
		return "loading_server_history"
	case Live:
		return "live"
	case LoadingMoreHistory:
		return "loading_more_history"
	default:
		return "idle"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= LoadingMoreHistory; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("feed: unknown state %q", b)
}

// Window is the loaded slice of one channel, oldest first.
type Window struct {
	Channel  string
	Messages []domain.Message
	// Oldest is the creation time of Messages[0], the backward paging cursor.
	Oldest time.Time
	// HasMore is false once a history page came back short.
	HasMore bool
	// LiveSince separates paged history from live deliveries.
	LiveSince time.Time
}

func newWindow(channel string) Window {
	return Window{Channel: channel, HasMore: true}
}

// less orders by creation time, then id.
func less(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// replace sets the window contents from a newest-first page.
func (w *Window) replace(newestFirst []domain.Message) {
	w.Messages = w.Messages[:0:0]
	w.Oldest = time.Time{}
	w.add(newestFirst)
}

// add merges msgs in, skipping ids already present and keeping creation
// order. It returns how many messages were new.
func (w *Window) add(msgs []domain.Message) int {
	seen := make(map[string]struct{}, len(w.Messages))
	for _, m := range w.Messages {
		seen[m.ID] = struct{}{}
	}
	added := 0
	appendOnly := true
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup || m.Channel != "" && m.Channel != w.Channel {
			continue
		}
		seen[m.ID] = struct{}{}
		if n := len(w.Messages); n > 0 && less(m, w.Messages[n-1]) {
			appendOnly = false
		}
		w.Messages = append(w.Messages, m)
		added++
	}
	if !appendOnly {
		sort.SliceStable(w.Messages, func(i, j int) bool { return less(w.Messages[i], w.Messages[j]) })
	}
	if len(w.Messages) > 0 {
		w.Oldest = w.Messages[0].CreatedAt
	}
	return added
}

// update swaps in a newer copy of a loaded message.
func (w *Window) update(m domain.Message) bool {
	if i := w.index(m.ID); i >= 0 {
		w.Messages[i] = m
		return true
	}
	return false
}

func (w *Window) index(id string) int {
	for i := range w.Messages {
		if w.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (w *Window) newest() (time.Time, bool) {
	if len(w.Messages) == 0 {
		return time.Time{}, false
	}
	return w.Messages[len(w.Messages)-1].CreatedAt, true
}

func (w *Window) clone() []domain.Message {
	return append([]domain.Message(nil), w.Messages...)
}
