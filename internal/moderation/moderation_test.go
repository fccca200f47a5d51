package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
)

type window struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (w *window) Find(id string) (domain.Message, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, m := range w.msgs {
		if m.ID == id {
			return m, i, true
		}
	}
	return domain.Message{}, -1, false
}

func (w *window) Apply(m domain.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.msgs {
		if w.msgs[i].ID == m.ID {
			w.msgs[i] = m
			return true
		}
	}
	return false
}

type oneStore struct{ s docstore.Store }

func (o oneStore) ResolveStore(string) (docstore.Store, error) { return o.s, nil }

func setup(t *testing.T) (*docstore.Partition, *window) {
	t.Helper()
	p, err := docstore.Open(docstore.Options{Name: "M", Path: filepath.Join(t.TempDir(), "m.db"), Migrate: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	w := &window{}
	for _, body := range []string{"first", "second"} {
		m, err := p.Insert(context.Background(), domain.Message{Channel: "confessions", Username: "owl", Content: body})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		w.msgs = append(w.msgs, m)
	}
	return p, w
}

func TestReplyTo_ClipsSnapshot(t *testing.T) {
	long := strings.Repeat("é", 150)
	link := ReplyTo(domain.Message{ID: "m1", Username: "owl", Content: long})
	if link.MessageID != "m1" || link.Username != "owl" {
		t.Fatalf("link=%+v", link)
	}
	if n := utf8.RuneCountInString(link.Content); n != ReplyPreviewRunes {
		t.Fatalf("snapshot has %d runes", n)
	}
	if short := ReplyTo(domain.Message{Content: "hi"}); short.Content != "hi" {
		t.Fatalf("short body changed: %q", short.Content)
	}
}

func TestReplyAndLocate_OnlyLoadedMessages(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, nil, zerolog.Nop())

	i, err := s.Locate(w.msgs[1].ID)
	if err != nil || i != 1 {
		t.Fatalf("Locate=%d,%v", i, err)
	}
	link, err := s.Reply(w.msgs[0].ID)
	if err != nil || link.Content != "first" {
		t.Fatalf("Reply=%+v,%v", link, err)
	}
	if _, err := s.Locate("not-loaded"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("Locate of unloaded message: %v", err)
	}
	if _, err := s.Reply("not-loaded"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Reply of unloaded message: %v", err)
	}
}

func TestReport_FlagsAtThresholdOncePerSession(t *testing.T) {
	p, w := setup(t)
	kv := kvstore.NewMemory(0)
	s := NewService(w, oneStore{p}, nil, kv, zerolog.Nop())
	ctx := context.Background()
	id := w.msgs[0].ID

	for i, session := range []string{"anon-a", "anon-b"} {
		m, err := s.Report(ctx, session, "confessions", id)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if m.ReportCount != i+1 || m.Reported {
			t.Fatalf("after %d reports: count=%d reported=%v", i+1, m.ReportCount, m.Reported)
		}
	}
	if _, err := s.Report(ctx, "anon-a", "confessions", id); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("second report by the same session: %v", err)
	}
	m, err := s.Report(ctx, "anon-c", "confessions", id)
	if err != nil {
		t.Fatalf("third report: %v", err)
	}
	if m.ReportCount != 3 || !m.Reported {
		t.Fatalf("third report should flag: %+v", m)
	}
	if got, _, _ := w.Find(id); !got.Reported {
		t.Fatalf("window should show the flag")
	}
}

func TestReport_ConcurrentReportersAllCount(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, kvstore.NewMemory(0), zerolog.Nop())
	id := w.msgs[1].ID

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Report(context.Background(), "anon-"+string(rune('a'+i)), "confessions", id); err != nil {
				t.Errorf("report: %v", err)
			}
		}(i)
	}
	wg.Wait()
	m, err := p.Query(context.Background(), docstore.Query{Channel: "confessions", Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	found := false
	for _, x := range m {
		if x.ID != id {
			continue
		}
		found = true
		if x.ReportCount != 6 || !x.Reported {
			t.Fatalf("stored count=%d reported=%v", x.ReportCount, x.Reported)
		}
	}
	if !found {
		t.Fatalf("reported message missing from query")
	}
}

func TestReport_UnknownMessage(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, nil, zerolog.Nop())
	if _, err := s.Report(context.Background(), "anon-a", "confessions", "missing"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReport_WrongChannel(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, nil, zerolog.Nop())
	if _, err := s.Report(context.Background(), "anon-a", "general", w.msgs[0].ID); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReport_OtherRoomOfSamePartitionIsNotFound(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, kvstore.NewMemory(0), zerolog.Nop())
	ctx := context.Background()
	game, err := p.Insert(ctx, domain.Message{Channel: "athletics", Username: "owl", Content: "game tonight"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := s.Report(ctx, "anon-a", "library", game.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("report from library: %v", err)
	}
	got, err := p.Query(ctx, docstore.Query{Channel: "athletics", Limit: 10})
	if err != nil || len(got) != 1 {
		t.Fatalf("Query = %v, %v", got, err)
	}
	if got[0].ReportCount != 0 || got[0].Reported {
		t.Fatalf("count=%d reported=%v after a rejected report", got[0].ReportCount, got[0].Reported)
	}

	// The failed attempt leaves no marker behind.
	if m, err := s.Report(ctx, "anon-a", "athletics", game.ID); err != nil || m.ReportCount != 1 {
		t.Fatalf("report from athletics = %+v, %v", m, err)
	}
}

func TestReport_SameSessionConcurrentCountsOnce(t *testing.T) {
	p, w := setup(t)
	s := NewService(w, oneStore{p}, nil, kvstore.NewMemory(0), zerolog.Nop())
	id := w.msgs[0].ID

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, dup int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Report(context.Background(), "anon-a", "confessions", id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyReported):
				dup++
			default:
				t.Errorf("report: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || dup != n-1 {
		t.Fatalf("accepted=%d duplicates=%d; want 1 and %d", ok, dup, n-1)
	}
	if got, _, _ := w.Find(id); got.ReportCount != 1 {
		t.Fatalf("stored count = %d; want 1", got.ReportCount)
	}
	if len(s.pending) != 0 {
		t.Fatalf("report locks leaked: %d", len(s.pending))
	}
}
