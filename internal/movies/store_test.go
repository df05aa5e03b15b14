package movies

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

type fakeCatalog struct {
	mu            sync.Mutex
	pages         map[int]*core.MoviePage
	pageErr       error
	genres        []core.Genre
	genresErr     error
	cast          map[int][]string
	castErr       error
	discoverCalls []int
	castCalls     []int
}

func (f *fakeCatalog) DiscoverMovies(_ context.Context, page int) (*core.MoviePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoverCalls = append(f.discoverCalls, page)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	p, ok := f.pages[page]
	if !ok {
		return nil, &core.TransportError{URL: "/discover/movie", StatusCode: 404}
	}
	return p, nil
}

func (f *fakeCatalog) Genres(_ context.Context) ([]core.Genre, error) {
	return f.genres, f.genresErr
}

func (f *fakeCatalog) Cast(_ context.Context, movieID int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.castCalls = append(f.castCalls, movieID)
	if f.castErr != nil {
		return nil, f.castErr
	}
	return f.cast[movieID], nil
}

func (f *fakeCatalog) FetchImage(_ context.Context, url string) (*core.Image, error) {
	return &core.Image{URL: url}, nil
}

func (f *fakeCatalog) PosterURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://img/list" + path
}

func (f *fakeCatalog) BackdropURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://img/detail" + path
}

func (f *fakeCatalog) discovered() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.discoverCalls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, catalog *fakeCatalog) (*Store, <-chan Event) {
	t.Helper()
	d := NewSerialDispatcher()
	t.Cleanup(d.Close)
	s := New(catalog, d, discardLogger())
	events, cancel := s.Events(16)
	t.Cleanup(cancel)
	return s, events
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case e := <-events:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func page(n, total int, titles ...string) *core.MoviePage {
	p := &core.MoviePage{Page: n, TotalPages: total}
	for i, title := range titles {
		p.Movies = append(p.Movies, core.Movie{ID: n*100 + i, Title: title, PosterPath: "/p.jpg"})
	}
	return p
}

func loadNext(s *Store) bool {
	_, ok := s.LoadNextPage(context.Background())
	return ok
}

func TestGetMovies_AppendsAndUpdatesPaging(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{
		1: page(1, 5, "Minions", "Inside Out"),
		2: page(2, 5, "Jurassic World"),
	}}
	s, events := newTestStore(t, catalog)

	s.GetMovies(context.Background(), 1)
	e := waitEvent(t, events)
	require.NoError(t, e.Err)
	assert.Equal(t, DataUpdated, e.Kind)
	assert.Equal(t, OpMovies, e.Op)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 5, s.PageMax())

	s.GetMovies(context.Background(), 2)
	require.NoError(t, waitEvent(t, events).Err)

	got := s.Movies()
	require.Len(t, got, 3)
	assert.Equal(t, "Minions", got[0].Title)
	assert.Equal(t, "Jurassic World", got[2].Title)
	assert.Equal(t, 2, s.Page())
}

func TestGetMovies_TransportErrorLeavesStateUnchanged(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: page(1, 3, "Minions")}}
	s, events := newTestStore(t, catalog)

	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)
	before := s.Movies()

	catalog.mu.Lock()
	catalog.pageErr = &core.TransportError{URL: "/discover/movie", Err: errors.New("connection refused")}
	catalog.mu.Unlock()

	s.GetMovies(context.Background(), 2)
	e := waitEvent(t, events)
	var transportErr *core.TransportError
	require.ErrorAs(t, e.Err, &transportErr)
	assert.Equal(t, OpMovies, e.Op)
	assert.Equal(t, 2, e.Page)
	expectNoEvent(t, events)

	assert.Equal(t, before, s.Movies())
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 3, s.PageMax())
}

func TestRetrieveGenres_TriggersMovieFetch(t *testing.T) {
	catalog := &fakeCatalog{
		genres: []core.Genre{{ID: 16, Name: "Animation"}, {ID: 35, Name: "Comedy"}},
		pages:  map[int]*core.MoviePage{1: page(1, 2, "Minions")},
	}
	s, events := newTestStore(t, catalog)

	s.RetrieveGenres(context.Background())

	first := waitEvent(t, events)
	require.NoError(t, first.Err)
	assert.Equal(t, OpGenres, first.Op)
	assert.Equal(t, core.GenreLookup{16: "Animation", 35: "Comedy"}, s.Genres())

	second := waitEvent(t, events)
	require.NoError(t, second.Err)
	assert.Equal(t, OpMovies, second.Op)
	assert.Equal(t, []int{1}, catalog.discovered())
	assert.Equal(t, 1, s.Len())
}

func TestRetrieveGenres_FailureSkipsMovieFetch(t *testing.T) {
	catalog := &fakeCatalog{genresErr: &core.DecodeError{What: "genres"}}
	s, events := newTestStore(t, catalog)

	s.RetrieveGenres(context.Background())

	e := waitEvent(t, events)
	assert.ErrorIs(t, e.Err, core.ErrLoadMovies)
	expectNoEvent(t, events)
	assert.Empty(t, catalog.discovered())
	assert.Empty(t, s.Genres())
}

func TestLoadNextPage(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{
		1: page(1, 2, "A"),
		2: page(2, 2, "B"),
	}}
	s, events := newTestStore(t, catalog)

	assert.False(t, loadNext(s), "page count unknown before first fetch")

	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	require.True(t, loadNext(s))
	require.NoError(t, waitEvent(t, events).Err)

	assert.False(t, loadNext(s), "last page reached")
	assert.Equal(t, []int{1, 2}, catalog.discovered())
	assert.Equal(t, 2, s.Len())
}

func TestLoadNextPage_RetriesFailedPage(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: page(1, 3, "A")}}
	s, events := newTestStore(t, catalog)

	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	require.True(t, loadNext(s))
	require.Error(t, waitEvent(t, events).Err)

	catalog.mu.Lock()
	catalog.pages[2] = page(2, 3, "B")
	catalog.mu.Unlock()

	require.True(t, loadNext(s))
	require.NoError(t, waitEvent(t, events).Err)
	assert.Equal(t, []int{1, 2, 2}, catalog.discovered())
}

func TestLoadNextPage_RetriesGapBeforeNewerPage(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{
		1: page(1, 3, "A"),
		3: page(3, 3, "C"),
	}}
	s, events := newTestStore(t, catalog)
	ctx := context.Background()

	_, err := Await(ctx, events, s.GetMovies(ctx, 1), OpMovies)
	require.NoError(t, err)

	// Page 3 is requested while page 2 is still in flight; page 2 then fails.
	req2, ok := s.LoadNextPage(ctx)
	require.True(t, ok)
	req3, ok := s.LoadNextPage(ctx)
	require.True(t, ok)

	e, err := Await(ctx, events, req2, OpMovies)
	require.NoError(t, err)
	require.Error(t, e.Err)
	assert.Equal(t, 2, e.Page)
	e, err = Await(ctx, events, req3, OpMovies)
	require.NoError(t, err)
	require.NoError(t, e.Err)

	catalog.mu.Lock()
	catalog.pages[2] = page(2, 3, "B")
	catalog.mu.Unlock()

	req, ok := s.LoadNextPage(ctx)
	require.True(t, ok, "the failed page must be retried")
	e, err = Await(ctx, events, req, OpMovies)
	require.NoError(t, err)
	require.NoError(t, e.Err)
	assert.Equal(t, 2, e.Page)

	assert.False(t, loadNext(s), "every page is loaded")
	calls := catalog.discovered()
	assert.ElementsMatch(t, []int{1, 2, 3, 2}, calls)
	assert.Equal(t, 2, calls[len(calls)-1])
	assert.Equal(t, 3, s.Len())
}

func TestAwait_IgnoresLateEventsOfEarlierRequests(t *testing.T) {
	catalog := &fakeCatalog{
		pages: map[int]*core.MoviePage{1: page(1, 2, "Minions")},
		cast:  map[int][]string{100: {"Sandra Bullock"}},
	}
	s, events := newTestStore(t, catalog)
	ctx := context.Background()

	_, err := Await(ctx, events, s.GetMovies(ctx, 1), OpMovies)
	require.NoError(t, err)

	// Nobody waits for page 2; its failure stays buffered.
	_, ok := s.LoadNextPage(ctx)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(events) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.SelectMovie(0))
	e, err := Await(ctx, events, s.RetrieveCast(ctx), OpCast)
	require.NoError(t, err)
	assert.Equal(t, OpCast, e.Op)
	assert.NoError(t, e.Err)
	names, movieID := s.Cast()
	assert.Equal(t, 100, movieID)
	assert.Equal(t, []string{"Sandra Bullock"}, names)
}

func TestAwait_ChainedGenreFailureEndsPageWait(t *testing.T) {
	catalog := &fakeCatalog{genresErr: errors.New("boom")}
	s, events := newTestStore(t, catalog)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := Await(ctx, events, s.RetrieveGenres(ctx), OpMovies)
	require.NoError(t, err)
	assert.Equal(t, OpGenres, e.Op)
	assert.EqualError(t, e.Err, "boom")
}

func TestEvents_FullBufferDoesNotStallDispatcher(t *testing.T) {
	d := NewSerialDispatcher()
	t.Cleanup(d.Close)
	s := New(&fakeCatalog{}, d, discardLogger())
	events, cancel := s.Events(1)
	t.Cleanup(cancel)

	seen := make(chan Event, 4)
	s.Subscribe(func(e Event) { seen <- e })

	for range 3 {
		s.Notify(Event{Kind: DataUpdated, Op: OpMovies})
	}
	for range 3 {
		waitEvent(t, seen)
	}
	assert.Len(t, events, 1)
}

func TestSelectMovie(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: page(1, 1, "Minions", "Inside Out")}}
	s, events := newTestStore(t, catalog)
	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	require.NoError(t, s.SelectMovie(1))
	m, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "Inside Out", m.Title)

	for _, idx := range []int{-1, 2, 100} {
		err := s.SelectMovie(idx)
		var nf *core.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, idx, nf.Index)
	}
	m, _ = s.Selected()
	assert.Equal(t, "Inside Out", m.Title, "failed selection must not change state")
}

func TestSelectByTitle(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: page(1, 1, "Minions", "Inside Out")}}
	s, events := newTestStore(t, catalog)
	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	m, err := s.SelectByTitle("Out")
	require.NoError(t, err)
	assert.Equal(t, "Inside Out", m.Title)

	_, err = s.SelectByTitle("zzz")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "zzz", nf.Phrase)

	selected, _ := s.Selected()
	assert.Equal(t, "Inside Out", selected.Title)
}

func TestMatchTranscript_Events(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: page(1, 1, "Minions", "Inside Out")}}
	s, events := newTestStore(t, catalog)
	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	mark := s.LastRequest()
	s.MatchTranscript("Min")
	e := waitEvent(t, events)
	assert.Equal(t, SpeechResult, e.Kind)
	assert.Greater(t, e.Req, mark)
	assert.NoError(t, e.Err)

	s.MatchTranscript("min")
	e = waitEvent(t, events)
	var nf *core.NotFoundError
	assert.ErrorAs(t, e.Err, &nf, "matching is case-sensitive")

	s.SpeechFailed(errors.New("mic unplugged"))
	e = waitEvent(t, events)
	var speechErr *core.SpeechError
	assert.ErrorAs(t, e.Err, &speechErr)
	assert.Equal(t, SpeechResult, e.Kind)
}

func TestRetrieveCast_ReplacesPreviousCast(t *testing.T) {
	catalog := &fakeCatalog{
		pages: map[int]*core.MoviePage{1: page(1, 1, "Minions", "Inside Out")},
		cast: map[int][]string{
			100: {"Sandra Bullock", "Jon Hamm"},
			101: {"Amy Poehler"},
		},
	}
	s, events := newTestStore(t, catalog)
	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)

	require.NoError(t, s.SelectMovie(0))
	s.RetrieveCast(context.Background())
	require.NoError(t, waitEvent(t, events).Err)
	cast, id := s.Cast()
	assert.Equal(t, []string{"Sandra Bullock", "Jon Hamm"}, cast)
	assert.Equal(t, 100, id)

	require.NoError(t, s.SelectMovie(1))
	s.RetrieveCast(context.Background())
	require.NoError(t, waitEvent(t, events).Err)
	cast, id = s.Cast()
	assert.Equal(t, []string{"Amy Poehler"}, cast)
	assert.Equal(t, 101, id)
}

func TestRetrieveCast_WithoutSelection(t *testing.T) {
	catalog := &fakeCatalog{}
	s, events := newTestStore(t, catalog)

	s.RetrieveCast(context.Background())
	e := waitEvent(t, events)
	var nf *core.NotFoundError
	require.ErrorAs(t, e.Err, &nf)
	assert.Equal(t, OpCast, e.Op)
	assert.Empty(t, catalog.castCalls)
}

func TestRetrieveCast_ErrorKeepsCast(t *testing.T) {
	catalog := &fakeCatalog{
		pages: map[int]*core.MoviePage{1: page(1, 1, "Minions")},
		cast:  map[int][]string{100: {"Sandra Bullock"}},
	}
	s, events := newTestStore(t, catalog)
	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)
	require.NoError(t, s.SelectMovie(0))
	s.RetrieveCast(context.Background())
	require.NoError(t, waitEvent(t, events).Err)

	catalog.mu.Lock()
	catalog.castErr = &core.TransportError{URL: "/movie/100/credits", StatusCode: 500}
	catalog.mu.Unlock()

	s.RetrieveCast(context.Background())
	require.Error(t, waitEvent(t, events).Err)
	cast, _ := s.Cast()
	assert.Equal(t, []string{"Sandra Bullock"}, cast)
}

func TestStore_BackdropURL(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int]*core.MoviePage{1: {
		Page: 1, TotalPages: 1,
		Movies: []core.Movie{{ID: 1, Title: "A", BackdropPath: "/b.jpg"}},
	}}}
	s, events := newTestStore(t, catalog)
	assert.Empty(t, s.BackdropURL())

	s.GetMovies(context.Background(), 1)
	require.NoError(t, waitEvent(t, events).Err)
	require.NoError(t, s.SelectMovie(0))
	assert.Equal(t, "https://img/detail/b.jpg", s.BackdropURL())
}

// queueDispatcher holds callbacks until drain is called.
type queueDispatcher struct {
	mu    sync.Mutex
	queue []func()
}

func (q *queueDispatcher) Dispatch(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

func (q *queueDispatcher) drain() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		fn()
	}
}

func TestNotify_NeverSynchronous(t *testing.T) {
	d := &queueDispatcher{}
	s := New(&fakeCatalog{}, d, discardLogger())

	var got []Event
	unsubscribe := s.Subscribe(func(e Event) { got = append(got, e) })

	s.Notify(Event{Kind: DataUpdated, Op: OpMovies})
	s.RetrieveCast(context.Background())
	assert.Empty(t, got, "events must not be delivered on the caller's goroutine")

	d.drain()
	require.Len(t, got, 2)
	assert.Equal(t, OpCast, got[1].Op)

	unsubscribe()
	s.Notify(Event{Kind: DataUpdated})
	d.drain()
	assert.Len(t, got, 2, "unsubscribed callback must not run")
}

func TestSubscribe_MultipleSubscribers(t *testing.T) {
	d := &queueDispatcher{}
	s := New(&fakeCatalog{}, d, discardLogger())

	var a, b int
	s.Subscribe(func(Event) { a++ })
	s.Subscribe(func(Event) { b++ })

	s.Notify(Event{Kind: SpeechResult})
	d.drain()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEvents_CancelClosesChannel(t *testing.T) {
	d := NewSerialDispatcher()
	defer d.Close()
	s := New(&fakeCatalog{}, d, discardLogger())

	events, cancel := s.Events(0)
	cancel()
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestNew_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { New(nil, &queueDispatcher{}, nil) })
	assert.Panics(t, func() { New(&fakeCatalog{}, nil, nil) })
}
