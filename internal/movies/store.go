// Package movies holds the browsing state of one session: the movie list,
// the genre lookup, the cast of the selected movie and the paging cursor.
// Catalog requests run in the background; their results are applied and
// announced on the Store's Dispatcher.
package movies

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

// Store is the view-model shared by every frontend.
type Store struct {
	catalog  core.Catalog
	dispatch Dispatcher
	logger   *slog.Logger

	mu            sync.RWMutex
	movies        []core.Movie
	genres        core.GenreLookup
	cast          []string
	castMovieID   int
	currentPage   int
	pageMax       int
	lastRequested int
	failedPages   map[int]bool // pages whose last fetch failed; LoadNextPage retries them first
	selected      *core.Movie

	reqSeq atomic.Uint64

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an empty Store positioned on page 1.
func New(catalog core.Catalog, dispatch Dispatcher, logger *slog.Logger) *Store {
	if catalog == nil {
		panic("movies.New: catalog must not be nil")
	}
	if dispatch == nil {
		panic("movies.New: dispatcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:     catalog,
		dispatch:    dispatch,
		logger:      logger,
		genres:      core.GenreLookup{},
		currentPage: 1,
		failedPages: make(map[int]bool),
		subs:        make(map[int]func(Event)),
	}
}

// RetrieveGenres loads the genre lookup and, once it succeeds, the current
// movie page. Each step produces its own DataUpdated event; both carry the
// returned Request.
func (s *Store) RetrieveGenres(ctx context.Context) Request {
	req := s.newRequest()
	go func() {
		genres, err := s.catalog.Genres(ctx)
		s.dispatch.Dispatch(func() {
			if err != nil {
				s.logger.Warn("genre fetch failed", slog.String("error", err.Error()))
				s.deliver(Event{Kind: DataUpdated, Op: OpGenres, Req: req, Err: err})
				return
			}

			s.mu.Lock()
			s.genres = core.NewGenreLookup(genres)
			page := s.currentPage
			s.mu.Unlock()

			s.logger.Debug("genres loaded", slog.Int("count", len(genres)))
			s.deliver(Event{Kind: DataUpdated, Op: OpGenres, Req: req})
			s.getMovies(ctx, page, req)
		})
	}()
	return req
}

// GetMovies requests a discovery page and appends its movies to the list.
// Callers must not request pages beyond PageMax; LoadNextPage does that check.
func (s *Store) GetMovies(ctx context.Context, page int) Request {
	req := s.newRequest()
	s.getMovies(ctx, page, req)
	return req
}

func (s *Store) getMovies(ctx context.Context, page int, req Request) {
	s.mu.Lock()
	if page > s.lastRequested {
		s.lastRequested = page
	}
	delete(s.failedPages, page)
	s.mu.Unlock()

	go func() {
		result, err := s.catalog.DiscoverMovies(ctx, page)
		s.dispatch.Dispatch(func() {
			if err != nil {
				s.mu.Lock()
				s.failedPages[page] = true
				s.mu.Unlock()
				s.logger.Warn("movie page fetch failed",
					slog.Int("page", page),
					slog.String("error", err.Error()),
				)
				s.deliver(Event{Kind: DataUpdated, Op: OpMovies, Req: req, Page: page, Err: err})
				return
			}

			s.mu.Lock()
			s.movies = append(s.movies, result.Movies...)
			if result.Page > 0 {
				s.currentPage = result.Page
			}
			s.pageMax = result.TotalPages
			total := len(s.movies)
			s.mu.Unlock()

			s.logger.Debug("movie page loaded",
				slog.Int("page", page),
				slog.Int("added", len(result.Movies)),
				slog.Int("skipped", result.Skipped),
				slog.Int("total", total),
			)
			s.deliver(Event{Kind: DataUpdated, Op: OpMovies, Req: req, Page: page})
		})
	}()
}

// LoadNextPage requests the lowest page whose fetch failed or, without one,
// the page after the last requested one. Nothing is requested while the page
// count is unknown or once it is exhausted; ok reports whether a request was
// issued.
func (s *Store) LoadNextPage(ctx context.Context) (req Request, ok bool) {
	s.mu.RLock()
	next := s.lastRequested + 1
	for page := range s.failedPages {
		if page < next {
			next = page
		}
	}
	exhausted := s.pageMax == 0 || next > s.pageMax
	s.mu.RUnlock()

	if exhausted {
		return 0, false
	}
	return s.GetMovies(ctx, next), true
}

// RetrieveCast loads the cast of the selected movie, replacing any cast
// loaded for a previous selection. Without a selection it reports a
// NotFoundError and issues no catalog call.
func (s *Store) RetrieveCast(ctx context.Context) Request {
	req := s.newRequest()

	s.mu.RLock()
	var movieID int
	hasSelection := s.selected != nil
	if hasSelection {
		movieID = s.selected.ID
	}
	s.mu.RUnlock()

	if !hasSelection {
		s.Notify(Event{Kind: DataUpdated, Op: OpCast, Req: req, Err: &core.NotFoundError{Index: -1}})
		return req
	}

	go func() {
		names, err := s.catalog.Cast(ctx, movieID)
		s.dispatch.Dispatch(func() {
			if err != nil {
				s.logger.Warn("cast fetch failed",
					slog.Int("movie_id", movieID),
					slog.String("error", err.Error()),
				)
				s.deliver(Event{Kind: DataUpdated, Op: OpCast, Req: req, Err: err})
				return
			}

			s.mu.Lock()
			s.cast = names
			s.castMovieID = movieID
			s.mu.Unlock()
			s.deliver(Event{Kind: DataUpdated, Op: OpCast, Req: req})
		})
	}()
	return req
}

// SelectMovie selects the movie at index. An invalid index returns a
// NotFoundError and leaves the selection unchanged.
func (s *Store) SelectMovie(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.movies) {
		return &core.NotFoundError{Index: index}
	}
	m := s.movies[index]
	s.selected = &m
	return nil
}

// SelectByTitle selects the first movie whose title contains phrase.
// On a miss the selection is unchanged and a NotFoundError is returned.
func (s *Store) SelectByTitle(phrase string) (core.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := MatchTitle(s.movies, phrase)
	if !ok {
		return core.Movie{}, &core.NotFoundError{Index: -1, Phrase: phrase}
	}
	m := s.movies[idx]
	s.selected = &m
	return m, nil
}

// MatchTranscript applies a voice transcript on the dispatcher and reports
// the outcome as a SpeechResult event. Voice outcomes are pushed by a
// voice.Search rather than requested, so callers wait for them with
// AwaitAfter and a LastRequest taken before the search started.
func (s *Store) MatchTranscript(phrase string) {
	req := s.newRequest()
	s.dispatch.Dispatch(func() {
		m, err := s.SelectByTitle(phrase)
		if err != nil {
			s.logger.Info("voice search found no movie", slog.String("phrase", phrase))
		} else {
			s.logger.Info("voice search selected movie",
				slog.String("phrase", phrase),
				slog.String("title", m.Title),
			)
		}
		s.deliver(Event{Kind: SpeechResult, Op: OpVoice, Req: req, Err: err})
	})
}

// SpeechFailed reports a recognizer failure as a SpeechResult event.
func (s *Store) SpeechFailed(err error) {
	s.Notify(Event{Kind: SpeechResult, Op: OpVoice, Req: s.newRequest(), Err: &core.SpeechError{Err: err}})
}

// LastRequest returns the most recently issued Request. Every event of a
// later request carries a greater id.
func (s *Store) LastRequest() Request {
	return Request(s.reqSeq.Load())
}

func (s *Store) newRequest() Request {
	return Request(s.reqSeq.Add(1))
}

// ConfigureRow formats a movie for display using this Store's catalog for
// the poster URL.
func (s *Store) ConfigureRow(m core.Movie, genres core.GenreLookup) Row {
	return ConfigureRow(m, genres, s.catalog.PosterURL)
}

// BackdropURL resolves the selected movie's backdrop, or "" without one.
func (s *Store) BackdropURL() string {
	m, ok := s.Selected()
	if !ok {
		return ""
	}
	return s.catalog.BackdropURL(m.BackdropPath)
}

// Movies returns a copy of the movie list.
func (s *Store) Movies() []core.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Movie, len(s.movies))
	copy(out, s.movies)
	return out
}

// Len returns the number of movies loaded so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movies)
}

// Genres returns a copy of the genre lookup.
func (s *Store) Genres() core.GenreLookup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(core.GenreLookup, len(s.genres))
	for id, name := range s.genres {
		out[id] = name
	}
	return out
}

// Cast returns the cast of the most recently loaded movie and that movie's ID.
func (s *Store) Cast() ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.cast))
	copy(out, s.cast)
	return out, s.castMovieID
}

// Selected returns the selected movie, if any.
func (s *Store) Selected() (core.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return core.Movie{}, false
	}
	return *s.selected, true
}

// Page returns the page number reported by the last successful fetch.
func (s *Store) Page() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPage
}

// PageMax returns the page count reported by the API, 0 before the first page.
func (s *Store) PageMax() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageMax
}
