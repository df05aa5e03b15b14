package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
	"github.com/vadimtrunov/moviefinder/internal/voice"
)

const eventBuffer = 16

// session is one user's browsing state: a Store with its own dispatcher.
// Commands hold mu for their whole run so a user's requests never interleave.
type session struct {
	mu         sync.Mutex
	store      *movies.Store
	dispatcher *movies.SerialDispatcher
	events     <-chan movies.Event
	stopEvents func()
	voice      voice.Config
	logger     *slog.Logger
}

func newSession(catalog core.Catalog, vcfg voice.Config, logger *slog.Logger) *session {
	d := movies.NewSerialDispatcher()
	store := movies.New(catalog, d, logger)
	events, stop := store.Events(eventBuffer)
	return &session{
		store:      store,
		dispatcher: d,
		events:     events,
		stopEvents: stop,
		voice:      vcfg,
		logger:     logger,
	}
}

// speak runs a voice search that hears text as one utterance and returns
// its SpeechResult. The configured match mode decides whether a partial
// transcript already selects a movie.
func (s *session) speak(ctx context.Context, text string) (movies.Event, error) {
	search := voice.NewSearch(&voice.Script{Phrase: text}, voice.TextRecognizer{}, s.store, s.voice, s.logger)
	mark := s.store.LastRequest()
	if err := search.Start(ctx); err != nil {
		return movies.Event{}, err
	}
	defer search.Cancel()
	return s.awaitVoice(ctx, mark)
}

// await waits for req to answer want.
func (s *session) await(ctx context.Context, req movies.Request, want movies.Op) (movies.Event, error) {
	return s.drainOnError(movies.Await(ctx, s.events, req, want))
}

// awaitVoice waits for the outcome of a voice search started after mark.
func (s *session) awaitVoice(ctx context.Context, mark movies.Request) (movies.Event, error) {
	return s.drainOnError(movies.AwaitAfter(ctx, s.events, mark, movies.OpVoice))
}

// drainOnError drops what a timed-out command left buffered. Events that
// arrive later still carry the abandoned request and are skipped by the
// next wait.
func (s *session) drainOnError(e movies.Event, err error) (movies.Event, error) {
	if err != nil {
		movies.Drain(s.events)
	}
	return e, err
}

func (s *session) close() {
	s.stopEvents()
	s.dispatcher.Close()
}

// sessionManager manages per-user sessions and access control.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*session
	allowed  map[int64]bool // nil or empty = allow all
	catalog  core.Catalog
	voice    voice.Config
	logger   *slog.Logger
}

// newSessionManager creates a session manager.
// If allowedUserIDs is empty, all users are allowed.
func newSessionManager(allowedUserIDs []int64, catalog core.Catalog, vcfg voice.Config, logger *slog.Logger) *sessionManager {
	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &sessionManager{
		sessions: make(map[int64]*session),
		allowed:  allowed,
		catalog:  catalog,
		voice:    vcfg,
		logger:   logger,
	}
}

// isAllowed checks if a user is authorized to use the bot.
func (sm *sessionManager) isAllowed(userID int64) bool {
	if len(sm.allowed) == 0 {
		return true
	}
	return sm.allowed[userID]
}

// getOrCreate returns the user's session, creating an empty one on first use.
func (sm *sessionManager) getOrCreate(userID int64) *session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[userID]; ok {
		return s
	}
	s := newSession(sm.catalog, sm.voice, sm.logger.With(slog.Int64("user_id", userID)))
	sm.sessions[userID] = s
	return s
}

// reset drops a user's session; the next command starts from scratch.
func (sm *sessionManager) reset(userID int64) {
	sm.mu.Lock()
	s, ok := sm.sessions[userID]
	delete(sm.sessions, userID)
	sm.mu.Unlock()
	if ok {
		s.close()
	}
}

// closeAll releases every session.
func (sm *sessionManager) closeAll() {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[int64]*session)
	sm.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}
