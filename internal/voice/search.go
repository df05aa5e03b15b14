package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

// Config holds Search settings.
type Config struct {
	Mode   MatchMode
	Locale string
}

// Search drives the Idle → Listening → Matching → Idle cycle.
type Search struct {
	mic    Microphone
	rec    Recognizer
	target Target
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64 // bumped on every start and cancel; stale watchers compare it
	task   Task
	cancel context.CancelFunc
}

// NewSearch creates an idle Search.
func NewSearch(mic Microphone, rec Recognizer, target Target, cfg Config, logger *slog.Logger) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = MatchFirst
	}
	return &Search{
		mic:    mic,
		rec:    rec,
		target: target,
		cfg:    cfg,
		logger: logger,
	}
}

// State returns the current state.
func (s *Search) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Toggle starts listening when idle and cancels when listening.
// It is a no-op while a transcript is being matched.
func (s *Search) Toggle(ctx context.Context) error {
	switch s.State() {
	case Idle:
		return s.Start(ctx)
	case Listening:
		s.Cancel()
	}
	return nil
}

// Start opens a recognition task with partial results and starts the
// microphone. Start failures are returned as *core.SpeechError and leave
// the Search idle.
func (s *Search) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrBusy
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task, err := s.rec.Start(taskCtx, Options{PartialResults: true, Locale: s.cfg.Locale})
	if err != nil {
		cancel()
		return &core.SpeechError{Err: err}
	}
	if err := s.mic.Start(task.Append); err != nil {
		task.Cancel()
		cancel()
		return &core.SpeechError{Err: err}
	}

	s.gen++
	s.state = Listening
	s.task = task
	s.cancel = cancel
	s.logger.Debug("voice search listening", slog.String("mode", string(s.cfg.Mode)))

	go s.watch(s.gen, task)
	return nil
}

// Cancel stops a listening session without reporting anything.
func (s *Search) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Listening {
		return
	}
	s.gen++
	s.state = Idle
	s.teardownLocked()
	s.logger.Debug("voice search canceled")
}

func (s *Search) watch(gen uint64, task Task) {
	for r := range task.Results() {
		if r.Err != nil {
			err := r.Err
			s.finish(gen, func() { s.target.SpeechFailed(err) })
			return
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if s.cfg.Mode == MatchFinal && !r.Final {
			continue
		}
		s.finish(gen, func() { s.target.MatchTranscript(text) })
		return
	}
	s.finish(gen, func() { s.target.SpeechFailed(ErrNoTranscript) })
}

// finish moves a live session to Matching, releases audio and recognizer,
// runs report and returns to Idle. Stale sessions are ignored.
func (s *Search) finish(gen uint64, report func()) {
	s.mu.Lock()
	if s.gen != gen || s.state != Listening {
		s.mu.Unlock()
		return
	}
	s.state = Matching
	s.teardownLocked()
	s.mu.Unlock()

	report()

	s.mu.Lock()
	if s.gen == gen {
		s.state = Idle
	}
	s.mu.Unlock()
}

// teardownLocked cancels the task before stopping the microphone so that a
// buffer callback blocked inside Append is released.
func (s *Search) teardownLocked() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mic.Stop()
}
