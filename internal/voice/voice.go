// Package voice turns a spoken (or typed) movie title into a selection.
//
// A Search owns one listening session at a time: it starts the microphone,
// streams its buffers into a recognition task and hands the first usable
// transcript to a Target, which performs the title match.
package voice

import (
	"context"
	"errors"
	"fmt"
)

// State is the lifecycle state of a Search.
type State int

const (
	Idle State = iota
	Listening
	Matching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Matching:
		return "matching"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MatchMode selects which transcript ends a listening session.
type MatchMode string

const (
	// MatchFirst uses the first non-empty result, partial or final.
	MatchFirst MatchMode = "first"
	// MatchFinal waits for a final result.
	MatchFinal MatchMode = "final"
)

// ParseMatchMode parses a configuration value; "" means MatchFirst.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "", MatchFirst:
		return MatchFirst, nil
	case MatchFinal:
		return MatchFinal, nil
	}
	return "", fmt.Errorf("unknown voice match mode %q (want %q or %q)", s, MatchFirst, MatchFinal)
}

var (
	// ErrBusy is returned by Start while a session is active.
	ErrBusy = errors.New("voice search already listening")
	// ErrNoTranscript is reported when a task ends without any usable result.
	ErrNoTranscript = errors.New("no speech recognized")
	// ErrNotListening is returned when audio is produced with no active session.
	ErrNotListening = errors.New("microphone is not listening")
)

// Buffer is one chunk of captured audio.
type Buffer []byte

// Microphone produces audio buffers until stopped.
type Microphone interface {
	// Start begins capture; onBuffer is called for every captured chunk.
	Start(onBuffer func(Buffer)) error
	// Stop ends capture. A callback already running may still complete.
	Stop()
}

// Options configures a recognition task.
type Options struct {
	PartialResults bool
	Locale         string
}

// Result is one transcription update. Err is set when recognition failed.
type Result struct {
	Text  string
	Final bool
	Err   error
}

// Task is a streaming recognition session.
type Task interface {
	// Append feeds captured audio to the recognizer.
	Append(buf Buffer)
	// Results delivers transcription updates; it is closed when the task ends.
	Results() <-chan Result
	// Cancel aborts the task and closes Results.
	Cancel()
}

// Recognizer opens streaming recognition tasks.
type Recognizer interface {
	Start(ctx context.Context, opts Options) (Task, error)
}

// Target receives the outcome of a session.
type Target interface {
	// MatchTranscript selects a movie for phrase and reports the result.
	MatchTranscript(phrase string)
	// SpeechFailed reports a recognizer failure.
	SpeechFailed(err error)
}
