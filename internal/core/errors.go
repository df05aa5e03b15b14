package core

import (
	"errors"
	"fmt"
)

// ErrLoadMovies is the user-facing message for undecodable catalog responses.
var ErrLoadMovies = errors.New("error loading movies")

// TransportError reports a failed request: the network call itself failed
// or the server answered with a non-success status.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that does not have the expected shape.
type DecodeError struct {
	What string // which payload was being decoded, e.g. "discover"
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrLoadMovies, e.What)
}

func (e *DecodeError) Unwrap() error {
	if e.Err == nil {
		return ErrLoadMovies
	}
	return e.Err
}

// Is lets errors.Is(err, ErrLoadMovies) match any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrLoadMovies
}

// SpeechError wraps a failure reported by the speech recognizer.
type SpeechError struct {
	Err error
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("speech recognition failed: %v", e.Err)
}

func (e *SpeechError) Unwrap() error { return e.Err }

// NotFoundError reports a selection that matched nothing: an out-of-range
// row index or a transcript that is not part of any title.
type NotFoundError struct {
	Index  int    // requested index, -1 when the lookup was by phrase
	Phrase string // transcript used for the lookup
}

func (e *NotFoundError) Error() string {
	if e.Phrase != "" {
		return fmt.Sprintf("no movie title contains %q", e.Phrase)
	}
	if e.Index < 0 {
		return "no movie selected"
	}
	return fmt.Sprintf("no movie at index %d", e.Index)
}
