package movies

import "fmt"

// EventKind distinguishes the two notification channels of a Store.
type EventKind int

const (
	// DataUpdated reports the outcome of a catalog request.
	DataUpdated EventKind = iota + 1
	// SpeechResult reports the outcome of a voice search.
	SpeechResult
)

func (k EventKind) String() string {
	switch k {
	case DataUpdated:
		return "data_updated"
	case SpeechResult:
		return "speech_result"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Op identifies the request an event answers.
type Op string

const (
	OpGenres Op = "genres"
	OpMovies Op = "movies"
	OpCast   Op = "cast"
	OpVoice  Op = "voice"
)

// Request identifies the request an event answers. Ids grow with every
// request a Store issues; a chained request shares the id of the one that
// started it, so a failed genre load and the page it would have fetched
// carry the same id. The zero Request is never issued.
type Request uint64

// Event is delivered to subscribers once per request. Err is nil on success.
type Event struct {
	Kind EventKind
	Op   Op
	Req  Request
	Page int // page number for OpMovies events
	Err  error
}

// Failed reports whether the event carries an error.
func (e Event) Failed() bool { return e.Err != nil }
