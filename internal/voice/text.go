package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrUnintelligible is reported for audio the text recognizer cannot decode.
var ErrUnintelligible = errors.New("unintelligible audio")

const resultBuffer = 64

// TextRecognizer recognizes "audio" that is UTF-8 text. A newline ends an
// utterance and yields a final result; with partial results enabled every
// completed word yields a partial result first. It backs keyboard-driven
// voice search and scripted searches.
type TextRecognizer struct{}

// Start opens a task. The task is canceled when ctx is done.
func (TextRecognizer) Start(ctx context.Context, opts Options) (Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &textTask{
		partial: opts.PartialResults,
		results: make(chan Result, resultBuffer),
		done:    make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			t.Cancel()
		case <-t.done:
		}
	}()
	return t, nil
}

type textTask struct {
	partial bool
	results chan Result
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	pending string
	words   int // complete words already reported as a partial
}

func (t *textTask) Results() <-chan Result { return t.results }

func (t *textTask) Cancel() {
	t.once.Do(func() { close(t.done) })

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.results)
	}
}

func (t *textTask) Append(buf Buffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if !utf8.Valid(buf) {
		t.emitLocked(Result{Err: ErrUnintelligible})
		return
	}

	t.pending += string(buf)
	for {
		idx := strings.IndexByte(t.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.Join(strings.Fields(t.pending[:idx]), " ")
		t.pending = t.pending[idx+1:]
		t.words = 0
		if line != "" {
			t.emitLocked(Result{Text: line, Final: true})
		}
	}

	if !t.partial {
		return
	}
	complete := completeWords(t.pending)
	if len(complete) > t.words {
		t.words = len(complete)
		t.emitLocked(Result{Text: strings.Join(complete, " ")})
	}
}

// emitLocked sends r unless the task is canceled first.
func (t *textTask) emitLocked(r Result) {
	select {
	case t.results <- r:
	case <-t.done:
	}
}

// completeWords returns the words of s that are followed by whitespace.
func completeWords(s string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if last != ' ' && last != '\t' {
		words = words[:len(words)-1]
	}
	return words
}
