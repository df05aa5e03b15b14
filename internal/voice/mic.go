package voice

import (
	"strings"
	"sync"
)

// Typed is a Microphone fed from the keyboard: Say delivers a line of text
// one word at a time followed by an end-of-utterance newline.
type Typed struct {
	mu       sync.Mutex
	onBuffer func(Buffer)
}

// NewTyped returns a stopped keyboard microphone.
func NewTyped() *Typed { return &Typed{} }

func (m *Typed) Start(onBuffer func(Buffer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onBuffer != nil {
		return ErrBusy
	}
	m.onBuffer = onBuffer
	return nil
}

func (m *Typed) Stop() {
	m.mu.Lock()
	m.onBuffer = nil
	m.mu.Unlock()
}

// Listening reports whether the microphone has been started.
func (m *Typed) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onBuffer != nil
}

// Say feeds text to the active session.
func (m *Typed) Say(text string) error {
	m.mu.Lock()
	fn := m.onBuffer
	m.mu.Unlock()
	if fn == nil {
		return ErrNotListening
	}
	for _, chunk := range chunks(text) {
		fn(Buffer(chunk))
	}
	return nil
}

// Script is a Microphone that speaks one fixed phrase as soon as it starts.
type Script struct {
	Phrase string

	mu      sync.Mutex
	stopped chan struct{}
}

func (m *Script) Start(onBuffer func(Buffer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped != nil {
		return ErrBusy
	}
	stopped := make(chan struct{})
	m.stopped = stopped

	go func() {
		for _, chunk := range chunks(m.Phrase) {
			select {
			case <-stopped:
				return
			default:
			}
			onBuffer(Buffer(chunk))
		}
	}()
	return nil
}

func (m *Script) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped != nil {
		close(m.stopped)
		m.stopped = nil
	}
}

// chunks splits text into "word " buffers ending with a newline.
func chunks(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words)+1)
	for _, w := range words {
		out = append(out, w+" ")
	}
	return append(out, "\n")
}
