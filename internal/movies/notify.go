package movies

import (
	"context"
	"errors"
	"log/slog"
)

// Subscribe registers fn for every event. fn runs on the Store's dispatcher
// and must not block. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Events returns a channel receiving every event. An event that finds the
// buffer full is dropped and logged, so a reader that stops reading never
// stalls the dispatcher. The channel is closed after cancel is called.
func (s *Store) Events(buffer int) (events <-chan Event, cancel func()) {
	ch := make(chan Event, buffer)

	unsubscribe := s.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
			s.logger.Warn("event dropped, subscriber buffer full",
				slog.String("op", string(e.Op)),
				slog.Uint64("req", uint64(e.Req)),
			)
		}
	})

	var canceled bool
	cancel = func() {
		s.subMu.Lock()
		if canceled {
			s.subMu.Unlock()
			return
		}
		canceled = true
		s.subMu.Unlock()

		unsubscribe()
		s.dispatch.Dispatch(func() { close(ch) })
	}
	return ch, cancel
}

// Notify delivers e to all subscribers on the dispatcher.
func (s *Store) Notify(e Event) {
	s.dispatch.Dispatch(func() { s.deliver(e) })
}

// deliver fans e out to subscribers. It must run on the dispatcher.
func (s *Store) deliver(e Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// ErrEventsClosed is returned by Await when the event channel closes.
var ErrEventsClosed = errors.New("event stream closed")

// Await reads events until one answers req with op. A failure of req in an
// earlier step, such as the genre load chained before a page, ends the wait
// too. Events of other requests are discarded.
func Await(ctx context.Context, events <-chan Event, req Request, op Op) (Event, error) {
	return awaitMatch(ctx, events, func(e Event) bool {
		return e.Req == req && (e.Op == op || e.Failed())
	})
}

// AwaitAfter reads events until one with op belongs to a request issued
// after mark. It waits for outcomes the caller did not request itself, such
// as the SpeechResult of a voice search.
func AwaitAfter(ctx context.Context, events <-chan Event, mark Request, op Op) (Event, error) {
	return awaitMatch(ctx, events, func(e Event) bool {
		return e.Req > mark && e.Op == op
	})
}

func awaitMatch(ctx context.Context, events <-chan Event, match func(Event) bool) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case e, ok := <-events:
			if !ok {
				return Event{}, ErrEventsClosed
			}
			if match(e) {
				return e, nil
			}
		}
	}
}

// Drain discards the events already buffered in events without blocking.
func Drain(events <-chan Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
