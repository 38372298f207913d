package pipeline

import (
	"context"
	"fmt"
	"iter"
)

type Kind int

const (
	KindMessage Kind = iota + 1
	KindBeforeState
	KindAfterState
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindBeforeState:
		return "before_state"
	case KindAfterState:
		return "after_state"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item is one piece of progress reported by an action callback.
type Item struct {
	Kind Kind
	Text string
}

func Message(text string) Item { return Item{Kind: KindMessage, Text: text} }
func BeforeState(text string) Item { return Item{Kind: KindBeforeState, Text: text} }
func AfterState(text string) Item { return Item{Kind: KindAfterState, Text: text} }

// Sequence is the single-pass progress stream of one action. A non-nil error
// ends the stream and fails the action.
type Sequence = iter.Seq2[Item, error]

// Items is a Sequence over a fixed list of items.
func Items(items ...Item) Sequence {
	return func(yield func(Item, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Stream runs body and forwards everything it emits. When the consumer stops
// early the context passed to body is cancelled and further emits are dropped.
func Stream(ctx context.Context, body func(ctx context.Context, out *Emitter) error) Sequence {
	return func(yield func(Item, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := &Emitter{yield: yield, cancel: cancel}
		if err := body(ctx, out); err != nil && !out.stopped {
			yield(Item{}, err)
		}
	}
}

type Emitter struct {
	yield   func(Item, error) bool
	cancel  context.CancelFunc
	stopped bool
}

func (e *Emitter) Emit(item Item) bool {
	if e.stopped {
		return false
	}
	if !e.yield(item, nil) {
		e.stopped = true
		e.cancel()
		return false
	}
	return true
}

func (e *Emitter) Message(text string) {
	e.Emit(Message(text))
}

func (e *Emitter) Messagef(format string, args ...any) {
	e.Emit(Message(fmt.Sprintf(format, args...)))
}

func (e *Emitter) BeforeState(text string) {
	e.Emit(BeforeState(text))
}

func (e *Emitter) AfterState(text string) {
	e.Emit(AfterState(text))
}

// Stopped reports whether the consumer has stopped reading.
func (e *Emitter) Stopped() bool {
	return e.stopped
}
