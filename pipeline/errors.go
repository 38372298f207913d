package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRun  = errors.New("pipeline has already run")
	ErrNilCallback = errors.New("action has no callback")
)

// ActionError is returned by Run when an action fails. The failure has
// already been recorded on the action row.
type ActionError struct {
	Slug string
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Slug, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

type MalformedOutputError struct {
	Slug string
	Item Item
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("action %s yielded malformed output %s %q", e.Slug, e.Item.Kind, e.Item.Text)
}

// ErrorKind names the most specific error type in err's chain, skipping the
// anonymous wrappers produced by fmt.Errorf and errors.Join.
func ErrorKind(err error) string {
	kind := fmt.Sprintf("%T", err)
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		t := fmt.Sprintf("%T", cur)
		if t != "*fmt.wrapError" && t != "*fmt.wrapErrors" && t != "*errors.joinError" {
			return t
		}
		kind = t
	}
	return kind
}
