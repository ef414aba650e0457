// Package task provides the cooperative cancellation token threaded through
// long-running operations. Each operation gets its own token so concurrent
// tasks can be cancelled independently.
package task

import (
	"errors"
	"log"
	"sync/atomic"
)

// ErrCancelled is returned from checkpoints after Cancel.
var ErrCancelled = errors.New("task cancelled")

// Token carries a cancellation flag and an optional progress sink. A nil
// Token is valid and never cancelled.
type Token struct {
	cancelled atomic.Bool
	progress  func(string)
}

// New creates a token. progress may be nil; messages then go to the log.
func New(progress func(string)) *Token {
	return &Token{progress: progress}
}

// Cancel requests cancellation. Safe to call repeatedly and concurrently.
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Err is the checkpoint: it returns ErrCancelled once Cancel has been called.
// Checked at well-defined points only; it never interrupts an in-flight wait.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Progress reports a human-readable step to the progress sink.
func (t *Token) Progress(msg string) {
	if t != nil && t.progress != nil {
		t.progress(msg)
		return
	}
	log.Printf("task: %s", msg)
}
