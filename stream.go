package chatkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// DeltaFunc returns the next delta decoded from a provider stream, or
// io.EOF once the underlying body is exhausted.
type DeltaFunc func() (Delta, error)

// DeltaStream is a lazy, forward-only sequence of deltas for one streaming
// dispatch. Next yields deltas in arrival order, then the terminal delta
// (Done set), then io.EOF. If the body ends or fails before the terminal
// marker, Next returns an error matching ErrIncompleteStream.
//
// Next must be called from one goroutine at a time. Close may be called
// from any goroutine, including while Next is blocked on the body.
type DeltaStream struct {
	ctx   context.Context
	next  DeltaFunc
	body  io.Closer
	close sync.Once

	mu   sync.Mutex // guards below
	done bool
	err  error
	// finish observes the outcome exactly once.
	finish func(error)
}

// NewDeltaStream wraps a decoder. body, if non-nil, is closed when the
// stream ends or Close is called.
func NewDeltaStream(ctx context.Context, next DeltaFunc, body io.Closer) *DeltaStream {
	return &DeltaStream{ctx: ctx, next: next, body: body}
}

// Next returns the next delta.
func (s *DeltaStream) Next() (Delta, error) {
	if err := s.state(); err != nil {
		return Delta{}, err
	}
	if err := s.ctx.Err(); err != nil {
		return Delta{}, s.abort(err)
	}
	for {
		delta, err := s.next()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return Delta{}, s.abort(err)
		}
		if delta.empty() {
			continue
		}
		s.mu.Lock()
		if s.err != nil {
			// Closed while reading.
			err := s.err
			s.mu.Unlock()
			return Delta{}, err
		}
		if delta.Done {
			s.done = true
			s.end(nil)
		}
		s.mu.Unlock()
		if delta.Done {
			s.closeBody()
		}
		return delta, nil
	}
}

func (s *DeltaStream) state() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.done {
		return io.EOF
	}
	return nil
}

// All exposes the stream as an iterator. Iteration stops after the
// terminal delta or after yielding the first error.
func (s *DeltaStream) All() iter.Seq2[Delta, error] {
	return func(yield func(Delta, error) bool) {
		for {
			delta, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(delta, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying body. Closing before the terminal marker
// makes further reads fail with ErrIncompleteStream.
func (s *DeltaStream) Close() error {
	s.mu.Lock()
	if !s.done && s.err == nil {
		s.err = fmt.Errorf("%w: stream closed", ErrIncompleteStream)
		s.end(s.err)
	}
	s.mu.Unlock()
	return s.closeBody()
}

// abort records the first failure; a stream closed concurrently keeps its
// close error.
func (s *DeltaStream) abort(cause error) error {
	s.mu.Lock()
	if s.err == nil {
		if errors.Is(cause, io.EOF) {
			s.err = ErrIncompleteStream
		} else {
			s.err = fmt.Errorf("%w: %w", ErrIncompleteStream, cause)
		}
		s.end(s.err)
	}
	err := s.err
	s.mu.Unlock()
	s.closeBody()
	return err
}

func (s *DeltaStream) end(err error) {
	if s.finish != nil {
		s.finish(err)
		s.finish = nil
	}
}

func (s *DeltaStream) closeBody() error {
	var err error
	s.close.Do(func() {
		if s.body != nil {
			err = s.body.Close()
		}
	})
	return err
}

// Assemble drains a stream into a single message.
func Assemble(stream *DeltaStream) (Message, error) {
	defer stream.Close()
	return NewAssembler().Drain(stream)
}
