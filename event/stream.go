package event

import (
	"errors"
	"sync"
	"time"
)

type Stream[E any] interface {
	ID() string
	Notify(event E, timeout time.Duration) error
	Close()
}

// BufferedStream forwards events that pass a selector into a buffered
// channel. A consumer that stays full past the Notify timeout gets the
// stream closed under it rather than blocking the producer.
type BufferedStream[E, T any] struct {
	sync.Mutex

	id string

	closed   bool
	ch       chan T
	selector func(E) (T, bool)
}

func NewBufferedStream[E, T any](
	id string,
	bufferSize int,
	selector func(event E) (T, bool),
) *BufferedStream[E, T] {
	return &BufferedStream[E, T]{
		id:       id,
		ch:       make(chan T, bufferSize),
		selector: selector,
	}
}

func (s *BufferedStream[E, T]) ID() string {
	return s.id
}

func (s *BufferedStream[E, T]) Notify(event E, timeout time.Duration) error {
	msg, ok := s.selector(event)
	if !ok {
		return nil
	}

	s.Lock()
	if s.closed {
		s.Unlock()
		return errors.New("cannot notify closed stream")
	}

	select {
	case s.ch <- msg:
	case <-time.After(timeout):
		s.Unlock()
		s.Close()
		return errors.New("timed out sending message to stream")
	}

	s.Unlock()
	return nil
}

func (s *BufferedStream[E, T]) Channel() <-chan T {
	return s.ch
}

func (s *BufferedStream[E, T]) Close() {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.ch)
}
