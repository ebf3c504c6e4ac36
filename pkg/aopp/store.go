package aopp

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/signal"
)

// Store holds the current flow state. Only the Controller writes to it; everybody else reads
// Current or subscribes to changes.
//
// Changes are published in order from a separate goroutine, so signal handlers and subscribers
// may call back into the Controller.
type Store struct {
	logger *zap.Logger
	lock   sync.RWMutex
	state  FlowState
	feed   event.Feed

	queue     []FlowState
	pending   chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.L()
	}
	s := &Store{
		logger:  logger.Named("store"),
		state:   inactiveState(),
		pending: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Current returns a copy of the current state.
func (s *Store) Current() FlowState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.clone()
}

// Subscribe delivers every new state to ch. A slow receiver delays later notifications but never
// the controller.
func (s *Store) Subscribe(ch chan<- FlowState) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Close publishes the states still queued and stops the publisher. It must not be called from a
// signal handler or subscriber.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

func (s *Store) set(state FlowState) {
	s.lock.Lock()
	s.state = state
	s.queue = append(s.queue, state.clone())
	s.lock.Unlock()

	select {
	case s.pending <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer close(s.done)

	for {
		select {
		case <-s.pending:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

func (s *Store) flush() {
	for {
		s.lock.Lock()
		batch := s.queue
		s.queue = nil
		s.lock.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, state := range batch {
			s.publish(state)
		}
	}
}

func (s *Store) publish(state FlowState) {
	s.logger.Info("state changed",
		zap.String("state", string(state.State)),
		zap.String("errorCode", string(state.ErrorCode)),
		zap.String("host", state.Host))
	signal.Send(StateChanged, state)
	s.feed.Send(state)
}
