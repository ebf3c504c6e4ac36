package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/status-im/status-aopp-go/pkg/aopp"
)

var ErrNoKeystore = errors.New("no keystore connected")

// Slot is the signer handed to the controller. Keystores are plugged in and out of it while the
// controller keeps running.
type Slot struct {
	lock    sync.Mutex
	kind    Kind
	signer  aopp.Signer
	pending aopp.Signer
}

func (s *Slot) Plug(kind Kind, signer aopp.Signer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.kind = kind
	s.signer = signer
}

// Unplug removes the keystore. A signing in progress on it is abandoned.
func (s *Slot) Unplug() {
	s.lock.Lock()
	pending := s.pending
	s.kind = ""
	s.signer = nil
	s.lock.Unlock()

	if pending != nil {
		pending.Abandon()
	}
}

// Kind returns the kind of the plugged keystore.
func (s *Slot) Kind() (Kind, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.kind, s.signer != nil
}

func (s *Slot) SignMessage(ctx context.Context, request aopp.SignRequest) (*aopp.Signature, error) {
	s.lock.Lock()
	signer := s.signer
	s.pending = signer
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		if s.pending == signer {
			s.pending = nil
		}
		s.lock.Unlock()
	}()

	if signer == nil {
		return nil, ErrNoKeystore
	}

	return signer.SignMessage(ctx, request)
}

func (s *Slot) Abandon() {
	s.lock.Lock()
	pending := s.pending
	s.lock.Unlock()

	if pending != nil {
		pending.Abandon()
	}
}
