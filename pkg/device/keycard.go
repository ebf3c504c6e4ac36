package device

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/internal"
	"github.com/status-im/status-aopp-go/pkg/aopp"
	"github.com/status-im/status-aopp-go/pkg/pairing"
	"github.com/status-im/status-aopp-go/pkg/utils"
)

var (
	ErrNotInitialized = errors.New("keycard is not initialized")
	ErrWrongPIN       = errors.New("wrong pin")
)

type KeycardOption func(*Keycard)

func WithPIN(pin string) KeycardOption {
	return func(k *Keycard) {
		k.pin = pin
	}
}

func WithPairingPassword(password string) KeycardOption {
	return func(k *Keycard) {
		if password != "" {
			k.pairingPassword = password
		}
	}
}

func WithKeycardLogger(logger *zap.Logger) KeycardOption {
	return func(k *Keycard) {
		if logger != nil {
			k.logger = logger.Named("keycard-signer")
		}
	}
}

// Keycard signs on a keycard attached through PC/SC. Signing waits for the card to be inserted,
// which is what Abandon interrupts.
type Keycard struct {
	logger          *zap.Logger
	pairings        *pairing.Store
	pin             string
	pairingPassword string

	lock   sync.Mutex
	cancel context.CancelFunc
}

func NewKeycard(pairings *pairing.Store, opts ...KeycardOption) (*Keycard, error) {
	if pairings == nil {
		return nil, errors.New("pairing store is required")
	}

	k := &Keycard{
		logger:          zap.L().Named("keycard-signer"),
		pairings:        pairings,
		pairingPassword: internal.DefPairing,
	}

	for _, opt := range opts {
		opt(k)
	}

	return k, nil
}

func (k *Keycard) SignMessage(ctx context.Context, request aopp.SignRequest) (*aopp.Signature, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	k.lock.Lock()
	k.cancel = cancel
	k.lock.Unlock()

	logger := k.logger.With(zap.String("request", request.RequestID))
	logger.Info("waiting for keycard")

	kc, err := internal.ConnectKeycard(ctx, k.logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ErrSigningAborted, ctx.Err().Error())
		}
		return nil, errors.Wrap(err, "failed to connect to keycard")
	}
	defer kc.Close()

	if err = k.authenticate(ctx, kc); err != nil {
		return nil, err
	}

	keyPair, err := kc.ExportPublicKey(request.AddressID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export public key")
	}

	if checksAddress(request.Coin) && !sameAddress(keyPair.Address, request.Address) {
		return nil, errors.Wrapf(ErrAddressMismatch, "%s at %s", request.Address, request.AddressID)
	}

	if ctx.Err() != nil {
		return nil, errors.Wrap(ErrSigningAborted, ctx.Err().Error())
	}

	sig, err := kc.SignWithPath(accounts.TextHash([]byte(request.Message)), request.AddressID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}

	signature := internal.SignatureBytes(sig)

	signer, err := RecoverAddress(request.Message, signature)
	if err != nil {
		return nil, err
	}
	if !sameAddress(signer, keyPair.Address) {
		return nil, errors.Errorf("keycard signature recovers to %s, expected %s", signer, keyPair.Address)
	}

	logger.Info("message signed on keycard", zap.String("addressID", request.AddressID))
	return &aopp.Signature{Message: request.Message, Signature: signature}, nil
}

func (k *Keycard) authenticate(ctx context.Context, kc *internal.KeycardContext) error {
	appInfo, err := kc.SelectApplet()
	if err != nil {
		return errors.Wrap(err, "failed to select keycard applet")
	}
	if !appInfo.Initialized {
		return ErrNotInitialized
	}

	instanceUID := utils.Btox(appInfo.InstanceUID)

	pair := k.pairings.Get(instanceUID)
	if pair == nil {
		k.logger.Info("pairing keycard", zap.String("instanceUID", instanceUID))

		info, err := kc.Pair(k.pairingPassword)
		if err != nil {
			return errors.Wrap(err, "failed to pair keycard")
		}

		pair = pairing.ToPairInfo(info)
		if err = k.pairings.Store(instanceUID, pair); err != nil {
			return errors.Wrap(err, "failed to store pairing")
		}
	}

	err = kc.OpenSecureChannel(pair.Index, pair.Key)
	if err != nil {
		// The card forgot the pairing; pair again next time.
		if delErr := k.pairings.Delete(instanceUID); delErr != nil {
			k.logger.Warn("failed to delete pairing", zap.Error(delErr))
		}
		return errors.Wrap(err, "failed to open secure channel")
	}

	if ctx.Err() != nil {
		return errors.Wrap(ErrSigningAborted, ctx.Err().Error())
	}

	err = kc.VerifyPIN(k.pin)
	if retries, ok := internal.GetRetries(err); ok {
		return errors.Wrapf(ErrWrongPIN, "%d of %d attempts left", retries, internal.MaxPINRetries)
	}
	if err != nil {
		return errors.Wrap(err, "failed to verify pin")
	}

	return nil
}

// Abandon stops waiting for the card or interrupts the signing between card commands.
func (k *Keycard) Abandon() {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
}
