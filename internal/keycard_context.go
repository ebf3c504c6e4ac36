package internal

import (
	"context"
	"runtime"
	"sync"

	"github.com/ebfe/scard"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	keycard "github.com/status-im/keycard-go"
	"github.com/status-im/keycard-go/apdu"
	"github.com/status-im/keycard-go/globalplatform"
	"github.com/status-im/keycard-go/io"
	"github.com/status-im/keycard-go/types"
	"go.uber.org/zap"
)

type commandType int

const (
	Close commandType = iota
	Transmit
	Ack
)

// KeycardContext talks to one keycard. PC/SC calls must all happen on the same OS thread, so
// every APDU is handed to the run goroutine through the command channel.
type KeycardContext struct {
	logger  *zap.Logger
	cardCtx *scard.Context
	card    *scard.Card
	readers ReadersStates
	cmdSet  *keycard.CommandSet

	established chan struct{}
	connected   chan struct{}
	command     chan commandType
	closeOnce   sync.Once

	apdu   []byte
	rpdu   []byte
	runErr error
}

// ConnectKeycard waits until a card is inserted in any reader and connects to it. Cancelling ctx
// aborts the wait.
func ConnectKeycard(ctx context.Context, logger *zap.Logger) (*KeycardContext, error) {
	if logger == nil {
		logger = zap.L()
	}

	kc := &KeycardContext{
		logger:      logger.Named("keycard"),
		established: make(chan struct{}),
		connected:   make(chan struct{}),
		command:     make(chan commandType),
	}

	go kc.run()

	<-kc.established

	if kc.cardCtx != nil {
		stop := context.AfterFunc(ctx, func() {
			// Unblocks GetStatusChange in waitForCard.
			_ = kc.cardCtx.Cancel()
		})
		defer stop()
	}

	<-kc.connected

	if kc.runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, kc.runErr
	}

	return kc, nil
}

func (kc *KeycardContext) Transmit(apdu []byte) ([]byte, error) {
	kc.apdu = apdu
	kc.command <- Transmit
	<-kc.command
	kc.apdu = nil
	rpdu, err := kc.rpdu, kc.runErr
	kc.rpdu = nil
	kc.runErr = nil
	return rpdu, err
}

func (kc *KeycardContext) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := kc.establishContext()
	close(kc.established)

	if err == nil {
		err = kc.connect()
	}

	if err != nil {
		kc.logger.Error("keycard connection failed", zap.Error(err))
		kc.runErr = err
		kc.release()
		close(kc.connected)
		return
	}

	close(kc.connected)
	defer kc.release()

	for cmd := range kc.command {
		switch cmd {
		case Transmit:
			kc.rpdu, kc.runErr = kc.card.Transmit(kc.apdu)
			kc.command <- Ack
		case Close:
			return
		}
	}
}

func (kc *KeycardContext) establishContext() error {
	cardCtx, err := scard.EstablishContext()
	if err != nil {
		return errors.Wrap(ErrNoPCSC, err.Error())
	}

	kc.cardCtx = cardCtx
	return nil
}

func (kc *KeycardContext) release() {
	if kc.card != nil {
		_ = kc.card.Disconnect(scard.LeaveCard)
	}
	if kc.cardCtx != nil {
		_ = kc.cardCtx.Release()
	}
}

// Close disconnects the card and stops the communication goroutine.
func (kc *KeycardContext) Close() {
	kc.closeOnce.Do(func() {
		close(kc.command)
	})
}

func (kc *KeycardContext) connect() error {
	names, err := kc.cardCtx.ListReaders()
	if err != nil {
		return errors.Wrap(ErrReaderList, err.Error())
	}
	if len(names) == 0 {
		return ErrNoReader
	}

	kc.readers = NewReadersStates(names)

	kc.logger.Debug("waiting for card", zap.Strings("readers", names))
	index, err := kc.waitForCard()
	if err != nil {
		return err
	}

	reader := kc.readers[index].Reader
	kc.logger.Info("card found", zap.String("reader", reader))

	card, err := kc.cardCtx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return errors.Wrap(err, "failed to connect to card")
	}

	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return errors.Wrap(err, "failed to get card status")
	}

	kc.logger.Debug("card connected", zap.Uint32("protocol", uint32(status.ActiveProtocol)))

	kc.card = card
	kc.cmdSet = keycard.NewCommandSet(io.NewNormalChannel(kc))

	return nil
}

func (kc *KeycardContext) waitForCard() (int, error) {
	for {
		if index, ok := kc.readers.ReaderWithCardIndex(); ok {
			return index, nil
		}

		kc.readers.Update()

		err := kc.cardCtx.GetStatusChange(kc.readers, infiniteTimeout)
		if err != nil {
			return -1, err
		}
	}
}

func (kc *KeycardContext) SelectApplet() (*types.ApplicationInfo, error) {
	err := kc.cmdSet.Select()
	if err != nil {
		if e, ok := err.(*apdu.ErrBadResponse); ok && e.Sw == globalplatform.SwFileNotFound {
			return nil, ErrNotKeycard
		}
		kc.logger.Error("select failed", zap.Error(err))
		return nil, err
	}

	return kc.cmdSet.ApplicationInfo, nil
}

func (kc *KeycardContext) Pair(pairingPassword string) (*types.PairingInfo, error) {
	err := kc.cmdSet.Pair(pairingPassword)
	if err != nil {
		kc.logger.Error("pair failed", zap.Error(err))
		return nil, err
	}

	return kc.cmdSet.PairingInfo, nil
}

func (kc *KeycardContext) OpenSecureChannel(index int, key []byte) error {
	kc.cmdSet.SetPairingInfo(key, index)
	err := kc.cmdSet.OpenSecureChannel()
	if err != nil {
		kc.logger.Error("open secure channel failed", zap.Error(err))
		return err
	}

	return nil
}

func (kc *KeycardContext) VerifyPIN(pin string) error {
	err := kc.cmdSet.VerifyPIN(pin)
	if err != nil {
		kc.logger.Error("verify pin failed", zap.Error(err))
		return err
	}

	return nil
}

// ExportPublicKey derives the key at path without making it current and returns its address.
func (kc *KeycardContext) ExportPublicKey(path string) (*KeyPair, error) {
	exportedKey, err := kc.cmdSet.ExportKeyExtended(true, false, p2ExportPublicOnly, path)
	if err != nil {
		kc.logger.Error("export key failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	pubKey, err := crypto.UnmarshalPubkey(exportedKey.PubKey())
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key exported")
	}

	return &KeyPair{
		Address:   crypto.PubkeyToAddress(*pubKey).Hex(),
		PublicKey: exportedKey.PubKey(),
	}, nil
}

func (kc *KeycardContext) SignWithPath(data []byte, path string) (*types.Signature, error) {
	sig, err := kc.cmdSet.SignWithPath(data, path)
	if err != nil {
		kc.logger.Error("sign with path failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	return sig, nil
}

func (kc *KeycardContext) ApplicationInfo() *types.ApplicationInfo {
	return kc.cmdSet.ApplicationInfo
}
