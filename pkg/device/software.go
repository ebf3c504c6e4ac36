package device

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/status-im/status-aopp-go/pkg/aopp"
)

const bip39Salt = "mnemonic"

// Software signs with keys derived from a mnemonic held in memory. It answers immediately and is
// meant for development and tests. Only the eth family is supported, other coins are rejected with
// ErrUnsupportedCoin.
type Software struct {
	logger *zap.Logger
	seed   []byte
}

func NewSoftware(mnemonic, password string, logger *zap.Logger) (*Software, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if logger == nil {
		logger = zap.L()
	}

	seed := pbkdf2.Key(norm.NFKD.Bytes([]byte(mnemonic)), norm.NFKD.Bytes([]byte(bip39Salt+password)), 2048, 64, sha512.New)

	return &Software{
		logger: logger.Named("software-keystore"),
		seed:   seed,
	}, nil
}

func (s *Software) key(addressID string) (*ecdsa.PrivateKey, error) {
	mac := hmac.New(sha512.New, s.seed)
	mac.Write([]byte(addressID))
	key, err := crypto.ToECDSA(mac.Sum(nil)[:32])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to derive key for %s", addressID)
	}
	return key, nil
}

// Address returns the address of the key at addressID.
func (s *Software) Address(addressID string) (string, error) {
	key, err := s.key(addressID)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func (s *Software) SignMessage(ctx context.Context, request aopp.SignRequest) (*aopp.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrSigningAborted, err.Error())
	}

	if !checksAddress(request.Coin) {
		return nil, errors.Wrap(ErrUnsupportedCoin, request.Coin)
	}

	key, err := s.key(request.AddressID)
	if err != nil {
		return nil, err
	}

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if !sameAddress(address, request.Address) {
		return nil, errors.Wrapf(ErrAddressMismatch, "%s at %s", request.Address, request.AddressID)
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(request.Message)), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}

	s.logger.Info("message signed", zap.String("request", request.RequestID), zap.String("addressID", request.AddressID))
	return &aopp.Signature{Message: request.Message, Signature: sig}, nil
}

// Abandon does nothing, signing never waits for the user.
func (s *Software) Abandon() {}
