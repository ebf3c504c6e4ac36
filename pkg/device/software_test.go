package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/pkg/aopp"
	"github.com/status-im/status-aopp-go/pkg/pairing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const ethPath = "m/44'/60'/0'/0/0"

func newSoftware(t *testing.T) *Software {
	s, err := NewSoftware(testMnemonic, "", zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewSoftwareInvalidMnemonic(t *testing.T) {
	_, err := NewSoftware("abandon abandon", "", zap.NewNop())
	assert.True(t, errors.Is(err, ErrInvalidMnemonic))
}

func TestSoftwareAddressIsDeterministic(t *testing.T) {
	a, err := newSoftware(t).Address(ethPath)
	require.NoError(t, err)
	b, err := newSoftware(t).Address(ethPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := newSoftware(t).Address("m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	withPassword, err := NewSoftware(testMnemonic, "secret", zap.NewNop())
	require.NoError(t, err)
	c, err := withPassword.Address(ethPath)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSoftwareSignMessage(t *testing.T) {
	s := newSoftware(t)
	address, err := s.Address(ethPath)
	require.NoError(t, err)

	sig, err := s.SignMessage(context.Background(), aopp.SignRequest{
		RequestID: "r1",
		Coin:      "eth",
		Address:   address,
		AddressID: ethPath,
		Message:   "I confirm that I own this address",
	})
	require.NoError(t, err)
	require.Len(t, sig.Signature, 65)
	assert.Equal(t, "I confirm that I own this address", sig.Message)

	recovered, err := RecoverAddress(sig.Message, sig.Signature)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
}

func TestSoftwareSignMessageAddressMismatch(t *testing.T) {
	_, err := newSoftware(t).SignMessage(context.Background(), aopp.SignRequest{
		Coin:      "eth",
		Address:   "0x0000000000000000000000000000000000000001",
		AddressID: ethPath,
		Message:   "m",
	})
	assert.True(t, errors.Is(err, ErrAddressMismatch))
}

func TestSoftwareSignMessageOtherCoins(t *testing.T) {
	for _, coin := range []string{"btc", "tbtc", "ltc", ""} {
		_, err := newSoftware(t).SignMessage(context.Background(), aopp.SignRequest{
			Coin:      coin,
			Address:   "bc1qaddress",
			AddressID: "m/84'/0'/0'/0/0",
			Message:   "m",
		})
		assert.True(t, errors.Is(err, ErrUnsupportedCoin), coin)
	}
}

func TestSoftwareSignMessageTestnets(t *testing.T) {
	s := newSoftware(t)
	address, err := s.Address(ethPath)
	require.NoError(t, err)

	for _, coin := range []string{"teth", "RETH"} {
		sig, err := s.SignMessage(context.Background(), aopp.SignRequest{
			Coin:      coin,
			Address:   address,
			AddressID: ethPath,
			Message:   "m",
		})
		require.NoError(t, err, coin)
		assert.Len(t, sig.Signature, 65)
	}
}

func TestSoftwareSignMessageCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSoftware(t).SignMessage(ctx, aopp.SignRequest{Coin: "eth", AddressID: ethPath})
	assert.True(t, errors.Is(err, ErrSigningAborted))
}

func TestRecoverAddressInvalid(t *testing.T) {
	_, err := RecoverAddress("m", []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewKeycard(t *testing.T) {
	_, err := NewKeycard(nil)
	assert.Error(t, err)

	store, err := pairing.NewStore(filepath.Join(t.TempDir(), "pairings.json"))
	require.NoError(t, err)

	k, err := NewKeycard(store, WithPIN("123456"), WithPairingPassword(""), WithKeycardLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, "123456", k.pin)
	assert.Equal(t, "KeycardDefaultPairing", k.pairingPassword)

	// Abandon without a pending signing is harmless.
	k.Abandon()
}
