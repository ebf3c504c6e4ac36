package device

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrAddressMismatch = errors.New("address does not belong to the keystore")
	ErrSigningAborted  = errors.New("signing aborted")
	ErrUnsupportedCoin = errors.New("coin not supported by the keystore")
)

// Kind names the keystore backing a signer.
type Kind string

const (
	KindSoftware Kind = "software"
	KindKeycard  Kind = "keycard"
)

// RecoverAddress returns the address that produced signature over the text-hashed message.
func RecoverAddress(message string, signature []byte) (string, error) {
	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), signature)
	if err != nil {
		return "", errors.Wrap(err, "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// checksAddress reports whether addresses of the coin are derived from the signing key, so the
// requested address can be compared with the one of the key.
func checksAddress(coin string) bool {
	switch strings.ToLower(coin) {
	case "eth", "teth", "reth":
		return true
	}
	return false
}

func sameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
