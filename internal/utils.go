package internal

import (
	"github.com/ebfe/scard"
	keycard "github.com/status-im/keycard-go"
	ktypes "github.com/status-im/keycard-go/types"
)

func IsSCardError(err error) bool {
	_, ok := err.(scard.Error)
	return ok
}

func GetRetries(err error) (int, bool) {
	if wrongPIN, ok := err.(*keycard.WrongPINError); ok {
		return wrongPIN.RemainingAttempts, ok
	}
	return 0, false
}

// SignatureBytes encodes a keycard signature as R || S || V, the layout go-ethereum uses.
func SignatureBytes(sig *ktypes.Signature) []byte {
	out := make([]byte, 65)
	copy(out[32-len(sig.R()):32], sig.R())
	copy(out[64-len(sig.S()):64], sig.S())
	out[64] = sig.V()
	return out
}
