package internal

import "github.com/pkg/errors"

const (
	MaxPINRetries = 3
	DefPairing    = "KeycardDefaultPairing"
)

const (
	infiniteTimeout    = -1
	p2ExportPublicOnly = uint8(0x01)
)

var (
	ErrNoPCSC     = errors.New("no pcsc service")
	ErrReaderList = errors.New("failed to list readers")
	ErrNoReader   = errors.New("no reader found")
	ErrNotKeycard = errors.New("card is not a keycard")
)
