package utils

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// HexString is a byte slice that travels as a lowercase hex string in JSON. Signatures and
// pairing keys use it so that clients do not have to deal with base64.
type HexString []byte

func (s HexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(Btox(s))
}

// UnmarshalJSON accepts the hex form with or without a 0x prefix.
func (s *HexString) UnmarshalJSON(data []byte) error {
	var x string
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}

	b, err := Xtob(x)
	if err != nil {
		return err
	}

	*s = b
	return nil
}

func (s HexString) String() string {
	return Btox(s)
}

func Btox(bytes []byte) string {
	return hex.EncodeToString(bytes)
}

func Xtob(str string) ([]byte, error) {
	str = strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X")
	b, err := hex.DecodeString(str)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex string")
	}
	return b, nil
}
