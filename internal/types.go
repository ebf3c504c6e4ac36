package internal

import "github.com/status-im/status-aopp-go/pkg/utils"

type KeyPair struct {
	Address   string          `json:"address"`
	PublicKey utils.HexString `json:"publicKey"`
}
