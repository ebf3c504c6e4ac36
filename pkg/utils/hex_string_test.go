package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexStringJSON(t *testing.T) {
	payload := struct {
		Signature HexString `json:"signature"`
	}{Signature: HexString{0xde, 0xad, 0xbe, 0xef}}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"signature":"deadbeef"}`, string(b))

	var decoded HexString
	require.NoError(t, json.Unmarshal([]byte(`"0xDEADbeef"`), &decoded))
	assert.Equal(t, HexString{0xde, 0xad, 0xbe, 0xef}, decoded)
	assert.Equal(t, "deadbeef", decoded.String())
}

func TestHexStringInvalid(t *testing.T) {
	var decoded HexString
	assert.Error(t, json.Unmarshal([]byte(`"xyz"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`12`), &decoded))
}
