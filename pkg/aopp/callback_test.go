package aopp

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOf(t *testing.T) {
	tests := []struct {
		name     string
		callback string
		want     string
		wantErr  bool
	}{
		{name: "https", callback: "https://verify.example/cb", want: "verify.example"},
		{name: "port", callback: "http://localhost:8080/proof?id=1", want: "localhost:8080"},
		{name: "empty", callback: "", wantErr: true},
		{name: "relative", callback: "/cb", wantErr: true},
		{name: "garbage", callback: "://nope", wantErr: true},
		{name: "no host", callback: "mailto:someone@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, err := HostOf(tt.callback)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidURL))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, host)
		})
	}
}

func TestParseURI(t *testing.T) {
	request, err := ParseURI("aopp:?v=0&msg=vasp-chosen-msg&asset=btc&format=any&callback=https%3A%2F%2Fverify.example%2Fcb")
	require.NoError(t, err)

	assert.Equal(t, 0, request.Version)
	assert.Equal(t, "vasp-chosen-msg", request.Message)
	assert.Equal(t, "btc", request.RequestedCoin)
	assert.Equal(t, "any", request.Format)
	assert.Equal(t, "https://verify.example/cb", request.CallbackURL)
	assert.Empty(t, request.ID)
}

func TestParseURIErrors(t *testing.T) {
	_, err := ParseURI("bitcoin:?v=0")
	assert.True(t, errors.Is(err, ErrInvalidURI))

	_, err = ParseURI("aopp:?v=zero&asset=btc")
	assert.True(t, errors.Is(err, ErrInvalidURI))
}

func TestValidateRequest(t *testing.T) {
	valid := Request{CallbackURL: "https://verify.example/cb", RequestedCoin: "BTC"}
	require.NoError(t, validateRequest(&valid))

	invalid := []Request{
		{CallbackURL: "", RequestedCoin: "btc"},
		{CallbackURL: "ftp://verify.example/cb", RequestedCoin: "btc"},
		{CallbackURL: "not a url", RequestedCoin: "btc"},
		{CallbackURL: "https://verify.example/cb", RequestedCoin: "doge"},
		{CallbackURL: "https://verify.example/cb", RequestedCoin: "btc", Version: 1},
		{CallbackURL: "https://verify.example/cb", RequestedCoin: "btc", Format: "segwit-v9"},
	}
	for _, request := range invalid {
		request := request
		assert.Error(t, validateRequest(&request), "%+v", request)
	}
}
