package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/status-im/status-aopp-go/pkg/accounts"
	"github.com/status-im/status-aopp-go/pkg/aopp"
	"github.com/status-im/status-aopp-go/pkg/device"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const ethPath = "m/44'/60'/0'/0/0"

func softwareAddress(t *testing.T, addressID string) string {
	software, err := device.NewSoftware(testMnemonic, "", zap.NewNop())
	require.NoError(t, err)
	address, err := software.Address(addressID)
	require.NoError(t, err)
	return address
}

func newTestService(t *testing.T, opts ...Option) *AOPPService {
	inventory, err := accounts.NewStore("", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inventory.Put(accounts.Account{
		Code:     "eth-0",
		Name:     "Ethereum",
		CoinCode: "eth",
		Active:   true,
		Addresses: []accounts.AddressEntry{
			{Address: softwareAddress(t, ethPath), AddressID: ethPath},
		},
	}))

	slot := &device.Slot{}
	controller, err := aopp.NewController(aopp.NewStore(zap.NewNop()), inventory, inventory, slot,
		aopp.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(controller.Stop)

	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewAOPPService(controller, slot, opts...)
}

func testURI() string {
	return "aopp:?v=0&msg=" + url.QueryEscape("I own this") + "&asset=eth&format=any&callback=" +
		url.QueryEscape("https://verify.example/cb")
}

func TestServiceFlow(t *testing.T) {
	s := newTestService(t)

	var state aopp.FlowState
	require.NoError(t, s.Start(&StartRequest{URI: testURI()}, &state))
	assert.Equal(t, aopp.AwaitingKeystore, state.State)
	assert.Equal(t, "verify.example", state.Host)

	err := s.UnlockSoftwareKeystore(&UnlockSoftwareKeystoreRequest{Mnemonic: "not a mnemonic"}, &struct{}{})
	assert.Error(t, err)

	require.NoError(t, s.UnlockSoftwareKeystore(&UnlockSoftwareKeystoreRequest{Mnemonic: testMnemonic}, &struct{}{}))

	var keystore KeystoreStatus
	require.NoError(t, s.GetKeystore(&struct{}{}, &keystore))
	assert.True(t, keystore.Connected)
	assert.Equal(t, device.KindSoftware, keystore.Kind)

	require.NoError(t, s.GetState(&struct{}{}, &state))
	require.Equal(t, aopp.UserApproval, state.State)
	assert.Equal(t, "eth-0", state.Account.Code)

	require.NoError(t, s.Approve(&struct{}{}, &struct{}{}))
	require.Eventually(t, func() bool {
		_ = s.GetState(&struct{}{}, &state)
		return state.State == aopp.Success
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "I own this", state.Message)
	assert.Equal(t, softwareAddress(t, ethPath), state.Address)
	assert.Len(t, state.Signature, 65)

	require.NoError(t, s.Cancel(&struct{}{}, &struct{}{}))
	require.NoError(t, s.GetState(&struct{}{}, &state))
	assert.Equal(t, aopp.Inactive, state.State)
}

func TestServiceStartWithRequest(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.UnlockSoftwareKeystore(&UnlockSoftwareKeystoreRequest{Mnemonic: testMnemonic}, &struct{}{}))

	var state aopp.FlowState
	err := s.Start(&StartRequest{Request: &aopp.Request{CallbackURL: "https://verify.example/cb", RequestedCoin: "ltc"}}, &state)
	require.NoError(t, err)
	assert.Equal(t, aopp.Error, state.State)
	assert.Equal(t, aopp.ErrorNoEligibleAccounts, state.ErrorCode)

	require.NoError(t, s.Dismiss(&struct{}{}, &struct{}{}))
}

func TestServiceStartValidation(t *testing.T) {
	s := newTestService(t)

	var state aopp.FlowState
	assert.Error(t, s.Start(&StartRequest{}, &state))
	assert.True(t, errors.Is(s.Start(&StartRequest{URI: "bitcoin:abc"}, &state), aopp.ErrInvalidURI))

	assert.Error(t, s.ChooseAccount(&AccountRequest{}, &struct{}{}))
	assert.Error(t, s.SelectAccount(&AccountRequest{}, &struct{}{}))
}

func TestServiceStartRateLimit(t *testing.T) {
	s := newTestService(t, WithStartLimit(rate.Every(time.Hour), 1))

	var state aopp.FlowState
	require.NoError(t, s.Start(&StartRequest{URI: testURI()}, &state))
	require.NoError(t, s.Cancel(&struct{}{}, &struct{}{}))

	assert.ErrorIs(t, s.Start(&StartRequest{URI: testURI()}, &state), errRateLimited)
}

func TestServiceKeystoreLifecycle(t *testing.T) {
	s := newTestService(t)

	assert.ErrorIs(t, s.ConnectKeycard(&struct{}{}, &struct{}{}), errKeycardUnavailable)

	require.NoError(t, s.UnlockSoftwareKeystore(&UnlockSoftwareKeystoreRequest{Mnemonic: testMnemonic}, &struct{}{}))
	require.NoError(t, s.LockKeystore(&struct{}{}, &struct{}{}))

	var keystore KeystoreStatus
	require.NoError(t, s.GetKeystore(&struct{}{}, &keystore))
	assert.False(t, keystore.Connected)

	var state aopp.FlowState
	require.NoError(t, s.Start(&StartRequest{URI: testURI()}, &state))
	assert.Equal(t, aopp.AwaitingKeystore, state.State)
}

func rpcCall(t *testing.T, serverURL, method string, params interface{}) map[string]interface{} {
	body, err := json.Marshal(map[string]interface{}{
		"method": method,
		"params": []interface{}{params},
		"id":     1,
	})
	require.NoError(t, err)

	resp, err := http.Post(serverURL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func TestRPCServer(t *testing.T) {
	rpcServer, err := CreateRPCServer(newTestService(t))
	require.NoError(t, err)

	server := httptest.NewServer(rpcServer)
	defer server.Close()

	result := rpcCall(t, server.URL, "aopp.Start", map[string]interface{}{"uri": testURI()})
	require.Nil(t, result["error"])
	state := result["result"].(map[string]interface{})
	assert.Equal(t, "awaiting-keystore", state["state"])
	assert.Equal(t, "https://verify.example/cb", state["callback"])

	result = rpcCall(t, server.URL, "aopp.ChooseAccount", map[string]interface{}{})
	assert.NotNil(t, result["error"])

	result = rpcCall(t, server.URL, "aopp.Cancel", map[string]interface{}{})
	require.Nil(t, result["error"])

	result = rpcCall(t, server.URL, "aopp.GetState", map[string]interface{}{})
	assert.Equal(t, "inactive", result["result"].(map[string]interface{})["state"])
}

func TestServiceWithoutInventory(t *testing.T) {
	s := newTestService(t)

	assert.ErrorIs(t, s.GetAccounts(&struct{}{}, &AccountsResponse{}), errNoInventory)
	assert.ErrorIs(t, s.PutAccount(&PutAccountRequest{}, &struct{}{}), errNoInventory)
	assert.ErrorIs(t, s.SetAccountActive(&SetAccountActiveRequest{Code: "eth-0"}, &struct{}{}), errNoInventory)
	assert.ErrorIs(t, s.RemoveAccount(&AccountRequest{Code: "eth-0"}, &struct{}{}), errNoInventory)
	assert.ErrorIs(t, s.MarkAddressUsed(&MarkAddressUsedRequest{Code: "eth-0", Address: "a"}, &struct{}{}), errNoInventory)

	assert.Error(t, s.SetAccountActive(&SetAccountActiveRequest{}, &struct{}{}))
	assert.Error(t, s.MarkAddressUsed(&MarkAddressUsedRequest{Code: "eth-0"}, &struct{}{}))
}

func TestValidateRequestNonStruct(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Error(t, validateRequest(nil))
		assert.Error(t, validateRequest("uri"))
	})
}
