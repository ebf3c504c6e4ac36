package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/pkg/aopp"
)

func testProof() aopp.Proof {
	return aopp.Proof{
		Version:   0,
		Address:   "bc1qaddress",
		AddressID: "m/84'/0'/0'/0/0",
		Message:   "I confirm that I own this address",
		Signature: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithLogger(zap.NewNop()), WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	return NewClient(opts...)
}

func TestSubmit(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cb", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestClient().Submit(context.Background(), server.URL+"/cb", testProof()))

	assert.Equal(t, float64(0), body["version"])
	assert.Equal(t, "bc1qaddress", body["address"])
	assert.Equal(t, "m/84'/0'/0'/0/0", body["addressID"])
	assert.Equal(t, "I confirm that I own this address", body["message"])
	assert.Equal(t, "3q2+7w==", body["signature"])
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, newTestClient().Submit(context.Background(), server.URL, testProof()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestClient(WithRetryCount(2)).Submit(context.Background(), server.URL, testProof())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitClientErrorIsFinal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad signature", http.StatusBadRequest)
	}))
	defer server.Close()

	err := newTestClient().Submit(context.Background(), server.URL, testProof())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "bad signature")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, newTestClient().Submit(ctx, server.URL, testProof()))
}
