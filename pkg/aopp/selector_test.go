package aopp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(code, coin string, active bool) AccountSnapshot {
	return AccountSnapshot{Code: code, Name: "Account " + code, CoinCode: coin, Active: active}
}

func codes(accounts []AccountSnapshot) []string {
	result := make([]string, len(accounts))
	for i, a := range accounts {
		result[i] = a.Code
	}
	return result
}

func TestSelectCandidates(t *testing.T) {
	accounts := []AccountSnapshot{
		account("c", "btc", true),
		account("eth-1", "eth", true),
		account("a", "btc", false),
		account("b", "BTC", true),
		account("tb", "tbtc", true),
	}

	assert.Equal(t, []string{"c", "b"}, codes(SelectCandidates(accounts, "btc", false)))
	assert.Equal(t, []string{"eth-1"}, codes(SelectCandidates(accounts, "ETH", false)))
	assert.Empty(t, SelectCandidates(accounts, "ltc", false))
	assert.Empty(t, SelectCandidates(nil, "btc", false))
}

func TestSelectCandidatesTestnet(t *testing.T) {
	accounts := []AccountSnapshot{
		account("tb", "tbtc", true),
		account("te", "teth", true),
		account("re", "reth", true),
	}

	assert.Equal(t, []string{"tb"}, codes(SelectCandidates(accounts, "btc", true)))
	assert.Equal(t, []string{"te", "re"}, codes(SelectCandidates(accounts, "eth", true)))
	assert.Equal(t, []string{"tb"}, codes(SelectCandidates(accounts, "tbtc", true)))
	assert.Empty(t, SelectCandidates(accounts, "btc", false))
}

func TestDefaultOf(t *testing.T) {
	_, err := DefaultOf(nil)
	require.ErrorIs(t, err, ErrNoEligibleAccounts)

	def, err := DefaultOf([]AccountSnapshot{account("x", "btc", true), account("y", "btc", true)})
	require.NoError(t, err)
	assert.Equal(t, "x", def.Code)
}

func TestReconcile(t *testing.T) {
	ab := []AccountSnapshot{account("a", "btc", true), account("b", "btc", true)}
	ba := []AccountSnapshot{account("b", "btc", true), account("a", "btc", true)}
	abc := []AccountSnapshot{account("a", "btc", true), account("b", "btc", true), account("c", "btc", true)}
	c := []AccountSnapshot{account("c", "btc", true)}

	t.Run("set equal keeps explicit selection", func(t *testing.T) {
		selected, explicit, err := Reconcile(ab, "b", true, ba)
		require.NoError(t, err)
		assert.Equal(t, "b", selected)
		assert.True(t, explicit)
	})

	t.Run("set equal without explicit selection follows default", func(t *testing.T) {
		selected, explicit, err := Reconcile(ab, "a", false, ba)
		require.NoError(t, err)
		assert.Equal(t, "b", selected)
		assert.False(t, explicit)
	})

	t.Run("addition resets selection", func(t *testing.T) {
		selected, explicit, err := Reconcile(ab, "b", true, abc)
		require.NoError(t, err)
		assert.Equal(t, "a", selected)
		assert.False(t, explicit)
	})

	t.Run("removed selection resets", func(t *testing.T) {
		selected, _, err := Reconcile(ab, "b", true, c)
		require.NoError(t, err)
		assert.Equal(t, "c", selected)
	})

	t.Run("empty fails", func(t *testing.T) {
		_, _, err := Reconcile(ab, "a", true, nil)
		assert.ErrorIs(t, err, ErrNoEligibleAccounts)
	})
}
