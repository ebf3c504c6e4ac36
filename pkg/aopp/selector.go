package aopp

import (
	"github.com/pkg/errors"
)

var ErrNoEligibleAccounts = errors.New("no eligible accounts")

// SelectCandidates keeps the active accounts compatible with coin, in inventory order.
func SelectCandidates(accounts []AccountSnapshot, coin string, testnet bool) []AccountSnapshot {
	candidates := make([]AccountSnapshot, 0, len(accounts))
	for _, account := range accounts {
		if !account.Active {
			continue
		}
		if !compatible(account.CoinCode, coin, testnet) {
			continue
		}
		candidates = append(candidates, account)
	}
	return candidates
}

// DefaultOf picks the first candidate.
func DefaultOf(candidates []AccountSnapshot) (AccountSnapshot, error) {
	if len(candidates) == 0 {
		return AccountSnapshot{}, ErrNoEligibleAccounts
	}
	return candidates[0], nil
}

// Reconcile computes the selection after the candidate list changed from previous to next.
// An explicit selection survives only if next is set-equal to previous and still contains it;
// in every other case the default of next replaces it.
func Reconcile(previous []AccountSnapshot, selected string, explicit bool, next []AccountSnapshot) (string, bool, error) {
	def, err := DefaultOf(next)
	if err != nil {
		return "", false, err
	}

	if explicit && sameCodes(previous, next) && containsCode(next, selected) {
		return selected, true, nil
	}

	return def.Code, false, nil
}

func containsCode(accounts []AccountSnapshot, code string) bool {
	for _, account := range accounts {
		if account.Code == code {
			return true
		}
	}
	return false
}

// sameCodes compares account codes as sets, ignoring order.
func sameCodes(a, b []AccountSnapshot) bool {
	setA := make(map[string]struct{}, len(a))
	for _, account := range a {
		setA[account.Code] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, account := range b {
		setB[account.Code] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for code := range setA {
		if _, ok := setB[code]; !ok {
			return false
		}
	}
	return true
}
