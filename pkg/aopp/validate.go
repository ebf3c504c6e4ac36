package aopp

import (
	goerrors "errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Coin codes known to the coordinator, mainnets first.
var knownCoins = map[string]bool{
	"btc":  true,
	"ltc":  true,
	"eth":  true,
	"tbtc": true,
	"tltc": true,
	"teth": true,
	"reth": true,
}

var testnetCoins = map[string][]string{
	"btc": {"tbtc"},
	"ltc": {"tltc"},
	"eth": {"teth", "reth"},
}

var (
	validate = validator.New()
)

func init() {
	err := validate.RegisterValidation("callback", isCallbackURL)
	if err != nil {
		panic(err)
	}
	err = validate.RegisterValidation("coin", isKnownCoin)
	if err != nil {
		panic(err)
	}
}

func validateRequest(v interface{}) error {
	err := validate.Struct(v)
	if err != nil {
		var errs validator.ValidationErrors
		if goerrors.As(err, &errs) {
			joined := make([]error, len(errs))
			for i := range errs {
				joined[i] = errs[i]
			}
			return goerrors.Join(joined...)
		}
		return err
	}
	return nil
}

// Callback must be an absolute http(s) URL with a host.
func isCallbackURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if _, err := HostOf(raw); err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

func isKnownCoin(fl validator.FieldLevel) bool {
	return knownCoins[normalizeCoin(fl.Field().String())]
}

func normalizeCoin(coin string) string {
	return strings.ToLower(strings.TrimSpace(coin))
}

// compatible reports whether an account of coinCode can answer a request for coin.
func compatible(coinCode, coin string, testnet bool) bool {
	coinCode = normalizeCoin(coinCode)
	coin = normalizeCoin(coin)
	if coinCode == coin {
		return true
	}
	if !testnet {
		return false
	}
	for _, c := range testnetCoins[coin] {
		if c == coinCode {
			return true
		}
	}
	return false
}
