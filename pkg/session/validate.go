package session

import (
	goerrors "errors"

	"github.com/go-playground/validator/v10"
	"github.com/tyler-smith/go-bip39"
)

var (
	validate = validator.New()
)

func init() {
	err := validate.RegisterValidation("mnemonic", isMnemonic)
	if err != nil {
		panic(err)
	}
}

func validateRequest(v interface{}) error {
	err := validate.Struct(v)
	if err != nil {
		var errs validator.ValidationErrors
		if goerrors.As(err, &errs) {
			return goerrors.Join(errs)
		}
		return err
	}
	return nil
}

func isMnemonic(fl validator.FieldLevel) bool {
	mnemonic := fl.Field().String()
	return bip39.IsMnemonicValid(mnemonic)
}
