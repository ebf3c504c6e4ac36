package aopp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const uriScheme = "aopp"

var (
	ErrInvalidURL = errors.New("invalid callback url")
	ErrInvalidURI = errors.New("invalid aopp uri")
)

// HostOf returns the host of an absolute callback URL, for display.
func HostOf(callbackURL string) (string, error) {
	if callbackURL == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", errors.Wrap(ErrInvalidURL, err.Error())
	}
	if !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.Host, nil
}

// ParseURI turns an aopp:?v=0&msg=..&asset=btc&format=any&callback=.. URI into a Request.
// The request is not validated, Start does that.
func ParseURI(uri string) (*Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidURI, err.Error())
	}
	if !strings.EqualFold(u.Scheme, uriScheme) {
		return nil, errors.Wrapf(ErrInvalidURI, "unexpected scheme %q", u.Scheme)
	}

	// aopp:?v=0 is opaque, aopp://?v=0 is not.
	query := u.RawQuery
	if query == "" && strings.HasPrefix(u.Opaque, "?") {
		query = u.Opaque[1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidURI, err.Error())
	}

	request := &Request{
		CallbackURL:   values.Get("callback"),
		RequestedCoin: values.Get("asset"),
		Message:       values.Get("msg"),
		Format:        values.Get("format"),
	}

	if v := values.Get("v"); v != "" {
		request.Version, err = strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidURI, "invalid version %q", v)
		}
	}

	return request, nil
}
