package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/status-im/status-aopp-go/pkg/device"
	"github.com/status-im/status-aopp-go/pkg/session"
)

type config struct {
	Address         string        `long:"address" default:"127.0.0.1:0" description:"host:port to listen"`
	LogEnabled      bool          `long:"log" description:"enable logging"`
	LogFile         string        `long:"logfile" description:"write JSON logs to this file instead of the console"`
	AccountsFile    string        `long:"accounts" default:"accounts.json" description:"account inventory file"`
	Keystore        string        `long:"keystore" choice:"none" choice:"software" choice:"keycard" default:"none" description:"keystore connected at start-up"`
	Mnemonic        string        `long:"mnemonic" env:"AOPP_MNEMONIC" description:"mnemonic of the software keystore"`
	Passphrase      string        `long:"passphrase" env:"AOPP_PASSPHRASE" description:"BIP39 passphrase of the software keystore"`
	PIN             string        `long:"pin" env:"AOPP_KEYCARD_PIN" description:"keycard PIN"`
	PairingsFile    string        `long:"pairings" description:"keycard pairings file, enables keycard signing"`
	PairingPassword string        `long:"pairingpassword" description:"keycard pairing password"`
	Testnet         bool          `long:"testnet" description:"let mainnet requests use testnet accounts"`
	DeliveryTimeout time.Duration `long:"deliverytimeout" default:"30s" description:"timeout of the proof submission"`
	DeliveryRetries int           `long:"deliveryretries" default:"3" description:"retries of the proof submission"`
	StartLimit      *RateFlag     `long:"startlimit" description:"accepted aopp requests, as count/period (e.g. 10/1m)"`
}

// RateFlag is a rate limit written as count/period. It implements flags.Unmarshaler.
type RateFlag struct {
	Limit rate.Limit
	Burst int
}

func (r *RateFlag) MarshalFlag() (string, error) {
	if r.Limit == rate.Inf {
		return "inf", nil
	}
	return strconv.Itoa(r.Burst) + "/" + time.Duration(float64(r.Burst)/float64(r.Limit)*float64(time.Second)).String(), nil
}

func (r *RateFlag) UnmarshalFlag(value string) error {
	if value == "inf" {
		r.Limit, r.Burst = rate.Inf, 0
		return nil
	}

	count, period, ok := strings.Cut(value, "/")
	if !ok {
		return errors.Errorf("invalid rate %q, expected count/period", value)
	}

	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return errors.Errorf("invalid rate count %q", count)
	}

	d, err := time.ParseDuration(period)
	if err != nil || d <= 0 {
		return errors.Errorf("invalid rate period %q", period)
	}

	r.Limit = rate.Every(d / time.Duration(n))
	r.Burst = n
	return nil
}

func loadConfig(args []string) (*config, error) {
	cfg := &config{StartLimit: &RateFlag{Limit: rate.Inf}}

	parser := flags.NewParser(cfg, flags.Default)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *config) sessionConfig() session.Config {
	sc := session.Config{
		AccountsFile:    c.AccountsFile,
		Keystore:        device.Kind(c.Keystore),
		Mnemonic:        c.Mnemonic,
		Passphrase:      c.Passphrase,
		PairingsFile:    c.PairingsFile,
		PairingPassword: c.PairingPassword,
		PIN:             c.PIN,
		Testnet:         c.Testnet,
		DeliveryTimeout: c.DeliveryTimeout,
		DeliveryRetries: c.DeliveryRetries,
	}
	if c.StartLimit != nil && c.StartLimit.Limit != rate.Inf {
		sc.StartLimit = c.StartLimit.Limit
		sc.StartBurst = c.StartLimit.Burst
	}
	return sc
}
