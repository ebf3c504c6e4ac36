package aopp

import (
	"time"

	"go.uber.org/zap"
)

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.Named("aopp")
		}
	}
}

// WithDeliverer sets where proofs are submitted. Without one, proofs are only shown.
func WithDeliverer(deliverer Deliverer) Option {
	return func(c *Controller) {
		c.deliverer = deliverer
	}
}

// WithTestnet lets mainnet requests match testnet accounts.
func WithTestnet(testnet bool) Option {
	return func(c *Controller) {
		c.testnet = testnet
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.deliveryTimeout = timeout
		}
	}
}

// WithKeystoreReady marks the signing context available from the start.
func WithKeystoreReady(ready bool) Option {
	return func(c *Controller) {
		c.keystoreReady = ready
	}
}
