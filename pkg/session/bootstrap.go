package session

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/status-im/status-aopp-go/pkg/accounts"
	"github.com/status-im/status-aopp-go/pkg/aopp"
	"github.com/status-im/status-aopp-go/pkg/device"
	"github.com/status-im/status-aopp-go/pkg/pairing"
	"github.com/status-im/status-aopp-go/pkg/verifier"
)

// Config describes the whole coordinator: inventory, keystores, verifier client and limits.
type Config struct {
	AccountsFile    string        `json:"accountsFile"`
	Keystore        device.Kind   `json:"keystore" validate:"omitempty,oneof=none software keycard"`
	Mnemonic        string        `json:"mnemonic" validate:"required_if=Keystore software"`
	Passphrase      string        `json:"passphrase"`
	PairingsFile    string        `json:"pairingsFile" validate:"required_if=Keystore keycard"`
	PairingPassword string        `json:"pairingPassword"`
	PIN             string        `json:"pin"`
	Testnet         bool          `json:"testnet"`
	DeliveryTimeout time.Duration `json:"deliveryTimeout"`
	DeliveryRetries int           `json:"deliveryRetries" validate:"gte=0"`
	StartLimit      rate.Limit    `json:"startLimit"`
	StartBurst      int           `json:"startBurst" validate:"gte=0"`
}

// Node is a running coordinator.
type Node struct {
	Inventory  *accounts.Store
	Controller *aopp.Controller
	Service    *AOPPService
	RPC        *rpc.Server

	stopOnce     sync.Once
	subscription event.Subscription
}

// Bootstrap wires the coordinator described by cfg and starts its controller.
func Bootstrap(cfg Config, logger *zap.Logger) (*Node, error) {
	if err := validateRequest(&cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.L()
	}

	inventory, err := accounts.NewStore(cfg.AccountsFile, logger)
	if err != nil {
		return nil, err
	}

	slot := &device.Slot{}
	var opts []Option

	if cfg.PairingsFile != "" {
		pairings, err := pairing.NewStore(cfg.PairingsFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open pairing store")
		}
		keycard, err := device.NewKeycard(pairings,
			device.WithPIN(cfg.PIN),
			device.WithPairingPassword(cfg.PairingPassword),
			device.WithKeycardLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithKeycard(keycard))
		if cfg.Keystore == device.KindKeycard {
			slot.Plug(device.KindKeycard, keycard)
		}
	}

	if cfg.Keystore == device.KindSoftware {
		software, err := device.NewSoftware(cfg.Mnemonic, cfg.Passphrase, logger)
		if err != nil {
			return nil, err
		}
		slot.Plug(device.KindSoftware, software)
	}

	_, keystoreReady := slot.Kind()

	client := verifier.NewClient(
		verifier.WithLogger(logger),
		verifier.WithRetryCount(cfg.DeliveryRetries))

	controller, err := aopp.NewController(aopp.NewStore(logger), inventory, inventory, slot,
		aopp.WithLogger(logger),
		aopp.WithDeliverer(client),
		aopp.WithDeliveryTimeout(cfg.DeliveryTimeout),
		aopp.WithTestnet(cfg.Testnet),
		aopp.WithKeystoreReady(keystoreReady))
	if err != nil {
		return nil, err
	}

	opts = append(opts, WithLogger(logger), WithInventory(inventory))
	if cfg.StartLimit > 0 {
		opts = append(opts, WithStartLimit(cfg.StartLimit, cfg.StartBurst))
	}
	service := NewAOPPService(controller, slot, opts...)

	rpcServer, err := CreateRPCServer(service)
	if err != nil {
		controller.Stop()
		return nil, errors.Wrap(err, "failed to create RPC server")
	}

	updates := make(chan []aopp.AccountSnapshot, 16)
	subscription := inventory.Subscribe(updates)
	go forwardInventory(controller, updates, subscription.Err(), logger.Named("session"))

	return &Node{
		Inventory:    inventory,
		Controller:   controller,
		Service:      service,
		RPC:          rpcServer,
		subscription: subscription,
	}, nil
}

// Stop ends the inventory subscription and the controller.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.subscription.Unsubscribe()
		n.Controller.Stop()
	})
}

// forwardInventory feeds inventory changes to the controller until the subscription ends.
func forwardInventory(controller *aopp.Controller, updates <-chan []aopp.AccountSnapshot, done <-chan error, logger *zap.Logger) {
	for {
		select {
		case snapshot := <-updates:
			if err := controller.AccountsChanged(snapshot); err != nil {
				logger.Debug("inventory update not applied", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
