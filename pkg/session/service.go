package session

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/status-im/status-aopp-go/pkg/accounts"
	"github.com/status-im/status-aopp-go/pkg/aopp"
	"github.com/status-im/status-aopp-go/pkg/device"
)

var (
	errRateLimited        = errors.New("too many aopp requests, try again later")
	errKeycardUnavailable = errors.New("keycard signing is not configured")
	errNoInventory        = errors.New("account inventory is not configured")
)

type Option func(*AOPPService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *AOPPService) {
		if logger != nil {
			s.logger = logger.Named("session")
		}
	}
}

// WithKeycard makes ConnectKeycard plug the given signer.
func WithKeycard(signer *device.Keycard) Option {
	return func(s *AOPPService) {
		s.keycard = signer
	}
}

// WithInventory enables the account management methods. Changes reach the controller through the
// inventory subscription.
func WithInventory(inventory *accounts.Store) Option {
	return func(s *AOPPService) {
		s.inventory = inventory
	}
}

// WithStartLimit bounds how often verifiers can start flows.
func WithStartLimit(limit rate.Limit, burst int) Option {
	return func(s *AOPPService) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// AOPPService exposes the flow controller to the UI over JSON-RPC. State updates are pushed with
// the `aopp.state-changed` signal, the methods only carry user intents.
type AOPPService struct {
	logger     *zap.Logger
	controller *aopp.Controller
	slot       *device.Slot
	keycard    *device.Keycard
	inventory  *accounts.Store
	limiter    *rate.Limiter
}

func NewAOPPService(controller *aopp.Controller, slot *device.Slot, opts ...Option) *AOPPService {
	s := &AOPPService{
		logger:     zap.L().Named("session"),
		controller: controller,
		slot:       slot,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type StartRequest struct {
	URI     string        `json:"uri" validate:"required_without=Request"`
	Request *aopp.Request `json:"request" validate:"-"`
}

// Start begins a flow from an `aopp:` URI or an already parsed request. The resulting state is
// returned; invalid requests end up in the error state rather than failing the call.
func (s *AOPPService) Start(args *StartRequest, reply *aopp.FlowState) error {
	err := validateRequest(args)
	if err != nil {
		return err
	}

	if !s.limiter.Allow() {
		return errRateLimited
	}

	var request aopp.Request
	if args.Request != nil {
		request = *args.Request
	} else {
		parsed, err := aopp.ParseURI(args.URI)
		if err != nil {
			s.logger.Warn("rejecting aopp uri", zap.Error(err))
			return err
		}
		request = *parsed
	}

	err = s.controller.Start(request)
	if err != nil {
		return err
	}

	*reply = s.controller.Store().Current()
	return nil
}

// GetState should not be really used, as the state is pushed with the `aopp.state-changed` signal.
func (s *AOPPService) GetState(args *struct{}, reply *aopp.FlowState) error {
	*reply = s.controller.Store().Current()
	return nil
}

type AccountRequest struct {
	Code string `json:"code" validate:"required"`
}

func (s *AOPPService) SelectAccount(args *AccountRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}
	return s.controller.SelectAccount(args.Code)
}

func (s *AOPPService) ChooseAccount(args *AccountRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}
	return s.controller.ChooseAccount(args.Code)
}

func (s *AOPPService) Approve(args *struct{}, reply *struct{}) error {
	return s.controller.Approve()
}

func (s *AOPPService) Cancel(args *struct{}, reply *struct{}) error {
	return s.controller.Cancel()
}

func (s *AOPPService) Dismiss(args *struct{}, reply *struct{}) error {
	return s.controller.Dismiss()
}

type UnlockSoftwareKeystoreRequest struct {
	Mnemonic   string `json:"mnemonic" validate:"required,mnemonic"`
	Passphrase string `json:"passphrase"`
}

// UnlockSoftwareKeystore plugs an in-memory keystore derived from the mnemonic.
func (s *AOPPService) UnlockSoftwareKeystore(args *UnlockSoftwareKeystoreRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}

	signer, err := device.NewSoftware(args.Mnemonic, args.Passphrase, s.logger)
	if err != nil {
		return err
	}

	s.slot.Plug(device.KindSoftware, signer)
	s.logger.Info("software keystore unlocked")
	return s.controller.KeystoreReady()
}

// ConnectKeycard plugs the keycard signer. The card itself is only needed once signing starts.
func (s *AOPPService) ConnectKeycard(args *struct{}, reply *struct{}) error {
	if s.keycard == nil {
		return errKeycardUnavailable
	}

	s.slot.Plug(device.KindKeycard, s.keycard)
	s.logger.Info("keycard keystore connected")
	return s.controller.KeystoreReady()
}

// LockKeystore unplugs the current keystore.
func (s *AOPPService) LockKeystore(args *struct{}, reply *struct{}) error {
	s.slot.Unplug()
	s.logger.Info("keystore locked")
	return s.controller.KeystoreGone()
}

type KeystoreStatus struct {
	Connected bool        `json:"connected"`
	Kind      device.Kind `json:"kind,omitempty"`
}

func (s *AOPPService) GetKeystore(args *struct{}, reply *KeystoreStatus) error {
	reply.Kind, reply.Connected = s.slot.Kind()
	return nil
}

type AccountsResponse struct {
	Accounts []accounts.Account `json:"accounts"`
}

func (s *AOPPService) GetAccounts(args *struct{}, reply *AccountsResponse) error {
	if s.inventory == nil {
		return errNoInventory
	}
	reply.Accounts = s.inventory.List()
	return nil
}

type PutAccountRequest struct {
	Account accounts.Account `json:"account"`
}

// PutAccount adds an account or replaces the one with the same code.
func (s *AOPPService) PutAccount(args *PutAccountRequest, reply *struct{}) error {
	if s.inventory == nil {
		return errNoInventory
	}
	return s.inventory.Put(args.Account)
}

type SetAccountActiveRequest struct {
	Code   string `json:"code" validate:"required"`
	Active bool   `json:"active"`
}

func (s *AOPPService) SetAccountActive(args *SetAccountActiveRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}
	if s.inventory == nil {
		return errNoInventory
	}
	return s.inventory.SetActive(args.Code, args.Active)
}

func (s *AOPPService) RemoveAccount(args *AccountRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}
	if s.inventory == nil {
		return errNoInventory
	}
	return s.inventory.Remove(args.Code)
}

type MarkAddressUsedRequest struct {
	Code    string `json:"code" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// MarkAddressUsed is called by the wallet once an address received funds, so later proofs use a
// fresh one.
func (s *AOPPService) MarkAddressUsed(args *MarkAddressUsedRequest, reply *struct{}) error {
	if err := validateRequest(args); err != nil {
		return err
	}
	if s.inventory == nil {
		return errNoInventory
	}
	return s.inventory.MarkUsed(args.Code, args.Address)
}
