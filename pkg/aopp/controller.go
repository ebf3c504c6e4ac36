package aopp

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/signal"
)

const defaultDeliveryTimeout = 30 * time.Second

var (
	ErrFlowInProgress      = errors.New("aopp flow already in progress")
	ErrControllerStopped   = errors.New("aopp controller stopped")
	errMissingCollaborator = errors.New("missing collaborator")
)

// Inventory is the account inventory the candidates are selected from.
type Inventory interface {
	Accounts() []AccountSnapshot
}

// Syncer refreshes an account and returns the address to prove ownership of.
type Syncer interface {
	Sync(ctx context.Context, accountCode string) (Address, error)
}

// Signer asks the signing device for a message signature. SignMessage may block until the user
// confirms on the device; Abandon asks the device to give up the pending operation.
type Signer interface {
	SignMessage(ctx context.Context, request SignRequest) (*Signature, error)
	Abandon()
}

// Deliverer submits a proof to the verifier callback.
type Deliverer interface {
	Submit(ctx context.Context, callbackURL string, proof Proof) error
}

// SyncResult is reported once an account sync started by Approve finished.
type SyncResult struct {
	RequestID   string
	AccountCode string
	Address     Address
	Err         error
}

type flowEvent struct {
	name  string
	apply func() error
	done  chan error
}

// Controller is the AOPP state machine. All events are applied one at a time by a single
// goroutine, which is the only writer of the Store.
type Controller struct {
	logger          *zap.Logger
	store           *Store
	inventory       Inventory
	syncer          Syncer
	signer          Signer
	deliverer       Deliverer
	testnet         bool
	deliveryTimeout time.Duration

	events   chan *flowEvent
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	rootCtx  context.Context
	shutdown func()

	// Owned by the run goroutine.
	state         FlowState
	accounts      []AccountSnapshot
	keystoreReady bool
	cancelWork    func()
}

func NewController(store *Store, inventory Inventory, syncer Syncer, signer Signer, opts ...Option) (*Controller, error) {
	if store == nil || inventory == nil || syncer == nil || signer == nil {
		return nil, errMissingCollaborator
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		logger:          zap.L().Named("aopp"),
		store:           store,
		inventory:       inventory,
		syncer:          syncer,
		signer:          signer,
		deliveryTimeout: defaultDeliveryTimeout,
		events:          make(chan *flowEvent),
		quit:            make(chan struct{}),
		stopped:         make(chan struct{}),
		rootCtx:         ctx,
		shutdown:        cancel,
		state:           store.Current(),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.run()

	return c, nil
}

// Store returns the store the controller writes to.
func (c *Controller) Store() *Store {
	return c.store
}

// Stop terminates the event loop, aborts pending sync and signing work and closes the store.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		<-c.stopped
		c.shutdown()
		c.store.Close()
	})
}

func (c *Controller) run() {
	defer close(c.stopped)
	defer c.abortWork()

	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.logger.Debug("applying event", zap.String("event", ev.name))
			ev.done <- ev.apply()
		}
	}
}

// dispatch queues the event and waits until it was applied.
func (c *Controller) dispatch(name string, apply func() error) error {
	ev := &flowEvent{name: name, apply: apply, done: make(chan error, 1)}

	select {
	case c.events <- ev:
	case <-c.quit:
		return ErrControllerStopped
	}

	select {
	case err := <-ev.done:
		return err
	case <-c.stopped:
		return ErrControllerStopped
	}
}

// Start begins a new flow. Only allowed when no flow is active or the previous one failed.
// Invalid requests are not returned as errors, they move the flow to the error state.
func (c *Controller) Start(request Request) error {
	return c.dispatch("start", func() error {
		return c.start(request)
	})
}

// KeystoreReady reports that a signing device is available.
func (c *Controller) KeystoreReady() error {
	return c.dispatch("keystoreReady", c.onKeystoreReady)
}

// KeystoreGone reports that the signing device went away.
func (c *Controller) KeystoreGone() error {
	return c.dispatch("keystoreGone", func() error {
		c.keystoreReady = false
		return nil
	})
}

// AccountsChanged feeds a new inventory snapshot.
func (c *Controller) AccountsChanged(accounts []AccountSnapshot) error {
	snapshot := append([]AccountSnapshot(nil), accounts...)
	return c.dispatch("accountsChanged", func() error {
		c.onAccountsChanged(snapshot)
		return nil
	})
}

// SelectAccount highlights a candidate without confirming it.
func (c *Controller) SelectAccount(code string) error {
	return c.dispatch("selectAccount", func() error {
		c.selectAccount(code)
		return nil
	})
}

// ChooseAccount confirms a candidate and asks for approval.
func (c *Controller) ChooseAccount(code string) error {
	return c.dispatch("chooseAccount", func() error {
		c.chooseAccount(code)
		return nil
	})
}

// Approve starts syncing the bound account.
func (c *Controller) Approve() error {
	return c.dispatch("approve", func() error {
		c.approve()
		return nil
	})
}

// SyncComplete reports the outcome of the account sync.
func (c *Controller) SyncComplete(result SyncResult) error {
	return c.dispatch("syncComplete", func() error {
		c.syncComplete(result)
		return nil
	})
}

// DeviceSigningResult reports the outcome of the device signing.
func (c *Controller) DeviceSigningResult(result SigningResult) error {
	return c.dispatch("deviceSigningResult", func() error {
		c.deviceSigningResult(result)
		return nil
	})
}

// Cancel resets any active flow but an error one, which needs Dismiss.
func (c *Controller) Cancel() error {
	return c.dispatch("cancel", func() error {
		c.cancel()
		return nil
	})
}

// Dismiss resets a failed flow.
func (c *Controller) Dismiss() error {
	return c.dispatch("dismiss", func() error {
		if c.state.State == Error {
			c.setState(inactiveState())
		}
		return nil
	})
}

func (c *Controller) setState(state FlowState) {
	c.state = state
	c.store.set(state)
}

func (c *Controller) start(request Request) error {
	switch c.state.State {
	case Inactive, Error:
	default:
		return ErrFlowInProgress
	}

	c.abortWork()

	request.ID = uuid.NewString()
	logger := c.logger.With(zap.String("request", request.ID))

	err := validateRequest(&request)
	if err != nil {
		logger.Warn("invalid aopp request", zap.Error(err))
		c.setState(errorState(ErrorInvalidRequest, &request))
		return nil
	}

	logger.Info("aopp request received",
		zap.String("callback", request.CallbackURL),
		zap.String("asset", request.RequestedCoin))

	if !c.keystoreReady {
		state := FlowState{State: AwaitingKeystore}
		state.bind(&request)
		c.setState(state)
		return nil
	}

	c.accounts = c.inventory.Accounts()
	c.enterAccountSelection(&request)
	return nil
}

func (c *Controller) onKeystoreReady() error {
	c.keystoreReady = true
	if c.state.State != AwaitingKeystore {
		return nil
	}

	c.accounts = c.inventory.Accounts()
	c.enterAccountSelection(c.state.Request)
	return nil
}

func (c *Controller) enterAccountSelection(request *Request) {
	candidates := SelectCandidates(c.accounts, request.RequestedCoin, c.testnet)

	switch len(candidates) {
	case 0:
		c.setState(errorState(ErrorNoEligibleAccounts, request))
	case 1:
		c.setState(approvalState(request, candidates[0]))
	default:
		state := FlowState{
			State:    ChoosingAccount,
			Accounts: candidates,
			Selected: candidates[0].Code,
		}
		state.bind(request)
		c.setState(state)
	}
}

func approvalState(request *Request, account AccountSnapshot) FlowState {
	state := FlowState{State: UserApproval, Account: &account}
	state.bind(request)
	return state
}

func (c *Controller) onAccountsChanged(accounts []AccountSnapshot) {
	c.accounts = accounts

	switch c.state.State {
	case ChoosingAccount:
		c.reconcileChoice()
	case UserApproval:
		c.reconcileApproval()
	default:
		// Other states keep the bound account; the new inventory is used by the next flow.
	}
}

func (c *Controller) reconcileChoice() {
	current := c.state
	next := SelectCandidates(c.accounts, current.Request.RequestedCoin, c.testnet)

	selected, explicit, err := Reconcile(current.Accounts, current.Selected, current.explicit, next)
	if err != nil {
		c.setState(errorState(ErrorNoEligibleAccounts, current.Request))
		return
	}

	if reflect.DeepEqual(current.Accounts, next) && selected == current.Selected && explicit == current.explicit {
		return
	}

	state := FlowState{
		State:    ChoosingAccount,
		Accounts: next,
		Selected: selected,
		explicit: explicit,
	}
	state.bind(current.Request)
	c.setState(state)
}

func (c *Controller) reconcileApproval() {
	current := c.state
	next := SelectCandidates(c.accounts, current.Request.RequestedCoin, c.testnet)

	if len(next) == 0 {
		c.setState(errorState(ErrorNoEligibleAccounts, current.Request))
		return
	}

	for _, account := range next {
		if account.Code == current.Account.Code {
			if account != *current.Account {
				c.setState(approvalState(current.Request, account))
			}
			return
		}
	}

	// The bound account is gone, the user has to pick again.
	c.logger.Info("approved account disappeared", zap.String("account", current.Account.Code))
	c.enterAccountSelection(current.Request)
}

func (c *Controller) selectAccount(code string) {
	if c.state.State != ChoosingAccount {
		return
	}
	if _, ok := c.state.Candidate(code); !ok {
		return
	}

	state := c.state.clone()
	state.Selected = code
	state.explicit = true
	c.setState(state)
}

func (c *Controller) chooseAccount(code string) {
	if c.state.State != ChoosingAccount {
		return
	}
	account, ok := c.state.Candidate(code)
	if !ok {
		c.logger.Debug("ignoring unknown account choice", zap.String("account", code))
		return
	}

	c.setState(approvalState(c.state.Request, account))
}

func (c *Controller) approve() {
	if c.state.State != UserApproval {
		return
	}

	request := c.state.Request
	account := *c.state.Account

	state := FlowState{State: Syncing, Account: &account}
	state.bind(request)
	c.setState(state)

	ctx := c.newWork()
	go func() {
		address, err := c.syncer.Sync(ctx, account.Code)
		if ctx.Err() != nil {
			return
		}
		_ = c.SyncComplete(SyncResult{
			RequestID:   request.ID,
			AccountCode: account.Code,
			Address:     address,
			Err:         err,
		})
	}()
}

func (c *Controller) syncComplete(result SyncResult) {
	if c.state.State != Syncing || !c.bound(result.RequestID, result.AccountCode) {
		c.logger.Debug("discarding stale sync result", zap.String("request", result.RequestID))
		return
	}

	request := c.state.Request
	account := *c.state.Account

	if result.Err != nil {
		c.logger.Error("account sync failed", zap.String("account", account.Code), zap.Error(result.Err))
		c.abortWork()
		c.setState(errorState(ErrorSyncFailed, request))
		return
	}

	state := FlowState{
		State:     Signing,
		Account:   &account,
		Address:   result.Address.Address,
		AddressID: result.Address.AddressID,
	}
	state.bind(request)
	c.setState(state)

	signRequest := SignRequest{
		RequestID: request.ID,
		Coin:      account.CoinCode,
		Account:   account,
		Address:   result.Address.Address,
		AddressID: result.Address.AddressID,
		Message:   request.Message,
	}

	ctx := c.newWork()
	go func() {
		res := SigningResult{RequestID: request.ID, AccountCode: account.Code}
		sig, err := c.signer.SignMessage(ctx, signRequest)
		switch {
		case err != nil:
			res.Err = err
		case sig == nil:
			res.Err = errors.New("device returned no signature")
		default:
			res.OK = true
			res.Message = sig.Message
			res.Signature = sig.Signature
		}
		_ = c.DeviceSigningResult(res)
	}()
}

func (c *Controller) deviceSigningResult(result SigningResult) {
	if c.state.State != Signing || !c.bound(result.RequestID, result.AccountCode) {
		c.logger.Debug("discarding stale signing result", zap.String("request", result.RequestID))
		return
	}

	request := c.state.Request
	current := c.state
	c.abortWork()

	if !result.OK {
		c.logger.Error("signing failed", zap.String("account", current.Account.Code), zap.Error(result.Err))
		c.setState(errorState(ErrorSigningFailed, request))
		return
	}

	state := FlowState{
		State:     Success,
		Account:   current.Account,
		Address:   current.Address,
		AddressID: current.AddressID,
		Message:   result.Message,
		Signature: result.Signature,
	}
	state.bind(request)
	c.setState(state)

	proof := Proof{
		Version:   request.Version,
		Address:   state.Address,
		AddressID: state.AddressID,
		Message:   state.Message,
		Signature: append([]byte(nil), result.Signature...),
	}
	go c.deliver(*request, proof)
}

func (c *Controller) deliver(request Request, proof Proof) {
	logger := c.logger.With(zap.String("request", request.ID))
	if c.deliverer == nil {
		logger.Warn("no deliverer configured, proof not submitted")
		return
	}

	ctx, cancel := context.WithTimeout(c.rootCtx, c.deliveryTimeout)
	defer cancel()

	err := c.deliverer.Submit(ctx, request.CallbackURL, proof)
	if err != nil {
		logger.Error("proof delivery failed", zap.String("callback", request.CallbackURL), zap.Error(err))
		signal.Send(DeliveryFailed, map[string]interface{}{
			"errorCode": ErrorDeliveryFailed,
			"requestID": request.ID,
			"callback":  request.CallbackURL,
			"error":     err.Error(),
		})
		return
	}

	logger.Info("proof delivered", zap.String("callback", request.CallbackURL))
}

func (c *Controller) cancel() {
	switch c.state.State {
	case Inactive, Error:
		return
	case Signing:
		c.abortWork()
		c.signer.Abandon()
	default:
		c.abortWork()
	}

	c.logger.Info("aopp flow cancelled", zap.String("state", string(c.state.State)))
	c.setState(inactiveState())
}

// bound reports whether the result identity matches the current flow.
func (c *Controller) bound(requestID, accountCode string) bool {
	return c.state.Request != nil && c.state.Request.ID == requestID &&
		c.state.Account != nil && c.state.Account.Code == accountCode
}

func (c *Controller) newWork() context.Context {
	c.abortWork()
	ctx, cancel := context.WithCancel(c.rootCtx)
	c.cancelWork = cancel
	return ctx
}

func (c *Controller) abortWork() {
	if c.cancelWork != nil {
		c.cancelWork()
		c.cancelWork = nil
	}
}
