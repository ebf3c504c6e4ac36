package aopp

import (
	"github.com/status-im/status-aopp-go/pkg/utils"
)

type State string

const (
	Inactive         State = "inactive"
	Error            State = "error"
	AwaitingKeystore State = "awaiting-keystore"
	ChoosingAccount  State = "choosing-account"
	UserApproval     State = "user-approval"
	Syncing          State = "syncing"
	Signing          State = "signing"
	Success          State = "success"
)

type ErrorCode string

const (
	ErrorInvalidRequest     ErrorCode = "invalid-request"
	ErrorNoEligibleAccounts ErrorCode = "no-eligible-accounts"
	ErrorSigningFailed      ErrorCode = "signing-failed"
	ErrorSyncFailed         ErrorCode = "sync-failed"
	ErrorDeliveryFailed     ErrorCode = "delivery-failed"
)

const (
	StateChanged   = "aopp.state-changed"
	DeliveryFailed = "aopp.delivery-failed"
)

// Request is one verifier initiated attempt. It is never modified after Start.
type Request struct {
	ID            string `json:"id"`
	CallbackURL   string `json:"callback" validate:"required,callback"`
	RequestedCoin string `json:"asset" validate:"required,coin"`
	Version       int    `json:"version" validate:"eq=0"`
	Message       string `json:"message"`
	Format        string `json:"format" validate:"omitempty,oneof=any p2pkh p2wpkh p2sh p2tr"`
}

// AccountSnapshot is a read-only view of one account of the inventory.
type AccountSnapshot struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	CoinCode string `json:"coinCode"`
	Active   bool   `json:"active"`
}

// Address is the result of syncing an account: the address to prove and its keypath.
type Address struct {
	Address   string `json:"address"`
	AddressID string `json:"addressID"`
}

// FlowState is a tagged union: State selects which of the other fields are meaningful.
//
//	error             ErrorCode
//	choosing-account  Accounts, Selected
//	user-approval     Account
//	syncing           Account
//	signing           Account, Address, AddressID
//	success           Account, Address, AddressID, Message, Signature
//
// Every state but inactive carries the bound request.
type FlowState struct {
	State     State             `json:"state"`
	ErrorCode ErrorCode         `json:"errorCode,omitempty"`
	Callback  string            `json:"callback,omitempty"`
	Host      string            `json:"host,omitempty"`
	Request   *Request          `json:"request,omitempty"`
	Accounts  []AccountSnapshot `json:"accounts,omitempty"`
	Selected  string            `json:"selected,omitempty"`
	Account   *AccountSnapshot  `json:"account,omitempty"`
	Address   string            `json:"address,omitempty"`
	AddressID string            `json:"addressID,omitempty"`
	Message   string            `json:"message,omitempty"`
	Signature utils.HexString   `json:"signature,omitempty"`

	explicit bool
}

// Proof is what gets delivered to the verifier callback.
type Proof struct {
	Version   int    `json:"version"`
	Address   string `json:"address"`
	AddressID string `json:"addressID"`
	Message   string `json:"message"`
	Signature []byte `json:"signature"`
}

// SigningResult is reported by the signing device. RequestID and AccountCode identify the flow the
// result belongs to.
type SigningResult struct {
	RequestID   string
	AccountCode string
	OK          bool
	Message     string
	Signature   []byte
	Err         error
}

// SignRequest is handed to the signing device.
type SignRequest struct {
	RequestID string
	Coin      string
	Account   AccountSnapshot
	Address   string
	AddressID string
	Message   string
}

// Signature is what a signing device returns.
type Signature struct {
	Message   string
	Signature []byte
}

func inactiveState() FlowState {
	return FlowState{State: Inactive}
}

func errorState(code ErrorCode, request *Request) FlowState {
	s := FlowState{State: Error, ErrorCode: code}
	s.bind(request)
	return s
}

func (s *FlowState) bind(request *Request) {
	if request == nil {
		return
	}
	s.Request = request
	s.Callback = request.CallbackURL
	if host, err := HostOf(request.CallbackURL); err == nil {
		s.Host = host
	}
}

// Active reports whether a request is bound.
func (s FlowState) Active() bool {
	return s.State != Inactive && s.Request != nil
}

// Candidate returns the candidate with the given code.
func (s FlowState) Candidate(code string) (AccountSnapshot, bool) {
	for _, account := range s.Accounts {
		if account.Code == code {
			return account, true
		}
	}
	return AccountSnapshot{}, false
}

// clone copies the slices so that published states never share memory with the controller.
func (s FlowState) clone() FlowState {
	c := s
	if s.Accounts != nil {
		c.Accounts = append([]AccountSnapshot(nil), s.Accounts...)
	}
	if s.Account != nil {
		account := *s.Account
		c.Account = &account
	}
	if s.Signature != nil {
		c.Signature = append(utils.HexString(nil), s.Signature...)
	}
	return c
}
