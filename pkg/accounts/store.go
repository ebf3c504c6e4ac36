package accounts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/pkg/aopp"
)

var (
	ErrUnknownAccount  = errors.New("unknown account")
	ErrInactiveAccount = errors.New("account is inactive")
	ErrNoUnusedAddress = errors.New("no unused address left")
)

var validate = validator.New()

// AddressEntry is one receive address of an account together with its keypath.
type AddressEntry struct {
	Address   string `json:"address" validate:"required"`
	AddressID string `json:"addressID" validate:"required"`
	Used      bool   `json:"used"`
}

type Account struct {
	Code      string         `json:"code" validate:"required"`
	Name      string         `json:"name"`
	CoinCode  string         `json:"coinCode" validate:"required"`
	Active    bool           `json:"active"`
	Addresses []AddressEntry `json:"addresses" validate:"dive"`
}

func (a Account) snapshot() aopp.AccountSnapshot {
	return aopp.AccountSnapshot{
		Code:     a.Code,
		Name:     a.Name,
		CoinCode: strings.ToLower(a.CoinCode),
		Active:   a.Active,
	}
}

// Store is the account inventory, persisted as a JSON file. Every change is published to the
// subscribers as a full snapshot list.
type Store struct {
	logger   *zap.Logger
	path     string
	lock     sync.RWMutex
	accounts []Account
	feed     event.Feed
}

// NewStore loads the inventory from path. An empty path keeps the inventory in memory only.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.L()
	}

	s := &Store{path: path, logger: logger.Named("accounts")}
	if path == "" {
		return s, nil
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err = os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, errors.Wrap(err, "failed to create accounts directory")
		}
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read accounts")
	}

	if err = json.Unmarshal(b, &s.accounts); err != nil {
		return nil, errors.Wrap(err, "failed to parse accounts")
	}
	for _, account := range s.accounts {
		if err = validate.Struct(account); err != nil {
			return nil, errors.Wrapf(err, "invalid account %q", account.Code)
		}
	}

	s.logger.Info("accounts loaded", zap.Int("count", len(s.accounts)), zap.String("path", path))
	return s, nil
}

// Accounts returns the current inventory in order.
func (s *Store) Accounts() []aopp.AccountSnapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.snapshots()
}

// List returns copies of the full accounts, addresses included.
func (s *Store) List() []Account {
	s.lock.RLock()
	defer s.lock.RUnlock()

	result := make([]Account, len(s.accounts))
	for i, account := range s.accounts {
		account.Addresses = append([]AddressEntry(nil), account.Addresses...)
		result[i] = account
	}
	return result
}

func (s *Store) snapshots() []aopp.AccountSnapshot {
	result := make([]aopp.AccountSnapshot, len(s.accounts))
	for i, account := range s.accounts {
		result[i] = account.snapshot()
	}
	return result
}

// Subscribe delivers the inventory after every change.
func (s *Store) Subscribe(ch chan<- []aopp.AccountSnapshot) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Store) Get(code string) (Account, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	i := s.indexOf(code)
	if i < 0 {
		return Account{}, false
	}
	account := s.accounts[i]
	account.Addresses = append([]AddressEntry(nil), account.Addresses...)
	return account, true
}

// Put adds an account at the end of the inventory or replaces the one with the same code.
func (s *Store) Put(account Account) error {
	if err := validate.Struct(account); err != nil {
		return errors.Wrap(err, "invalid account")
	}

	return s.update(func() error {
		account.Addresses = append([]AddressEntry(nil), account.Addresses...)
		if i := s.indexOf(account.Code); i >= 0 {
			s.accounts[i] = account
		} else {
			s.accounts = append(s.accounts, account)
		}
		return nil
	})
}

func (s *Store) SetActive(code string, active bool) error {
	return s.update(func() error {
		i := s.indexOf(code)
		if i < 0 {
			return ErrUnknownAccount
		}
		s.accounts[i].Active = active
		return nil
	})
}

func (s *Store) Remove(code string) error {
	return s.update(func() error {
		i := s.indexOf(code)
		if i < 0 {
			return ErrUnknownAccount
		}
		s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
		return nil
	})
}

// MarkUsed flags an address as used. Sync skips used addresses.
func (s *Store) MarkUsed(code, address string) error {
	return s.update(func() error {
		i := s.indexOf(code)
		if i < 0 {
			return ErrUnknownAccount
		}
		for j := range s.accounts[i].Addresses {
			if s.accounts[i].Addresses[j].Address == address {
				s.accounts[i].Addresses[j].Used = true
				return nil
			}
		}
		return errors.Errorf("address %s not found in account %s", address, code)
	})
}

// Sync returns the first unused receive address of the account.
func (s *Store) Sync(ctx context.Context, code string) (aopp.Address, error) {
	if err := ctx.Err(); err != nil {
		return aopp.Address{}, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	i := s.indexOf(code)
	if i < 0 {
		return aopp.Address{}, errors.Wrap(ErrUnknownAccount, code)
	}

	account := s.accounts[i]
	if !account.Active {
		return aopp.Address{}, errors.Wrap(ErrInactiveAccount, code)
	}

	for _, entry := range account.Addresses {
		if !entry.Used {
			s.logger.Debug("account synced", zap.String("account", code), zap.String("address", entry.Address))
			return aopp.Address{Address: entry.Address, AddressID: entry.AddressID}, nil
		}
	}

	return aopp.Address{}, errors.Wrap(ErrNoUnusedAddress, code)
}

func (s *Store) update(apply func() error) error {
	s.lock.Lock()
	if err := apply(); err != nil {
		s.lock.Unlock()
		return err
	}
	err := s.save()
	snapshot := s.snapshots()
	s.lock.Unlock()

	if err != nil {
		return err
	}

	s.feed.Send(snapshot)
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	b, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return err
	}

	return errors.Wrap(os.WriteFile(s.path, b, 0640), "failed to write accounts")
}

func (s *Store) indexOf(code string) int {
	for i, account := range s.accounts {
		if account.Code == code {
			return i
		}
	}
	return -1
}
