package pairing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store keeps keycard pairings by instance UID in a JSON file.
type Store struct {
	path   string
	lock   sync.Mutex
	values map[string]*Info
}

func NewStore(storage string) (*Store, error) {
	p := &Store{path: storage, values: map[string]*Info{}}

	b, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		err = os.MkdirAll(filepath.Dir(p.path), 0750)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create pairings directory")
		}
		return p, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pairings")
	}

	err = json.Unmarshal(b, &p.values)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse pairings")
	}

	return p, nil
}

func (p *Store) save() error {
	b, err := json.Marshal(p.values)
	if err != nil {
		return err
	}

	return os.WriteFile(p.path, b, 0640)
}

func (p *Store) Store(instanceUID string, pairing *Info) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.values[instanceUID] = pairing
	return p.save()
}

func (p *Store) Get(instanceUID string) *Info {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.values[instanceUID]
}

func (p *Store) Delete(instanceUID string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.values, instanceUID)
	return p.save()
}
