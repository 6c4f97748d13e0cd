package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"premarket/storage"
)

// Manager provides typed access to the underlying key-value store. Writes are
// buffered in an overlay until Commit so that a failing operation can be
// rolled back without leaving partial state behind. Operations are expected
// to run one at a time; Transaction enforces that discipline.
type Manager struct {
	txMu sync.Mutex

	mu      sync.RWMutex
	db      storage.Database
	overlay map[string][]byte
}

var errNilDatabase = errors.New("state: database not configured")

// NewManager constructs a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
}

// KVGet decodes the value stored under key into out, reporting whether the
// key was present. Pending overlay writes shadow the backing store.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	m.mu.RLock()
	value, ok := m.overlay[string(key)]
	m.mu.RUnlock()
	if !ok {
		stored, err := m.db.Get(key)
		if err == storage.ErrNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		value = stored
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(value, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stages it in the overlay under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.overlay[string(key)] = encoded
	m.mu.Unlock()
	return nil
}

// Commit flushes every staged write to the backing store.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range m.overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Discard drops all staged writes.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.overlay = make(map[string][]byte)
	m.mu.Unlock()
}

// Transaction runs fn as a serialized atomic state transition: staged writes
// reach the store only when fn returns nil, otherwise every write is
// discarded. This is the execution model the engines assume.
func (m *Manager) Transaction(fn func() error) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	committed := false
	defer func() {
		// A panic inside fn must not leave staged writes behind for the
		// next transaction to flush.
		if !committed {
			m.Discard()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	if err := m.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
