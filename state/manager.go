package state

import (
	"bytes"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"samuraistake/storage"
)

// Manager provides typed access to the staking ledger state. Values are RLP
// encoded and keys are hashed with keccak256 before hitting the backing
// database so layout stays uniform regardless of the raw key shape.
type Manager struct {
	db      storage.Database
	overlay *overlay
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// overlay buffers writes during an atomic block. A nil value marks a delete.
type overlay struct {
	writes  map[string][]byte
	deletes map[string]struct{}
	order   []string
}

func (o *overlay) get(hashed []byte) ([]byte, bool) {
	k := string(hashed)
	if _, ok := o.deletes[k]; ok {
		return nil, true
	}
	if v, ok := o.writes[k]; ok {
		return v, true
	}
	return nil, false
}

func (m *Manager) rawGet(hashed []byte) ([]byte, error) {
	if m.overlay != nil {
		if v, ok := m.overlay.get(hashed); ok {
			return v, nil
		}
	}
	return m.db.Get(hashed)
}

func (m *Manager) rawPut(hashed, value []byte) error {
	if m.overlay != nil {
		k := string(hashed)
		if _, seen := m.overlay.writes[k]; !seen {
			if _, deleted := m.overlay.deletes[k]; !deleted {
				m.overlay.order = append(m.overlay.order, k)
			}
		}
		delete(m.overlay.deletes, k)
		m.overlay.writes[k] = append([]byte(nil), value...)
		return nil
	}
	return m.db.Put(hashed, value)
}

func (m *Manager) rawDelete(hashed []byte) error {
	if m.overlay != nil {
		k := string(hashed)
		if _, seen := m.overlay.deletes[k]; !seen {
			if _, written := m.overlay.writes[k]; !written {
				m.overlay.order = append(m.overlay.order, k)
			}
		}
		delete(m.overlay.writes, k)
		m.overlay.deletes[k] = struct{}{}
		return nil
	}
	return m.db.Delete(hashed)
}

// RunAtomic executes fn with an overlay that buffers every write issued
// through this manager. The buffered writes reach the database only when fn
// returns nil; any error discards them, leaving prior state untouched.
// Nested calls join the enclosing overlay.
func (m *Manager) RunAtomic(fn func() error) error {
	if m.overlay != nil {
		return fn()
	}
	m.overlay = &overlay{
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	err := fn()
	ov := m.overlay
	m.overlay = nil
	if err != nil {
		return err
	}
	for _, k := range ov.order {
		hashed := []byte(k)
		if _, ok := ov.deletes[k]; ok {
			if derr := m.db.Delete(hashed); derr != nil {
				return derr
			}
			continue
		}
		if perr := m.db.Put(hashed, ov.writes[k]); perr != nil {
			return perr
		}
	}
	return nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.rawDelete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep the
// index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.rawGet(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.rawPut(hashed, encoded)
}

// KVRemove deletes the provided value from the RLP-encoded byte slice list
// stored under the supplied key, preserving the order of the remaining
// entries. Removing a value that is not present is a no-op.
func (m *Manager) KVRemove(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.rawGet(hashed)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var list [][]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return err
	}
	filtered := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(list) {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.rawPut(hashed, encoded)
}

// KVGetList retrieves an RLP-encoded byte slice list stored under the
// provided key. A missing key yields an empty list.
func (m *Manager) KVGetList(key []byte) ([][]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(kvKey(key))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var list [][]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
