package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryStore is an in-process Store. Updates are serialized and applied to
// a staged overlay that is merged only when the update succeeds.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
}

func NewMemoryStore(accounts ...*Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[solana.PublicKey]*Account, len(accounts))}
	for _, acc := range accounts {
		s.accounts[acc.Address] = acc.Clone()
	}
	return s
}

func (s *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{base: s.accounts})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{base: s.accounts, staged: make(map[solana.PublicKey]*Account)}
	if err := fn(tx); err != nil {
		return err
	}
	for addr, acc := range tx.staged {
		if acc == nil {
			delete(s.accounts, addr)
			continue
		}
		s.accounts[addr] = acc
	}
	return nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type memoryTx struct {
	base map[solana.PublicKey]*Account
	// staged holds pending writes; a nil value marks a deletion.
	staged map[solana.PublicKey]*Account
}

func (t *memoryTx) lookup(addr solana.PublicKey) *Account {
	if acc, ok := t.staged[addr]; ok {
		return acc
	}
	return t.base[addr]
}

func (t *memoryTx) Get(_ context.Context, addr solana.PublicKey) (*Account, error) {
	acc := t.lookup(addr)
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (t *memoryTx) ListByOwner(_ context.Context, owner solana.PublicKey) ([]*Account, error) {
	seen := make(map[solana.PublicKey]struct{})
	var out []*Account
	for addr, acc := range t.staged {
		seen[addr] = struct{}{}
		if acc != nil && acc.Owner == owner {
			out = append(out, acc.Clone())
		}
	}
	for addr, acc := range t.base {
		if _, ok := seen[addr]; ok {
			continue
		}
		if acc.Owner == owner {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (t *memoryTx) Create(_ context.Context, acc *Account) error {
	if existing := t.lookup(acc.Address); existing != nil && existing.IsInitialized() {
		return ErrAccountAlreadyExists
	}
	t.staged[acc.Address] = acc.Clone()
	return nil
}

func (t *memoryTx) Put(_ context.Context, acc *Account) error {
	if acc.IsEmpty() {
		t.staged[acc.Address] = nil
		return nil
	}
	t.staged[acc.Address] = acc.Clone()
	return nil
}

func (t *memoryTx) Delete(_ context.Context, addr solana.PublicKey) error {
	if t.lookup(addr) == nil {
		return ErrAccountNotFound
	}
	t.staged[addr] = nil
	return nil
}
