// Package store holds the current gastos and lucros collections shared by
// every screen. Collections are only ever replaced whole.
package store

import (
	"sort"
	"sync"

	"caixa/internal/core"
)

// Snapshot is a consistent view of both collections. Versions start at zero
// and grow by one on every replace of that kind.
type Snapshot struct {
	Expenses        []core.Transaction
	Profits         []core.Transaction
	ExpensesVersion uint64
	ProfitsVersion  uint64
}

// Listener is called after a collection has been replaced. kind is the
// collection that changed; snap already contains the new data.
type Listener func(kind core.Kind, snap Snapshot)

type Store struct {
	// writeMu serializes replace+notify so listeners see replaces in order.
	writeMu sync.Mutex

	mu       sync.RWMutex
	expenses []core.Transaction
	profits  []core.Transaction
	versions map[core.Kind]uint64

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

func New() *Store {
	return &Store{
		versions:  make(map[core.Kind]uint64),
		listeners: make(map[int]Listener),
	}
}

func (s *Store) Expenses() []core.Transaction {
	return s.Get(core.Expenses)
}

func (s *Store) Profits() []core.Transaction {
	return s.Get(core.Profits)
}

// Get returns a copy of the collection for kind; unknown kinds yield nil.
func (s *Store) Get(kind core.Kind) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case core.Expenses:
		return clone(s.expenses)
	case core.Profits:
		return clone(s.profits)
	default:
		return nil
	}
}

func (s *Store) Version(kind core.Kind) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[kind]
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) ReplaceExpenses(txs []core.Transaction) {
	s.Replace(core.Expenses, txs)
}

func (s *Store) ReplaceProfits(txs []core.Transaction) {
	s.Replace(core.Profits, txs)
}

// Replace swaps the whole collection for kind and notifies every listener
// before returning. Listeners must not call Replace themselves.
func (s *Store) Replace(kind core.Kind, txs []core.Transaction) {
	if !kind.Valid() {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := clone(txs)
	if next == nil {
		next = []core.Transaction{}
	}

	s.mu.Lock()
	if kind == core.Expenses {
		s.expenses = next
	} else {
		s.profits = next
	}
	s.versions[kind]++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, l := range s.currentListeners() {
		l(kind, snap)
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) currentListeners() []Listener {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Expenses:        clone(s.expenses),
		Profits:         clone(s.profits),
		ExpensesVersion: s.versions[core.Expenses],
		ProfitsVersion:  s.versions[core.Profits],
	}
}

func clone(txs []core.Transaction) []core.Transaction {
	if txs == nil {
		return nil
	}
	return append([]core.Transaction(nil), txs...)
}
