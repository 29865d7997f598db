// Package memory is an in-process stand-in for the transactions API. It
// backs the local stub server and the tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"caixa/internal/core"
	"caixa/internal/remote"
)

type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[core.Kind][]core.Transaction
}

var _ remote.API = (*Store)(nil)

// New returns a store seeded with the given collections. Seed entries keep
// their ids; new ids continue after the largest numeric one.
func New(expenses, profits []core.Transaction) *Store {
	s := &Store{
		nextID: 1,
		items: map[core.Kind][]core.Transaction{
			core.Expenses: append([]core.Transaction{}, expenses...),
			core.Profits:  append([]core.Transaction{}, profits...),
		},
	}
	for _, list := range s.items {
		for _, t := range list {
			if n, err := strconv.ParseInt(t.ID.String(), 10, 64); err == nil && n >= s.nextID {
				s.nextID = n + 1
			}
		}
	}
	return s
}

// NewFromFiles seeds from base/seed_gastos.json and base/seed_lucros.json.
// Each file holds either {"gastos": [...]} or a bare array. Missing files
// yield empty collections.
func NewFromFiles(base string) (*Store, error) {
	expenses, err := readSeed(filepath.Join(base, "seed_gastos.json"), core.Expenses)
	if err != nil {
		return nil, err
	}
	profits, err := readSeed(filepath.Join(base, "seed_lucros.json"), core.Profits)
	if err != nil {
		return nil, err
	}
	return New(expenses, profits), nil
}

func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", remote.ErrTransport, err)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction{}, s.items[kind]...), nil
}

// Create appends the draft and assigns the next id. Like the real API it
// does not validate the draft.
func (s *Store) Create(ctx context.Context, kind core.Kind, d core.Draft) (core.Transaction, error) {
	if err := s.check(ctx, kind); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := core.Transaction{
		ID:    core.ID(strconv.FormatInt(s.nextID, 10)),
		Tipo:  d.Tipo,
		Valor: d.Valor,
		Data:  d.Data,
	}
	s.nextID++
	s.items[kind] = append(s.items[kind], t)
	return t, nil
}

func (s *Store) Update(ctx context.Context, kind core.Kind, id core.ID, d core.Draft) (core.Transaction, error) {
	if err := s.check(ctx, kind); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[kind]
	for i := range list {
		if list[i].ID == id {
			list[i] = core.Transaction{ID: id, Tipo: d.Tipo, Valor: d.Valor, Data: d.Data}
			return list[i], nil
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: %s/%s", remote.ErrNotFound, kind, id)
}

func (s *Store) Delete(ctx context.Context, kind core.Kind, id core.ID) error {
	if err := s.check(ctx, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[kind]
	for i := range list {
		if list[i].ID == id {
			s.items[kind] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", remote.ErrNotFound, kind, id)
}

// Len returns the number of entries of kind.
func (s *Store) Len(kind core.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[kind])
}

func (s *Store) check(ctx context.Context, kind core.Kind) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", remote.ErrTransport, err)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	return nil
}

func readSeed(path string, kind core.Kind) ([]core.Transaction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}

	var list []core.Transaction
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var envelope map[core.Kind][]core.Transaction
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return envelope[kind], nil
}
