package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"caixa/internal/core"
	"caixa/internal/log"
	"caixa/internal/remote"
	"caixa/internal/store"
)

// Op names the remote operation a Result describes.
type Op string

const (
	OpFetch  Op = "fetch"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var (
	// ErrSuperseded marks a fetch whose answer arrived after a newer fetch of
	// the same kind was started. Its payload is dropped.
	ErrSuperseded = errors.New("fetch superseded by a newer request")
	// ErrClosed is returned for work started or completed after Close.
	ErrClosed = errors.New("sync service closed")
	// ErrMissingID is returned by Update and Delete when no id is given.
	ErrMissingID = errors.New("missing transaction id")
)

// Result is the outcome of one remote operation. Mutations carry the
// re-fetch that followed them in Resync.
type Result struct {
	Kind      core.Kind
	Op        Op
	RequestID uuid.UUID
	ID        core.ID
	// Count is the collection length written to the store by a fetch.
	Count int
	// Entry is what the server returned for create/update, when it returned anything.
	Entry    core.Transaction
	Resync   *Result
	Err      error
	Started  time.Time
	Duration time.Duration
}

// OK reports whether the operation itself succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Failure returns the error worth showing to a user: the operation's own
// error, or else the resync error. A superseded resync is not a failure since
// a newer fetch will deliver the data.
func (r Result) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.Resync != nil && r.Resync.Err != nil && !errors.Is(r.Resync.Err, ErrSuperseded) {
		return r.Resync.Err
	}
	return nil
}

type (
	// Notifier announces successful mutations to other instances.
	Notifier interface {
		PublishChange(ctx context.Context, kind core.Kind, op string, id core.ID) error
	}

	// Recorder keeps a history of results.
	Recorder interface {
		Record(ctx context.Context, r Result) error
	}
)

type task struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// SyncService moves collections between the remote API and the store. Every
// fetch is a cancellable task; a newer fetch of a kind cancels the older one
// and only the latest may write to the store.
type SyncService struct {
	api      remote.API
	store    *store.Store
	notifier Notifier
	recorder Recorder
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	latest   map[core.Kind]uuid.UUID
	inflight map[uuid.UUID]context.CancelFunc
	loaded   map[core.Kind]bool

	// commitMu orders the latest-check and the store write of fetches.
	commitMu sync.Mutex

	loopMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*SyncService)

func WithNotifier(n Notifier) Option {
	return func(s *SyncService) { s.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *SyncService) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *SyncService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentSync)
		}
	}
}

// NewSyncService wires api to st. Both are required.
func NewSyncService(api remote.API, st *store.Store, opts ...Option) *SyncService {
	s := &SyncService{
		api:      api,
		store:    st,
		logger:   log.Discard(),
		now:      time.Now,
		latest:   make(map[core.Kind]uuid.UUID),
		inflight: make(map[uuid.UUID]context.CancelFunc),
		loaded:   make(map[core.Kind]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Store returns the store this service writes to.
func (s *SyncService) Store() *store.Store {
	return s.store
}

// FetchAll lists kind and replaces the store's collection with the answer.
// On failure the store is left untouched.
func (s *SyncService) FetchAll(ctx context.Context, kind core.Kind) Result {
	res := s.begin(kind, OpFetch, "")
	if !kind.Valid() {
		return s.finish(ctx, res, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind))
	}

	taskCtx, err := s.startTask(ctx, res.RequestID, kind)
	if err != nil {
		return s.finish(ctx, res, err)
	}
	defer s.endTask(res.RequestID)

	list, err := s.api.List(taskCtx, kind)

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := s.checkLatest(kind, res.RequestID); err != nil {
		return s.finish(ctx, res, err)
	}
	if err != nil {
		return s.finish(ctx, res, err)
	}
	s.store.Replace(kind, list)
	s.markLoaded(kind)
	res.Count = len(list)
	return s.finish(ctx, res, nil)
}

// Create posts d and re-fetches kind. Nothing is inserted locally.
func (s *SyncService) Create(ctx context.Context, kind core.Kind, d core.Draft) Result {
	return s.mutate(ctx, kind, OpCreate, "", func(ctx context.Context) (core.Transaction, error) {
		return s.api.Create(ctx, kind, d)
	})
}

// Update replaces entry id with d and re-fetches kind.
func (s *SyncService) Update(ctx context.Context, kind core.Kind, id core.ID, d core.Draft) Result {
	return s.mutate(ctx, kind, OpUpdate, id, func(ctx context.Context) (core.Transaction, error) {
		return s.api.Update(ctx, kind, id, d)
	})
}

// Delete removes entry id and re-fetches kind.
func (s *SyncService) Delete(ctx context.Context, kind core.Kind, id core.ID) Result {
	return s.mutate(ctx, kind, OpDelete, id, func(ctx context.Context) (core.Transaction, error) {
		return core.Transaction{}, s.api.Delete(ctx, kind, id)
	})
}

// RefreshAll fetches both collections concurrently. Results are in
// core.Kinds() order; the error joins every failure.
func (s *SyncService) RefreshAll(ctx context.Context) ([]Result, error) {
	kinds := core.Kinds()
	results := make([]Result, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			results[i] = s.FetchAll(ctx, kind)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Kind, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Loaded reports whether both collections have been fetched at least once.
func (s *SyncService) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range core.Kinds() {
		if !s.loaded[k] {
			return false
		}
	}
	return true
}

// Close cancels every in-flight operation and stops the refresh loop. Late
// completions are dropped; later calls fail with ErrClosed.
func (s *SyncService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, cancel := range s.inflight {
		cancel()
		delete(s.inflight, id)
	}
	s.mu.Unlock()

	s.stopLoop()
	return nil
}

func (s *SyncService) mutate(ctx context.Context, kind core.Kind, op Op, id core.ID, call func(context.Context) (core.Transaction, error)) Result {
	res := s.begin(kind, op, id)
	if !kind.Valid() {
		return s.finish(ctx, res, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind))
	}
	if op != OpCreate && id.IsZero() {
		return s.finish(ctx, res, ErrMissingID)
	}

	taskCtx, err := s.startTask(ctx, res.RequestID, "")
	if err != nil {
		return s.finish(ctx, res, err)
	}
	entry, err := call(taskCtx)
	s.endTask(res.RequestID)
	if err == nil && s.isClosed() {
		err = ErrClosed
	}
	if err != nil {
		return s.finish(ctx, res, err)
	}

	res.Entry = entry
	if res.ID.IsZero() {
		res.ID = entry.ID
	}
	if op != OpDelete {
		s.events.LogTransactionSaved(ctx, string(op), kind.String(), res.ID.String(), entry.Tipo, entry.Valor.String(), entry.Data)
	}
	s.notify(ctx, kind, op, res.ID)

	resync := s.FetchAll(ctx, kind)
	res.Resync = &resync
	return s.finish(ctx, res, nil)
}

func (s *SyncService) begin(kind core.Kind, op Op, id core.ID) Result {
	return Result{
		Kind:      kind,
		Op:        op,
		RequestID: uuid.New(),
		ID:        id,
		Started:   s.now(),
	}
}

// finish stamps the duration, logs failures and hands the result to the recorder.
func (s *SyncService) finish(ctx context.Context, res Result, err error) Result {
	res.Err = err
	res.Duration = s.now().Sub(res.Started)

	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "Remote operation completed",
			log.NewFields().
				WithKind(res.Kind.String()).
				WithOperation(string(res.Op)).
				WithRequestID(res.RequestID.String()).
				WithCount(res.Count).
				WithDuration(res.Duration.Milliseconds()).
				ToSlice()...)
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrClosed):
		s.logger.DebugContext(ctx, "Remote operation dropped",
			log.NewFields().
				WithKind(res.Kind.String()).
				WithOperation(string(res.Op)).
				WithRequestID(res.RequestID.String()).
				WithError(err).
				ToSlice()...)
	default:
		fields := log.NewFields().
			WithKind(res.Kind.String()).
			WithRequestID(res.RequestID.String()).
			WithErrorType(remote.ErrorType(err)).
			WithDuration(res.Duration.Milliseconds())
		if !res.ID.IsZero() {
			fields[log.FieldTransactionID] = res.ID.String()
		}
		s.events.LogError(ctx, "Remote operation failed", err, log.ComponentSync, string(res.Op), fields)
	}

	if s.recorder != nil {
		if rerr := s.recorder.Record(context.WithoutCancel(ctx), res); rerr != nil {
			s.logger.WarnContext(ctx, "Failed to record sync result",
				log.FieldRequestID, res.RequestID.String(), log.FieldError, rerr)
		}
	}
	return res
}

// startTask registers a cancellable task. A non-empty kind makes it the
// latest fetch of that kind and cancels the previous one.
func (s *SyncService) startTask(ctx context.Context, id uuid.UUID, kind core.Kind) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	taskCtx, cancel := context.WithCancel(ctx)
	if kind != "" {
		if prev, ok := s.latest[kind]; ok {
			if prevCancel, ok := s.inflight[prev]; ok {
				prevCancel()
			}
		}
		s.latest[kind] = id
	}
	s.inflight[id] = cancel
	return taskCtx, nil
}

func (s *SyncService) endTask(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.inflight[id]; ok {
		cancel()
		delete(s.inflight, id)
	}
}

func (s *SyncService) checkLatest(kind core.Kind, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.latest[kind] != id {
		return ErrSuperseded
	}
	return nil
}

func (s *SyncService) markLoaded(kind core.Kind) {
	s.mu.Lock()
	s.loaded[kind] = true
	s.mu.Unlock()
}

func (s *SyncService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SyncService) notify(ctx context.Context, kind core.Kind, op Op, id core.ID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishChange(ctx, kind, string(op), id); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change",
			log.FieldKind, kind.String(), log.FieldOperation, string(op), log.FieldError, err)
	}
}
