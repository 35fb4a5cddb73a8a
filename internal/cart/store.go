package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/storage"
)

// DefaultKey is the storage key the cart is persisted under.
const DefaultKey = "@GoMarketplace:products"

const defaultQueueSize = 64

// Store owns the cart collection. All mutations are applied by a single writer goroutine
// which persists the full collection after each one, so storage always receives the
// collections in the order they were applied. Reads never wait for the writer.
type Store struct {
	kv      storage.Store
	key     string
	timeout time.Duration
	logger  *slog.Logger

	cmds      chan command
	ready     chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	current atomic.Pointer[Snapshot]
	dirty   atomic.Bool
}

type Option func(*Store)

// WithKey sets the storage key. Defaults to DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTimeout bounds every storage call made by the store.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithQueueSize sets how many mutations may wait for the writer before callers block.
func WithQueueSize(n int) Option {
	return func(s *Store) { s.cmds = make(chan command, n) }
}

type mutation func([]LineItem) ([]LineItem, bool)

type command struct {
	ctx    context.Context
	mutate mutation // nil re-persists the current collection
	reply  chan result
}

type result struct {
	snap Snapshot
	err  error
}

// NewStore creates the store and starts its writer. The writer first loads the cart from kv
// exactly once, bounded by ctx; a missing key, a failed read or an undecodable value
// leaves the cart empty. Mutations submitted before the load completes are applied after it.
func NewStore(ctx context.Context, kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		key:     DefaultKey,
		logger:  slog.Default(),
		cmds:    make(chan command, defaultQueueSize),
		ready:   make(chan struct{}),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "cart", "key", s.key)
	s.current.Store(&Snapshot{Items: []LineItem{}})

	go s.run(ctx)
	return s
}

// Add puts the product in the cart with quantity 1, or increments it if it is already there.
// The id is trimmed; a blank id fails with ErrInvalidItemID and nothing is queued.
func (s *Store) Add(ctx context.Context, p Product) (Snapshot, error) {
	p.ID = NormalizeID(p.ID)
	if p.ID == "" {
		return s.Items(), carterrors.ErrInvalidItemID
	}
	return s.submit(ctx, func(items []LineItem) ([]LineItem, bool) {
		return addItem(items, p)
	})
}

// Increment raises the quantity of the item by one. Unknown ids leave the cart unchanged.
func (s *Store) Increment(ctx context.Context, id string) (Snapshot, error) {
	id = NormalizeID(id)
	return s.submit(ctx, func(items []LineItem) ([]LineItem, bool) {
		return incrementItem(items, id)
	})
}

// Decrement lowers the quantity of the item by one and removes it when the quantity would reach zero.
// Unknown ids leave the cart unchanged.
func (s *Store) Decrement(ctx context.Context, id string) (Snapshot, error) {
	id = NormalizeID(id)
	return s.submit(ctx, func(items []LineItem) ([]LineItem, bool) {
		return decrementItem(items, id)
	})
}

// NormalizeID strips the surrounding whitespace from a product id.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Sync writes the current collection to storage again.
func (s *Store) Sync(ctx context.Context) (Snapshot, error) {
	return s.submit(ctx, nil)
}

// Items returns the collection as last applied by the writer.
func (s *Store) Items() Snapshot {
	return s.current.Load().clone()
}

// Ready is closed once the initial load has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Dirty reports whether the last write to storage failed.
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

// Close stops the writer after it has applied the mutations already queued.
// Later mutations fail with ErrStoreClosed. The storage itself is not closed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done
	return nil
}

// submit hands the mutation to the writer and waits for its result.
// Mutations already taken by the writer complete even if ctx is cancelled.
func (s *Store) submit(ctx context.Context, m mutation) (Snapshot, error) {
	select {
	case <-s.closing:
		return s.Items(), carterrors.ErrStoreClosed
	default:
	}

	cmd := command{ctx: ctx, mutate: m, reply: make(chan result, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.closing:
		return s.Items(), carterrors.ErrStoreClosed
	case <-ctx.Done():
		return s.Items(), ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.snap, res.err
	case <-s.done:
		select {
		case res := <-cmd.reply:
			return res.snap, res.err
		default:
			return s.Items(), carterrors.ErrStoreClosed
		}
	case <-ctx.Done():
		return s.Items(), ctx.Err()
	}
}

func (s *Store) run(ctx context.Context) {
	defer close(s.done)

	s.load(ctx)
	close(s.ready)

	for {
		select {
		case cmd := <-s.cmds:
			cmd.reply <- s.apply(cmd)
		case <-s.closing:
			for {
				select {
				case cmd := <-s.cmds:
					cmd.reply <- s.apply(cmd)
				default:
					s.logger.Debug("Cart writer stopped", "revision", s.current.Load().Revision)
					return
				}
			}
		}
	}
}

func (s *Store) load(ctx context.Context) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.kv.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.DebugContext(ctx, "No persisted cart, starting empty")
		return
	case err != nil:
		s.logger.WarnContext(ctx, "Failed to load persisted cart, starting empty", "error", err)
		return
	}

	items, err := Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted cart is not readable, starting empty", "error", err)
		return
	}
	s.current.Store(&Snapshot{Items: items})
	s.logger.InfoContext(ctx, "Cart restored", "items", len(items))
}

// apply runs on the writer goroutine only.
func (s *Store) apply(cmd command) result {
	prev := s.current.Load()
	next := prev
	if cmd.mutate != nil {
		if items, changed := cmd.mutate(prev.Items); changed {
			next = &Snapshot{Items: items, Revision: prev.Revision + 1}
			s.current.Store(next)
		}
	}
	err := s.persist(cmd.ctx, next)
	return result{snap: next.clone(), err: err}
}

func (s *Store) persist(ctx context.Context, snap *Snapshot) error {
	// the caller may be gone; the write still has to happen
	ctx, cancel := s.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	data, err := Encode(snap.Items)
	if err == nil {
		err = s.kv.Set(ctx, s.key, data)
	}
	if err != nil {
		s.dirty.Store(true)
		s.logger.ErrorContext(ctx, "Failed to persist cart", "revision", snap.Revision, "error", err)
		return fmt.Errorf("%w: %w", carterrors.ErrPersistence, err)
	}
	if s.dirty.Swap(false) {
		s.logger.InfoContext(ctx, "Cart persisted after earlier failure", "revision", snap.Revision)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
