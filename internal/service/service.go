// Package service provides the cart use cases on top of the cart store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abgdnv/gomarketplace/internal/cart"
	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/events"
	"github.com/abgdnv/gomarketplace/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// CartService defines the operations available on the cart.
type CartService interface {
	// Get returns the current cart.
	Get(ctx context.Context) (*CartDto, error)

	// Add puts a product in the cart, or increments its quantity when it is already there.
	// Returns ErrPersistence if the cart could not be saved.
	Add(ctx context.Context, product ProductDto) (*CartDto, error)

	// Increment raises the quantity of an item. Unknown ids leave the cart unchanged.
	// Returns ErrPersistence if the cart could not be saved.
	Increment(ctx context.Context, id string) (*CartDto, error)

	// Decrement lowers the quantity of an item, removing it at zero. Unknown ids leave the cart unchanged.
	// Returns ErrPersistence if the cart could not be saved.
	Decrement(ctx context.Context, id string) (*CartDto, error)

	// Sync saves the current cart again, e.g. after a persistence failure.
	Sync(ctx context.Context) (*CartDto, error)

	// Ready reports whether the cart has been loaded from storage.
	Ready() bool
}

// CartStore is the part of cart.Store the service depends on.
type CartStore interface {
	Items() cart.Snapshot
	Add(ctx context.Context, p cart.Product) (cart.Snapshot, error)
	Increment(ctx context.Context, id string) (cart.Snapshot, error)
	Decrement(ctx context.Context, id string) (cart.Snapshot, error)
	Sync(ctx context.Context) (cart.Snapshot, error)
	Ready() <-chan struct{}
}

// Service implements CartService.
type Service struct {
	store           CartStore
	publisher       messaging.Publisher
	sessionID       string
	logger          *slog.Logger
	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
}

// NewService creates a new instance of CartService over the given store.
func NewService(store CartStore, publisher messaging.Publisher, logger *slog.Logger) *Service {
	meter := otel.Meter("cart-service")
	mutations, err := meter.Int64Counter("cart_mutations", metric.WithDescription("Total number of applied cart mutations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_mutations counter: %v", err))
	}
	persistFailures, err := meter.Int64Counter("cart_persist_failures", metric.WithDescription("Total number of cart writes that failed after retries"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_persist_failures counter: %v", err))
	}
	return &Service{
		store:           store,
		publisher:       publisher,
		sessionID:       uuid.NewString(),
		logger:          logger.With("component", "service"),
		mutations:       mutations,
		persistFailures: persistFailures,
	}
}

// ProductDto is the product a client puts into the cart.
type ProductDto struct {
	ID       string  `json:"id" validate:"required,max=64"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

// LineItemDto represents one cart line.
type LineItemDto struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}

// CartDto represents the cart. Revision changes whenever the items change.
// Version combines the service session with the revision and is unique across restarts.
type CartDto struct {
	Items         []LineItemDto `json:"items"`
	TotalQuantity int           `json:"total_quantity"`
	TotalPrice    float64       `json:"total_price"`
	Revision      uint64        `json:"revision"`
	Version       string        `json:"version"`
}

func (s *Service) Get(_ context.Context) (*CartDto, error) {
	return s.toDto(s.store.Items()), nil
}

func (s *Service) Add(ctx context.Context, product ProductDto) (*CartDto, error) {
	p := cart.Product{
		ID:       cart.NormalizeID(product.ID),
		Title:    product.Title,
		ImageURL: product.ImageURL,
		Price:    product.Price,
	}
	if p.ID == "" {
		return nil, carterrors.ErrInvalidItemID
	}
	return s.mutate(ctx, "add", func() (cart.Snapshot, error) {
		return s.store.Add(ctx, p)
	})
}

func (s *Service) Increment(ctx context.Context, id string) (*CartDto, error) {
	id = cart.NormalizeID(id)
	if id == "" {
		return nil, carterrors.ErrInvalidItemID
	}
	return s.mutate(ctx, "increment", func() (cart.Snapshot, error) {
		return s.store.Increment(ctx, id)
	})
}

func (s *Service) Decrement(ctx context.Context, id string) (*CartDto, error) {
	id = cart.NormalizeID(id)
	if id == "" {
		return nil, carterrors.ErrInvalidItemID
	}
	return s.mutate(ctx, "decrement", func() (cart.Snapshot, error) {
		return s.store.Decrement(ctx, id)
	})
}

func (s *Service) Sync(ctx context.Context) (*CartDto, error) {
	return s.mutate(ctx, "sync", func() (cart.Snapshot, error) {
		return s.store.Sync(ctx)
	})
}

func (s *Service) Ready() bool {
	select {
	case <-s.store.Ready():
		return true
	default:
		return false
	}
}

// mutate runs op against the store, records metrics and announces the resulting cart.
func (s *Service) mutate(ctx context.Context, op string, fn func() (cart.Snapshot, error)) (*CartDto, error) {
	snap, err := fn()
	if err != nil {
		if errors.Is(err, carterrors.ErrPersistence) {
			s.persistFailures.Add(ctx, 1)
			// the mutation itself was applied
			s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		}
		return nil, fmt.Errorf("failed to %s cart: %w", op, err)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))

	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.NewCartUpdatedEvent(s.sessionID, snap, carrier)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CartUpdatedEvent", "revision", snap.Revision, "error", err)
	}
	return s.toDto(snap), nil
}

// toDto converts a cart snapshot to a CartDto.
func (s *Service) toDto(snap cart.Snapshot) *CartDto {
	items := make([]LineItemDto, 0, len(snap.Items))
	for _, item := range snap.Items {
		items = append(items, LineItemDto{
			ID:       item.ID,
			Title:    item.Title,
			ImageURL: item.ImageURL,
			Price:    item.Price,
			Quantity: item.Quantity,
			Subtotal: item.Price * float64(item.Quantity),
		})
	}
	return &CartDto{
		Items:         items,
		TotalQuantity: snap.TotalQuantity(),
		TotalPrice:    snap.TotalPrice(),
		Revision:      snap.Revision,
		Version:       fmt.Sprintf("%s-%d", s.sessionID, snap.Revision),
	}
}
