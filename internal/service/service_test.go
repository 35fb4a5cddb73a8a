package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/abgdnv/gomarketplace/internal/cart"
	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/events"
	"github.com/abgdnv/gomarketplace/internal/storage"
	"github.com/abgdnv/gomarketplace/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// mockCartStore is a mock implementation of the CartStore interface
type mockCartStore struct {
	snap  cart.Snapshot
	error error
	ready chan struct{}
	calls []string
}

func (m *mockCartStore) Items() cart.Snapshot {
	return m.snap
}

func (m *mockCartStore) Add(_ context.Context, p cart.Product) (cart.Snapshot, error) {
	m.calls = append(m.calls, "add:"+p.ID)
	return m.snap, m.error
}

func (m *mockCartStore) Increment(_ context.Context, id string) (cart.Snapshot, error) {
	m.calls = append(m.calls, "inc:"+id)
	return m.snap, m.error
}

func (m *mockCartStore) Decrement(_ context.Context, id string) (cart.Snapshot, error) {
	m.calls = append(m.calls, "dec:"+id)
	return m.snap, m.error
}

func (m *mockCartStore) Sync(_ context.Context) (cart.Snapshot, error) {
	m.calls = append(m.calls, "sync")
	return m.snap, m.error
}

func (m *mockCartStore) Ready() <-chan struct{} {
	return m.ready
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	error  error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.error
}

func (p *recordingPublisher) published() []messaging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Event(nil), p.events...)
}

var shirt = cart.LineItem{ID: "1", Title: "Shirt", ImageURL: "http://img/1", Price: 10, Quantity: 2}

func Test_CartService_Mutations(t *testing.T) {
	errBoom := errors.New("boom")
	testCases := []struct {
		name          string
		mockStore     *mockCartStore
		call          func(s *Service) (*CartDto, error)
		expectedCalls []string
		expected      *CartDto
		expectError   error
	}{
		{
			name:      "Success - add",
			mockStore: &mockCartStore{snap: cart.Snapshot{Items: []cart.LineItem{shirt}, Revision: 3}},
			call: func(s *Service) (*CartDto, error) {
				return s.Add(context.Background(), ProductDto{ID: " 1 ", Title: "Shirt", Price: 10})
			},
			expectedCalls: []string{"add:1"},
			expected: &CartDto{
				Items:         []LineItemDto{{ID: "1", Title: "Shirt", ImageURL: "http://img/1", Price: 10, Quantity: 2, Subtotal: 20}},
				TotalQuantity: 2,
				TotalPrice:    20,
				Revision:      3,
			},
		},
		{
			name:      "Success - increment",
			mockStore: &mockCartStore{snap: cart.Snapshot{Revision: 1}},
			call: func(s *Service) (*CartDto, error) {
				return s.Increment(context.Background(), " 7 ")
			},
			expectedCalls: []string{"inc:7"},
			expected:      &CartDto{Items: []LineItemDto{}, Revision: 1},
		},
		{
			name:      "Success - decrement",
			mockStore: &mockCartStore{snap: cart.Snapshot{Revision: 2}},
			call: func(s *Service) (*CartDto, error) {
				return s.Decrement(context.Background(), "7\n")
			},
			expectedCalls: []string{"dec:7"},
			expected:      &CartDto{Items: []LineItemDto{}, Revision: 2},
		},
		{
			name:      "Success - sync",
			mockStore: &mockCartStore{snap: cart.Snapshot{Revision: 2}},
			call: func(s *Service) (*CartDto, error) {
				return s.Sync(context.Background())
			},
			expectedCalls: []string{"sync"},
			expected:      &CartDto{Items: []LineItemDto{}, Revision: 2},
		},
		{
			name:      "Error - empty id on add",
			mockStore: &mockCartStore{},
			call: func(s *Service) (*CartDto, error) {
				return s.Add(context.Background(), ProductDto{ID: "  ", Title: "Shirt"})
			},
			expectError: carterrors.ErrInvalidItemID,
		},
		{
			name:      "Error - empty id on increment",
			mockStore: &mockCartStore{},
			call: func(s *Service) (*CartDto, error) {
				return s.Increment(context.Background(), " ")
			},
			expectError: carterrors.ErrInvalidItemID,
		},
		{
			name:      "Error - empty id on decrement",
			mockStore: &mockCartStore{},
			call: func(s *Service) (*CartDto, error) {
				return s.Decrement(context.Background(), "")
			},
			expectError: carterrors.ErrInvalidItemID,
		},
		{
			name:      "Error - persistence failure",
			mockStore: &mockCartStore{error: fmt.Errorf("%w: %w", carterrors.ErrPersistence, errBoom)},
			call: func(s *Service) (*CartDto, error) {
				return s.Increment(context.Background(), "1")
			},
			expectedCalls: []string{"inc:1"},
			expectError:   carterrors.ErrPersistence,
		},
		{
			name:      "Error - store closed",
			mockStore: &mockCartStore{error: carterrors.ErrStoreClosed},
			call: func(s *Service) (*CartDto, error) {
				return s.Sync(context.Background())
			},
			expectedCalls: []string{"sync"},
			expectError:   carterrors.ErrStoreClosed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			publisher := &recordingPublisher{}
			service := NewService(tc.mockStore, publisher, slog.Default())
			// when
			got, err := tc.call(service)
			// then
			assert.Equal(t, tc.expectedCalls, tc.mockStore.calls)
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, got)
				assert.Empty(t, publisher.published(), "nothing is announced for failed mutations")
				return
			}
			require.NoError(t, err)
			tc.expected.Version = fmt.Sprintf("%s-%d", service.sessionID, tc.expected.Revision)
			assert.Equal(t, tc.expected, got)
			require.Len(t, publisher.published(), 1)
		})
	}
}

func Test_CartService_Get(t *testing.T) {
	// given
	mockStore := &mockCartStore{snap: cart.Snapshot{
		Items:    []cart.LineItem{shirt, {ID: "2", Title: "Hat", Price: 2.5, Quantity: 1}},
		Revision: 9,
	}}
	service := NewService(mockStore, messaging.NopPublisher{}, slog.Default())
	// when
	got, err := service.Get(context.Background())
	// then
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalQuantity)
	assert.InDelta(t, 22.5, got.TotalPrice, 1e-9)
	assert.Equal(t, uint64(9), got.Revision)
	require.Len(t, got.Items, 2)
	assert.InDelta(t, 2.5, got.Items[1].Subtotal, 1e-9)
	assert.Empty(t, mockStore.calls)
}

func Test_CartService_Ready(t *testing.T) {
	// given
	ready := make(chan struct{})
	service := NewService(&mockCartStore{ready: ready}, messaging.NopPublisher{}, slog.Default())
	// when / then
	assert.False(t, service.Ready())
	close(ready)
	assert.True(t, service.Ready())
}

func Test_CartService_PublishesCartUpdatedEvent(t *testing.T) {
	// given
	store := cart.NewStore(context.Background(), storage.NewMemory())
	t.Cleanup(func() { _ = store.Close() })
	<-store.Ready()
	publisher := &recordingPublisher{}
	service := NewService(store, publisher, slog.Default())

	// when
	_, err := service.Add(context.Background(), ProductDto{ID: "1", Title: "Shirt", Price: 10})
	require.NoError(t, err)
	_, err = service.Add(context.Background(), ProductDto{ID: "1", Title: "Shirt", Price: 10})
	require.NoError(t, err)
	_, err = service.Increment(context.Background(), "unknown")
	require.NoError(t, err)

	// then
	published := publisher.published()
	require.Len(t, published, 3)
	last, ok := published[2].(events.CartUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, events.CartsUpdatedSubject, last.Subject())
	assert.Equal(t, uint64(2), last.Revision)
	assert.Equal(t, 2, last.TotalQuantity)
	assert.InDelta(t, 20, last.TotalPrice, 1e-9)

	second := published[1].(events.CartUpdatedEvent)
	assert.Equal(t, second.MessageID(), last.MessageID(), "an unchanged cart has the same message id")
	first := published[0].(events.CartUpdatedEvent)
	assert.NotEqual(t, first.MessageID(), second.MessageID())

	payload, err := last.Payload()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, float64(2), decoded["revision"])
	assert.Len(t, decoded["items"], 1)
}

func Test_CartService_VersionChangesAcrossRestarts(t *testing.T) {
	// given
	ctx := context.Background()
	kv := storage.NewMemory()
	firstStore := cart.NewStore(ctx, kv)
	<-firstStore.Ready()
	first := NewService(firstStore, messaging.NopPublisher{}, slog.Default())
	empty, err := first.Get(ctx)
	require.NoError(t, err)
	_, err = first.Add(ctx, ProductDto{ID: "1", Title: "Shirt", Price: 10})
	require.NoError(t, err)
	require.NoError(t, firstStore.Close())

	// when
	secondStore := cart.NewStore(ctx, kv)
	t.Cleanup(func() { _ = secondStore.Close() })
	<-secondStore.Ready()
	second := NewService(secondStore, messaging.NopPublisher{}, slog.Default())
	restored, err := second.Get(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, empty.Revision, restored.Revision, "revisions restart with the process")
	assert.Len(t, restored.Items, 1)
	assert.NotEqual(t, empty.Version, restored.Version)
}

func Test_CartService_PublishFailureDoesNotFailMutation(t *testing.T) {
	// given
	publisher := &recordingPublisher{error: errors.New("broker down")}
	service := NewService(&mockCartStore{snap: cart.Snapshot{Revision: 1}}, publisher, slog.Default())
	// when
	got, err := service.Sync(context.Background())
	// then
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Revision)
}

func Test_CartService_Metrics(t *testing.T) {
	// given
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	mockStore := &mockCartStore{}
	service := NewService(mockStore, messaging.NopPublisher{}, slog.Default())

	// when
	_, _ = service.Increment(context.Background(), "1")
	_, _ = service.Increment(context.Background(), "1")
	mockStore.error = fmt.Errorf("%w: disk full", carterrors.ErrPersistence)
	_, _ = service.Decrement(context.Background(), "1")

	// then
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range data.DataPoints {
				key := m.Name
				if op, ok := dp.Attributes.Value("op"); ok {
					key += ":" + op.AsString()
				}
				sums[key] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), sums["cart_mutations:increment"])
	assert.Equal(t, int64(1), sums["cart_mutations:decrement"])
	assert.Equal(t, int64(1), sums["cart_persist_failures"])
}
