// Package events defines the messages the cart service publishes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abgdnv/gomarketplace/internal/cart"
)

const CartsUpdatedSubject = "carts.updated"

// CartUpdatedEvent carries the full cart after a mutation was applied and persisted.
type CartUpdatedEvent struct {
	Carrier       map[string]string `json:"carrier,omitempty"`
	SessionID     string            `json:"session_id"`
	Revision      uint64            `json:"revision"`
	Items         []cart.LineItem   `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	TotalPrice    float64           `json:"total_price"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func NewCartUpdatedEvent(sessionID string, snap cart.Snapshot, carrier map[string]string) CartUpdatedEvent {
	items := snap.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return CartUpdatedEvent{
		Carrier:       carrier,
		SessionID:     sessionID,
		Revision:      snap.Revision,
		Items:         items,
		TotalQuantity: snap.TotalQuantity(),
		TotalPrice:    snap.TotalPrice(),
		UpdatedAt:     time.Now().UTC(),
	}
}

func (e CartUpdatedEvent) Subject() string {
	return CartsUpdatedSubject
}

func (e CartUpdatedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// MessageID is unique per session and revision, so re-publishing an unchanged cart is deduplicated.
func (e CartUpdatedEvent) MessageID() string {
	return fmt.Sprintf("%s-%d", e.SessionID, e.Revision)
}
