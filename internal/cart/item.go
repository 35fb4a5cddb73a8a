// Package cart holds the shopping cart: its line items, the mutations applied to them and the
// Store that owns the collection and mirrors it to key-value storage.
package cart

import "slices"

// Product describes an item that can be put into the cart.
type Product struct {
	ID       string
	Title    string
	ImageURL string
	Price    float64
}

// LineItem is one product in the cart. Quantity is at least 1 while the item is in the cart.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Snapshot is an immutable view of the cart. Revision grows by one with every mutation
// that changed the collection.
type Snapshot struct {
	Items    []LineItem
	Revision uint64
}

func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

func (s Snapshot) TotalPrice() float64 {
	var total float64
	for _, item := range s.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Find returns the line item with the given id.
func (s Snapshot) Find(id string) (LineItem, bool) {
	if i := indexOf(s.Items, id); i >= 0 {
		return s.Items[i], true
	}
	return LineItem{}, false
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Items: slices.Clone(s.Items), Revision: s.Revision}
}

// The mutation functions below never modify their input; they return a new slice
// and whether the collection changed. Items keep their positions.

func addItem(items []LineItem, p Product) ([]LineItem, bool) {
	if indexOf(items, p.ID) >= 0 {
		return incrementItem(items, p.ID)
	}
	out := make([]LineItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, LineItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: 1,
	}), true
}

func incrementItem(items []LineItem, id string) ([]LineItem, bool) {
	i := indexOf(items, id)
	if i < 0 {
		return items, false
	}
	out := slices.Clone(items)
	out[i].Quantity++
	return out, true
}

func decrementItem(items []LineItem, id string) ([]LineItem, bool) {
	i := indexOf(items, id)
	if i < 0 {
		return items, false
	}
	out := slices.Clone(items)
	if out[i].Quantity > 1 {
		out[i].Quantity--
		return out, true
	}
	return slices.Delete(out, i, i+1), true
}

func indexOf(items []LineItem, id string) int {
	return slices.IndexFunc(items, func(item LineItem) bool { return item.ID == id })
}
