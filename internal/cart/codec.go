package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
)

// Encode serializes the collection as a JSON array of line items.
func Encode(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	return json.Marshal(items)
}

// Decode parses a value written by Encode. An empty value or JSON null is an empty cart.
// Documents with duplicate ids, empty ids or quantities below 1 are rejected with ErrDecode.
func Decode(data []byte) ([]LineItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []LineItem{}, nil
	}
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", carterrors.ErrDecode, err)
	}
	if items == nil {
		return []LineItem{}, nil
	}
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", carterrors.ErrDecode, i)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %s has quantity %d", carterrors.ErrDecode, item.ID, item.Quantity)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item %s", carterrors.ErrDecode, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return items, nil
}
