package memory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/phrazzld/metis/internal/domain"
	"github.com/phrazzld/metis/internal/store"
)

func encodeItem(item *domain.MemoryItem) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode memory item %s: %w", item.ID, err)
	}
	return data, nil
}

func decodeItem(rec store.Record) (*domain.MemoryItem, error) {
	var item domain.MemoryItem
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode memory item: %w", err)
	}
	if item.ID == "" {
		item.ID = rec.ID
	}
	item.Normalize()
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &item, nil
}

// sortByUrgency orders items by days until review, then by id.
func sortByUrgency(items []*domain.MemoryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Schedule.DaysUntilReview, items[j].Schedule.DaysUntilReview
		if a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})
}
