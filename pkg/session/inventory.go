package session

import (
	"strings"

	"github.com/google/uuid"
)

type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// ItemChange is a quantity delta reported by the model, keyed by item name.
type ItemChange struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

type InventoryFeature struct {
	Enabled bool   `json:"isEnabled"`
	Items   []Item `json:"items"`
}

// Apply adds the deltas to the matching items. Unknown names with a positive delta create
// an item; items that drop to zero or below are removed.
func (inv *InventoryFeature) Apply(changes []ItemChange) {
	if inv == nil || !inv.Enabled {
		return
	}
	for _, c := range changes {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Delta == 0 {
			continue
		}
		idx := -1
		for i := range inv.Items {
			if strings.EqualFold(inv.Items[i].Name, name) {
				idx = i
				break
			}
		}
		if idx == -1 {
			if c.Delta > 0 {
				inv.Items = append(inv.Items, Item{ID: uuid.NewString(), Name: name, Quantity: c.Delta})
			}
			continue
		}
		inv.Items[idx].Quantity += c.Delta
		if inv.Items[idx].Quantity <= 0 {
			inv.Items = append(inv.Items[:idx], inv.Items[idx+1:]...)
		}
	}
}
