// Package inventory models the bounded item collection a player carries.
package inventory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
)

// DefaultCapacity is the item limit given to new players.
const DefaultCapacity = 10

// ItemType classifies an item.
type ItemType string

const (
	ItemTypeQuest    ItemType = "quest"
	ItemTypeTool     ItemType = "tool"
	ItemTypeTreasure ItemType = "treasure"
)

// ParseItemType maps a persisted label to an item type, defaulting to treasure.
func ParseItemType(value string) ItemType {
	switch ItemType(strings.ToLower(strings.TrimSpace(value))) {
	case ItemTypeQuest:
		return ItemTypeQuest
	case ItemTypeTool:
		return ItemTypeTool
	default:
		return ItemTypeTreasure
	}
}

// Consumable reports whether using the item removes it.
func (t ItemType) Consumable() bool {
	return t != ItemTypeQuest
}

// Item is one object in an inventory.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        ItemType  `json:"type"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

// Status summarizes inventory fill level.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusHasItem Status = "has-item"
	StatusFull    Status = "full"
)

// Inventory is an ordered item list bounded by Capacity.
type Inventory struct {
	Items    []Item `json:"items"`
	Capacity int    `json:"capacity"`
}

// New returns an empty inventory. Non-positive capacity uses DefaultCapacity.
func New(capacity int) Inventory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Inventory{Items: []Item{}, Capacity: capacity}
}

// Status derives the fill level. An overflowed inventory reports full.
func (inv Inventory) Status() Status {
	switch {
	case len(inv.Items) == 0:
		return StatusEmpty
	case len(inv.Items) >= inv.Capacity:
		return StatusFull
	default:
		return StatusHasItem
	}
}

// Free returns the number of slots left, never negative.
func (inv Inventory) Free() int {
	return max(inv.Capacity-len(inv.Items), 0)
}

// Clone copies the item slice.
func (inv Inventory) Clone() Inventory {
	out := inv
	out.Items = slices.Clone(inv.Items)
	if out.Items == nil {
		out.Items = []Item{}
	}
	return out
}

// Find looks up an item by id.
func (inv Inventory) Find(itemID string) (Item, bool) {
	idx := slices.IndexFunc(inv.Items, func(item Item) bool { return item.ID == itemID })
	if idx < 0 {
		return Item{}, false
	}
	return inv.Items[idx], true
}

// Add appends items, rejecting the whole batch if it would exceed capacity.
func (inv Inventory) Add(items ...Item) (Inventory, error) {
	if len(inv.Items)+len(items) > inv.Capacity {
		return Inventory{}, apperrors.WithMetadata(
			apperrors.CodeInventoryFull,
			fmt.Sprintf("inventory holds %d of %d, cannot add %d", len(inv.Items), inv.Capacity, len(items)),
			map[string]string{"Capacity": fmt.Sprint(inv.Capacity), "Count": fmt.Sprint(len(inv.Items))},
		)
	}
	return inv.AddOverflow(items...), nil
}

// AddOverflow appends items regardless of capacity.
func (inv Inventory) AddOverflow(items ...Item) Inventory {
	out := inv.Clone()
	out.Items = append(out.Items, items...)
	return out
}

// Remove drops the item with itemID.
func (inv Inventory) Remove(itemID string) (Inventory, Item, error) {
	item, ok := inv.Find(itemID)
	if !ok {
		return Inventory{}, Item{}, apperrors.WithMetadata(
			apperrors.CodeItemNotFound,
			fmt.Sprintf("item %s not in inventory", itemID),
			map[string]string{"ItemID": itemID},
		)
	}
	out := inv.Clone()
	out.Items = slices.DeleteFunc(out.Items, func(candidate Item) bool { return candidate.ID == itemID })
	return out, item, nil
}

// SortItems orders items by acquisition time, then id.
func SortItems(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		if c := a.AcquiredAt.Compare(b.AcquiredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
