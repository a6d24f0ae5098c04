package model

import (
	"strings"
	"time"
)

// ItemStatus is the availability state of a posted item.
type ItemStatus string

// Item statuses.
const (
	ItemStatusAvailable ItemStatus = "Available"
	ItemStatusClaimed   ItemStatus = "Claimed"
	ItemStatusRemoved   ItemStatus = "Removed"
)

// itemStatusNoLongerAvailable is the label older clients send for ItemStatusRemoved.
const itemStatusNoLongerAvailable = "No longer available"

// ParseItemStatus maps a client-supplied status to an ItemStatus.
// Matching is case-insensitive and accepts "No longer available" for Removed.
func ParseItemStatus(s string) (ItemStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available":
		return ItemStatusAvailable, true
	case "claimed":
		return ItemStatusClaimed, true
	case "removed", strings.ToLower(itemStatusNoLongerAvailable):
		return ItemStatusRemoved, true
	}
	return "", false
}

// Item categories.
const (
	CategoryElectronics = "electronics"
	CategoryFurniture   = "furniture"
	CategoryClothing    = "clothing"
	CategoryBooks       = "books"
	CategoryToys        = "toys"
	CategoryKitchen     = "kitchen"
	CategorySports      = "sports"
	CategoryOther       = "other"
)

// Categories lists every accepted category in display order.
var Categories = []string{
	CategoryElectronics, CategoryFurniture, CategoryClothing, CategoryBooks,
	CategoryToys, CategoryKitchen, CategorySports, CategoryOther,
}

// Item conditions.
const (
	ConditionExcellent = "excellent"
	ConditionGood      = "good"
	ConditionFair      = "fair"
	ConditionPoor      = "poor"
)

// MaxItemImages is the number of images a single item may carry.
const MaxItemImages = 5

// Item is a donatable object posted by a user.
type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Condition   string     `json:"condition"`
	Location    string     `json:"location"`
	Images      []string   `json:"images"`
	Status      ItemStatus `json:"status"`
	PostedBy    string     `json:"posted_by"`
	ClaimedBy   *string    `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	Poster  *UserSummary `json:"poster,omitempty"`
	Claimer *UserSummary `json:"claimer,omitempty"`
}

// NewItem holds the owner-supplied fields of an item being posted.
type NewItem struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Category    string   `json:"category" validate:"required,oneof=electronics furniture clothing books toys kitchen sports other"`
	Condition   string   `json:"condition" validate:"required,oneof=excellent good fair poor"`
	Location    string   `json:"location" validate:"required,max=200"`
	Images      []string `json:"images" validate:"max=5"`
}

// ItemFilter narrows ListItems. Empty fields match everything; Category "all"
// is treated as empty.
type ItemFilter struct {
	Category string
	Search   string
}
