package model

import "time"

// RequestStatus is the lifecycle state of a claim request.
type RequestStatus string

// Request statuses. Accepted and rejected are terminal.
const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// Open reports whether the status still blocks the requester from asking again.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusAccepted
}

// MaxRequestMessage is the longest message a requester can attach.
const MaxRequestMessage = 1000

// Request is a requester's interest in claiming an available item.
type Request struct {
	ID          string        `json:"id"`
	ItemID      string        `json:"item_id"`
	RequesterID string        `json:"requester_id"`
	OwnerID     string        `json:"owner_id"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Joined fields (not always populated).
	Item      *ItemSummary `json:"item,omitempty"`
	Requester *UserSummary `json:"requester,omitempty"`
	Owner     *UserSummary `json:"owner,omitempty"`
}

// ItemSummary is the slice of an item shown next to a request.
type ItemSummary struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Images []string   `json:"images"`
	Status ItemStatus `json:"status"`
}
