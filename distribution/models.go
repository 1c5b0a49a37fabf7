package distribution

import "time"

// ListingType is snapshotted onto each distribution at creation time.
type ListingType string

const (
	ListingPublic  ListingType = "public"
	ListingPrivate ListingType = "private"
)

// Distribution is a named batch of recipients for a listing.
type Distribution struct {
	ID          string
	ListingID   string
	ListingType ListingType
	Recipients  []Recipient
	CreatedAt   time.Time
}

// Recipient is one buyer-candidate inside a distribution. BuyerID is nil while
// the email is still pending account resolution.
type Recipient struct {
	ID             string
	DistributionID string
	BuyerID        *string
	Email          string
	DeliveredAt    time.Time
}

// EmailError tags one failed email inside a best-effort batch add.
type EmailError struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// AddResult reports the outcome of AddRecipientsByEmail. Partial failure is a
// first-class value: Errors never aborts the rest of the batch.
type AddResult struct {
	Added  []Recipient  `json:"added"`
	Errors []EmailError `json:"errors"`
}
