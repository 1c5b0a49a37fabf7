package listing

import "time"

// Phase is the macro-phase of a deal. Transitions only move forward:
// distributed -> active_dd -> converted.
type Phase string

const (
	PhaseDistributed Phase = "distributed"
	PhaseActiveDD    Phase = "active_dd"
	PhaseConverted   Phase = "converted"
)

// Type distinguishes public offerings from private ones.
type Type string

const (
	TypePublic  Type = "public"
	TypePrivate Type = "private"
)

// Listing is the sellable unit, one per deal draft marked for sale.
type Listing struct {
	ID        string
	SellerID  string
	Type      Type
	Phase     Phase
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DealParams carries the winning buyer's conversion into the deal-creation
// collaborator.
type DealParams struct {
	ListingID      string
	WinningBuyerID string
	Notes          string
}
