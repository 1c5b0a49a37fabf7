package ledger

import "time"

// Response is a buyer's reaction to a listing.
type Response string

const (
	ResponseNone                 Response = "not_responded"
	ResponseInterested           Response = "interested"
	ResponseInterestedConditions Response = "interested_with_conditions"
	ResponsePassed               Response = "passed"
)

// AuthStatus is the seller-side decision gating data-room access.
type AuthStatus string

const (
	AuthPending    AuthStatus = "pending"
	AuthAuthorized AuthStatus = "authorized"
	AuthDeclined   AuthStatus = "declined"
)

// NDAStatus tracks non-disclosure agreement progress for one buyer.
type NDAStatus string

const (
	NDANotSent NDAStatus = "not_sent"
	NDASent    NDAStatus = "sent"
	NDASigned  NDAStatus = "signed"
)

// Entry mirrors one ledger_entries row: a buyer's response to a listing plus
// the authorization and NDA state for that buyer. Exactly one row exists per
// (listing, buyer) pair, created when the buyer first becomes a recipient.
type Entry struct {
	ListingID     string
	BuyerID       string
	Response      Response
	Message       string
	RespondedAt   *time.Time
	AuthStatus    AuthStatus
	DeclineReason *string
	NDAStatus     NDAStatus
	UpdatedAt     time.Time
}

// InDataRoom reports whether the buyer currently has data-room access.
func (e Entry) InDataRoom() bool {
	return e.AuthStatus == AuthAuthorized && e.NDAStatus == NDASigned
}

func validResponse(r Response) bool {
	switch r {
	case ResponseInterested, ResponseInterestedConditions, ResponsePassed:
		return true
	default:
		return false
	}
}
