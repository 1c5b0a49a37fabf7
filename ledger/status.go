package ledger

import "errors"

var (
	// ErrEntryNotFound signals no ledger entry exists for the (listing, buyer)
	// pair, i.e. the buyer was never sent this listing.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrDeclinedTerminal signals an attempt to authorize a declined buyer.
	// A decline is terminal; only a re-invite flow outside this service could
	// bring the buyer back.
	ErrDeclinedTerminal = errors.New("ledger: buyer is declined")
	// ErrNotAuthorized signals an NDA send on a buyer who is not authorized.
	ErrNotAuthorized = errors.New("ledger: buyer is not authorized")
	// ErrNDANotSent signals an NDA confirmation with no NDA out for signature.
	ErrNDANotSent = errors.New("ledger: nda has not been sent")
	// ErrInvalidResponse signals an unknown response value.
	ErrInvalidResponse = errors.New("ledger: invalid response")
)

// The transition table below is pure so it can be exercised without a
// database; the service applies it under the entry's row lock.

// applyAuthorize moves pending -> authorized. Re-authorizing an authorized
// buyer is a silent no-op; a declined buyer can never be authorized again.
func applyAuthorize(e Entry) (Entry, error) {
	switch e.AuthStatus {
	case AuthAuthorized:
		return e, nil
	case AuthDeclined:
		return Entry{}, ErrDeclinedTerminal
	default:
		e.AuthStatus = AuthAuthorized
		return e, nil
	}
}

// applyDecline moves pending|authorized -> declined and revokes any NDA
// progress so a declined buyer can never sit past not_sent. Declining an
// already-declined buyer is a no-op that keeps the original reason.
func applyDecline(e Entry, reason string) Entry {
	if e.AuthStatus == AuthDeclined {
		return e
	}
	e.AuthStatus = AuthDeclined
	e.DeclineReason = &reason
	e.NDAStatus = NDANotSent
	return e
}

// applySendNDA requires an authorized buyer. Re-sending while the NDA is out
// or already signed does not regress the NDA state.
func applySendNDA(e Entry) (Entry, error) {
	if e.AuthStatus != AuthAuthorized {
		return Entry{}, ErrNotAuthorized
	}
	if e.NDAStatus == NDANotSent {
		e.NDAStatus = NDASent
	}
	return e, nil
}

// applyConfirmNDASigned requires the NDA to be out for signature. Confirming
// an already-signed NDA is a no-op.
func applyConfirmNDASigned(e Entry) (Entry, error) {
	switch e.NDAStatus {
	case NDASigned:
		return e, nil
	case NDASent:
		e.NDAStatus = NDASigned
		return e, nil
	default:
		return Entry{}, ErrNDANotSent
	}
}
