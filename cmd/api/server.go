package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dealgate/account"
	"dealgate/bulk"
	"dealgate/distribution"
	"dealgate/funnel"
	"dealgate/ledger"
	"dealgate/listing"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

type accountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.User, error)
	Login(ctx context.Context, req account.LoginRequest) (account.LoginResult, error)
	VerifyToken(token string) (string, account.Role, error)
}

// Server exposes the engine's call groups over HTTP.
type Server struct {
	accounts      accountService
	listings      listingService
	distributions distributionService
	entries       ledgerService
	ledgerReads   ledgerReadService
	funnels       funnelService
	executor      bulkService
}

type listingService interface {
	Create(ctx context.Context, sellerID string, t listing.Type) (listing.Listing, error)
	AdvanceToActiveDD(ctx context.Context, listingID string) (listing.Listing, error)
	ConvertToDeal(ctx context.Context, listingID, winningBuyerID, notes string) (string, error)
}

type distributionService interface {
	Create(ctx context.Context, listingID string, t distribution.ListingType, recipientIDs []string) (distribution.Distribution, error)
	AddRecipientsByEmail(ctx context.Context, distributionID string, emails []string) (distribution.AddResult, error)
	List(ctx context.Context, listingID string) ([]distribution.Distribution, error)
}

type ledgerService interface {
	RecordResponse(ctx context.Context, listingID, buyerID string, response ledger.Response, message string) (ledger.Entry, error)
	Authorize(ctx context.Context, listingID, buyerID string) (ledger.Entry, error)
	Decline(ctx context.Context, listingID, buyerID, reason string) (ledger.Entry, error)
	SendNDA(ctx context.Context, listingID, buyerID string) (ledger.Entry, error)
	ConfirmNDASigned(ctx context.Context, listingID, buyerID string) (ledger.Entry, error)
}

type ledgerReadService interface {
	EntriesForListing(ctx context.Context, listingID string) ([]ledger.Entry, error)
}

type funnelService interface {
	Compute(ctx context.Context, listingID string) (funnel.Counts, error)
}

type bulkService interface {
	Run(ctx context.Context, kind bulk.Kind, listingID string, buyerIDs []string, reason string) (*bulk.Operation, error)
}

// Handler builds the route table. Auth-required routes are wrapped with the
// JWT middleware; every route gets a request id and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireAuth(h)
	}

	mux.HandleFunc("POST /api/listings", authed(s.handleCreateListing))
	mux.HandleFunc("POST /api/listings/{id}/advance", authed(s.handleAdvance))
	mux.HandleFunc("POST /api/listings/{id}/convert", authed(s.handleConvert))
	mux.HandleFunc("GET /api/listings/{id}/funnel", authed(s.handleFunnel))

	mux.HandleFunc("POST /api/listings/{id}/distributions", authed(s.handleCreateDistribution))
	mux.HandleFunc("GET /api/listings/{id}/distributions", authed(s.handleListDistributions))
	mux.HandleFunc("POST /api/distributions/{id}/recipients", authed(s.handleAddRecipients))

	mux.HandleFunc("POST /api/listings/{id}/responses", authed(s.handleRecordResponse))
	mux.HandleFunc("GET /api/listings/{id}/entries", authed(s.handleListEntries))
	mux.HandleFunc("POST /api/listings/{id}/buyers/{buyerID}/authorize", authed(s.handleAuthorize))
	mux.HandleFunc("POST /api/listings/{id}/buyers/{buyerID}/decline", authed(s.handleDecline))
	mux.HandleFunc("POST /api/listings/{id}/buyers/{buyerID}/nda/send", authed(s.handleSendNDA))
	mux.HandleFunc("POST /api/listings/{id}/buyers/{buyerID}/nda/signed", authed(s.handleConfirmNDA))

	mux.HandleFunc("POST /api/listings/{id}/bulk", authed(s.handleBulk))

	return requestID(requestLogger(mux))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req account.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User: userResponse{
			ID:       result.User.ID,
			Email:    result.User.Email,
			FullName: result.User.FullName,
			Role:     string(result.User.Role),
		},
	})
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sellerID, _ := r.Context().Value(ctxKeyUserID).(string)
	l, err := s.listings.Create(r.Context(), sellerID, listing.Type(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	l, err := s.listings.AdvanceToActiveDD(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WinningBuyerID string `json:"winning_buyer_id"`
		Notes          string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dealID, err := s.listings.ConvertToDeal(r.Context(), r.PathValue("id"), req.WinningBuyerID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deal_id": dealID})
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	counts, err := s.funnels.Compute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleCreateDistribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingType  string   `json:"listing_type"`
		RecipientIDs []string `json:"recipient_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := s.distributions.Create(r.Context(), r.PathValue("id"), distribution.ListingType(req.ListingType), req.RecipientIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDistributionResponse(d))
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	list, err := s.distributions.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]distributionResponse, 0, len(list))
	for _, d := range list {
		items = append(items, toDistributionResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAddRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.distributions.AddRecipientsByEmail(r.Context(), r.PathValue("id"), req.Emails)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response string `json:"response"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	buyerID, _ := r.Context().Value(ctxKeyUserID).(string)
	entry, err := s.entries.RecordResponse(r.Context(), r.PathValue("id"), buyerID, ledger.Response(req.Response), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledgerReads.EntriesForListing(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entries.Authorize(r.Context(), r.PathValue("id"), r.PathValue("buyerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// empty body means no reason
	_ = json.NewDecoder(r.Body).Decode(&req)

	entry, err := s.entries.Decline(r.Context(), r.PathValue("id"), r.PathValue("buyerID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleSendNDA(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entries.SendNDA(r.Context(), r.PathValue("id"), r.PathValue("buyerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleConfirmNDA(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entries.ConfirmNDASigned(r.Context(), r.PathValue("id"), r.PathValue("buyerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     string   `json:"kind"`
		BuyerIDs []string `json:"buyer_ids"`
		Reason   string   `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := s.executor.Run(r.Context(), bulk.Kind(req.Kind), r.PathValue("id"), req.BuyerIDs, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, op.Snapshot())
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type listingResponse struct {
	ID        string `json:"id"`
	SellerID  string `json:"seller_id"`
	Type      string `json:"type"`
	Phase     string `json:"phase"`
	CreatedAt string `json:"created_at"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:        l.ID,
		SellerID:  l.SellerID,
		Type:      string(l.Type),
		Phase:     string(l.Phase),
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

type recipientResponse struct {
	ID          string  `json:"id"`
	BuyerID     *string `json:"buyer_id"`
	Email       string  `json:"email"`
	DeliveredAt string  `json:"delivered_at"`
}

type distributionResponse struct {
	ID          string              `json:"id"`
	ListingID   string              `json:"listing_id"`
	ListingType string              `json:"listing_type"`
	Recipients  []recipientResponse `json:"recipients"`
	CreatedAt   string              `json:"created_at"`
}

func toDistributionResponse(d distribution.Distribution) distributionResponse {
	recipients := make([]recipientResponse, 0, len(d.Recipients))
	for _, rec := range d.Recipients {
		recipients = append(recipients, recipientResponse{
			ID:          rec.ID,
			BuyerID:     rec.BuyerID,
			Email:       rec.Email,
			DeliveredAt: rec.DeliveredAt.Format(time.RFC3339),
		})
	}
	return distributionResponse{
		ID:          d.ID,
		ListingID:   d.ListingID,
		ListingType: string(d.ListingType),
		Recipients:  recipients,
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
}

type entryResponse struct {
	ListingID     string  `json:"listing_id"`
	BuyerID       string  `json:"buyer_id"`
	Response      string  `json:"response"`
	Message       string  `json:"message"`
	AuthStatus    string  `json:"auth_status"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	NDAStatus     string  `json:"nda_status"`
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ListingID:     e.ListingID,
		BuyerID:       e.BuyerID,
		Response:      string(e.Response),
		Message:       e.Message,
		AuthStatus:    string(e.AuthStatus),
		DeclineReason: e.DeclineReason,
		NDAStatus:     string(e.NDAStatus),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain sentinel errors to status codes: validation 400,
// not-found 404, invalid ledger state 409, unmet progression precondition 412.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, distribution.ErrEmptyRecipients),
		errors.Is(err, distribution.ErrInvalidListingType),
		errors.Is(err, ledger.ErrInvalidResponse),
		errors.Is(err, listing.ErrSellerRequired),
		errors.Is(err, listing.ErrInvalidType),
		errors.Is(err, account.ErrWeakPassword),
		errors.Is(err, account.ErrMissingFields),
		errors.Is(err, account.ErrInvalidRole),
		errors.Is(err, account.ErrDuplicateEmail),
		errors.Is(err, bulk.ErrUnknownKind):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, listing.ErrNotFound),
		errors.Is(err, distribution.ErrNotFound),
		errors.Is(err, distribution.ErrListingNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, bulk.ErrListingNotFound),
		errors.Is(err, account.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDeclinedTerminal),
		errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, ledger.ErrNDANotSent):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, listing.ErrNoAuthorizedBuyer),
		errors.Is(err, listing.ErrPhase),
		errors.Is(err, listing.ErrBuyerNotAuthorized),
		errors.Is(err, listing.ErrNDAUnsigned):
		writeJSONError(w, http.StatusPreconditionFailed, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
