// Package claim implements the request and claim lifecycle of items: who may
// ask for an item, how an owner hands it to one requester, and how the
// remaining requests are closed once the item is gone.
//
// Every precondition failure is returned as an *Error whose Kind tells the
// caller how to report it. The database is the only shared state; the
// conditional updates in package store decide races between callers.
package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/trashtotreasure/treasure/internal/metrics"
	"github.com/trashtotreasure/treasure/internal/model"
	"github.com/trashtotreasure/treasure/internal/store"
)

// DefaultCascadeRetries is how many times a cascade is attempted before it
// is left to reconciliation.
const DefaultCascadeRetries = 3

// Service runs item and request operations against the database.
type Service struct {
	db                 *sql.DB
	now                func() time.Time
	metrics            *metrics.Metrics
	logger             *slog.Logger
	directClaimCascade bool
	cascadeRetries     int
	cascadeBackoff     time.Duration

	// rejectPending is store.RejectPendingRequests; tests replace it.
	rejectPending func(ctx context.Context, db store.DBTX, itemID, exceptID string, at time.Time) (int64, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used for request and claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records transitions and conflicts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDirectClaimCascade makes ClaimItem reject the item's other pending
// requests, the same way AcceptRequest does. Off by default.
func WithDirectClaimCascade(on bool) Option {
	return func(s *Service) { s.directClaimCascade = on }
}

// WithCascadeRetries sets how many attempts a cascade gets. Values below 1
// are treated as 1.
func WithCascadeRetries(n int) Option {
	return func(s *Service) { s.cascadeRetries = max(n, 1) }
}

// New creates a Service.
func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:             db,
		now:            time.Now,
		logger:         slog.Default(),
		cascadeRetries: DefaultCascadeRetries,
		cascadeBackoff: 50 * time.Millisecond,
		rejectPending:  store.RejectPendingRequests,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ItemDetail is an item as seen by one viewer.
type ItemDetail struct {
	Item *model.Item `json:"item"`
	// UserRequest is the viewer's latest request for the item, if any.
	UserRequest *model.Request `json:"user_request"`
}

func (s *Service) conflict(op, msg string) *Error {
	s.metrics.Conflict(op)
	return Conflict(msg)
}

// CreateRequest records requesterID's interest in an Available item.
func (s *Service) CreateRequest(ctx context.Context, itemID, requesterID, message string) (*model.Request, error) {
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > model.MaxRequestMessage {
		return nil, Validation(fmt.Sprintf("message must be at most %d characters", model.MaxRequestMessage))
	}

	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if item == nil {
		return nil, NotFound(MsgItemNotFound)
	}
	if item.Status != model.ItemStatusAvailable {
		return nil, s.conflict("request", MsgItemUnavailable)
	}
	if item.PostedBy == requesterID {
		return nil, Forbidden(MsgOwnItemRequest)
	}

	open, err := store.FindOpenRequest(ctx, s.db, itemID, requesterID)
	if err != nil {
		return nil, Internal("checking existing requests", err)
	}
	if open != nil {
		return nil, s.conflict("request", MsgAlreadyRequested)
	}

	req, err := store.CreateRequest(ctx, s.db, itemID, requesterID, message, s.now())
	if errors.Is(err, store.ErrDuplicate) {
		return nil, s.conflict("request", MsgAlreadyRequested)
	}
	if err != nil {
		return nil, Internal("creating request", err)
	}
	if req == nil {
		// The item changed between the checks and the insert, or it was
		// already handed out through an accepted request.
		return nil, s.conflict("request", MsgItemUnavailable)
	}

	s.metrics.RequestTransition(string(model.RequestStatusPending))
	s.logger.Info("request created", "request", req.ID, "item", itemID, "requester", requesterID)
	return req, nil
}

// AcceptRequest hands the item to the request's requester. The item claim and
// the request acceptance commit together; of several concurrent accepts on
// one item exactly one succeeds.
//
// After the commit the item's other pending requests are rejected. That step
// is best-effort: if it keeps failing the accept still succeeds, the failure
// is logged and counted, and Reconcile rejects the leftovers later.
//
// A request rejected by that step reports "item no longer available", the
// same as a loser that still saw it pending; any other processed request
// reports "already processed". An item that was reopened by its owner after an
// accept cannot be handed out through a second request.
func (s *Service) AcceptRequest(ctx context.Context, requestID, actingUserID string) (*model.Request, error) {
	req, err := store.GetRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, Internal("loading request", err)
	}
	if req == nil {
		return nil, NotFound(MsgRequestNotFound)
	}
	if req.OwnerID != actingUserID {
		return nil, Forbidden(MsgNotRequestOwner)
	}

	item, err := store.GetItem(ctx, s.db, req.ItemID)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if req.Status != model.RequestStatusPending {
		if rejectedByClaim(req, item) {
			return nil, s.conflict("accept", MsgItemUnavailable)
		}
		return nil, s.conflict("accept", MsgAlreadyProcessed)
	}
	if item == nil || item.Status != model.ItemStatusAvailable {
		return nil, s.conflict("accept", MsgItemUnavailable)
	}

	now := s.now()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		claimed, err := store.ClaimItemForRequest(ctx, tx, req.ItemID, req.RequesterID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return s.conflict("accept", MsgItemUnavailable)
		}
		accepted, err := store.TransitionRequest(ctx, tx, req.ID, model.RequestStatusPending, model.RequestStatusAccepted, now)
		if err != nil {
			return err
		}
		if !accepted {
			return s.conflict("accept", MsgAlreadyProcessed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ItemClaimed(metrics.PathAccept)
	s.metrics.RequestTransition(string(model.RequestStatusAccepted))
	s.logger.Info("request accepted", "request", req.ID, "item", req.ItemID, "requester", req.RequesterID)

	s.cascade(ctx, req.ItemID, req.ID, now)

	return s.reloadRequest(ctx, req.ID)
}

// RejectRequest closes a pending request without touching its item.
func (s *Service) RejectRequest(ctx context.Context, requestID, actingUserID string) (*model.Request, error) {
	req, err := store.GetRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, Internal("loading request", err)
	}
	if req == nil {
		return nil, NotFound(MsgRequestNotFound)
	}
	if req.OwnerID != actingUserID {
		return nil, Forbidden(MsgNotRequestOwner)
	}
	if req.Status != model.RequestStatusPending {
		return nil, s.conflict("reject", MsgAlreadyProcessed)
	}

	rejected, err := store.TransitionRequest(ctx, s.db, req.ID, model.RequestStatusPending, model.RequestStatusRejected, s.now())
	if err != nil {
		return nil, Internal("rejecting request", err)
	}
	if !rejected {
		return nil, s.conflict("reject", MsgAlreadyProcessed)
	}

	s.metrics.RequestTransition(string(model.RequestStatusRejected))
	s.logger.Info("request rejected", "request", req.ID, "item", req.ItemID)
	return s.reloadRequest(ctx, req.ID)
}

// SetItemStatus lets the owner change an item's status directly.
//
// Available and Removed clear the claim; Removed also rejects the item's
// pending requests (best-effort, as in AcceptRequest). Claimed records the
// owner as claimer for a hand-over arranged elsewhere, unless the item is
// already Claimed.
func (s *Service) SetItemStatus(ctx context.Context, itemID, actingUserID, newStatus string) (*model.Item, error) {
	status, ok := model.ParseItemStatus(newStatus)
	if !ok {
		return nil, Validation(MsgInvalidStatus)
	}

	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if item == nil {
		return nil, NotFound(MsgItemNotFound)
	}
	if item.PostedBy != actingUserID {
		return nil, Forbidden(MsgNotItemOwner)
	}

	switch status {
	case model.ItemStatusAvailable, model.ItemStatusRemoved:
		if err := store.ReleaseItem(ctx, s.db, itemID, status, s.now()); err != nil {
			return nil, Internal("updating item status", err)
		}
		if status == model.ItemStatusRemoved {
			s.cascade(ctx, itemID, "", s.now())
		}
	case model.ItemStatusClaimed:
		claimed, err := store.ClaimItemUnlessClaimed(ctx, s.db, itemID, actingUserID, s.now())
		if err != nil {
			return nil, Internal("updating item status", err)
		}
		if claimed {
			s.metrics.ItemClaimed(metrics.PathOwner)
		}
	}

	s.logger.Info("item status set", "item", itemID, "from", item.Status, "to", status)
	return s.reloadItem(ctx, itemID)
}

// ClaimItem takes an Available item directly, without going through a request.
// Other pending requests on the item are left pending unless the service was
// built WithDirectClaimCascade.
func (s *Service) ClaimItem(ctx context.Context, itemID, actingUserID string) (*model.Item, error) {
	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if item == nil {
		return nil, NotFound(MsgItemNotFound)
	}
	if item.Status != model.ItemStatusAvailable {
		return nil, s.conflict("claim", MsgItemUnavailable)
	}
	if item.PostedBy == actingUserID {
		return nil, Forbidden(MsgOwnItemClaim)
	}

	now := s.now()
	claimed, err := store.ClaimItemIfAvailable(ctx, s.db, itemID, actingUserID, now)
	if err != nil {
		return nil, Internal("claiming item", err)
	}
	if !claimed {
		return nil, s.conflict("claim", MsgItemUnavailable)
	}

	s.metrics.ItemClaimed(metrics.PathDirect)
	s.logger.Info("item claimed", "item", itemID, "claimer", actingUserID)

	if s.directClaimCascade {
		s.cascade(ctx, itemID, "", now)
	}
	return s.reloadItem(ctx, itemID)
}

// CreateItem posts a new Available item for ownerID.
func (s *Service) CreateItem(ctx context.Context, ownerID string, in model.NewItem) (*model.Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Condition = strings.ToLower(strings.TrimSpace(in.Condition))
	if err := itemValidate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	item, err := store.CreateItem(ctx, s.db, ownerID, in, s.now())
	if err != nil {
		return nil, Internal("creating item", err)
	}
	s.logger.Info("item posted", "item", item.ID, "owner", ownerID)
	return item, nil
}

// ListItems returns Available and Claimed items matching filter, newest first.
func (s *Service) ListItems(ctx context.Context, filter model.ItemFilter) ([]model.Item, error) {
	items, err := store.ListItems(ctx, s.db, filter)
	if err != nil {
		return nil, Internal("listing items", err)
	}
	return items, nil
}

// GetItem returns an item and, when viewerID is set, the viewer's latest
// request for it.
func (s *Service) GetItem(ctx context.Context, itemID, viewerID string) (*ItemDetail, error) {
	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if item == nil {
		return nil, NotFound(MsgItemNotFound)
	}

	detail := &ItemDetail{Item: item}
	if viewerID != "" {
		detail.UserRequest, err = store.LatestRequest(ctx, s.db, itemID, viewerID)
		if err != nil {
			return nil, Internal("loading viewer request", err)
		}
	}
	return detail, nil
}

// ListRequestsForOwner returns requests received on ownerID's items, newest first.
func (s *Service) ListRequestsForOwner(ctx context.Context, ownerID string) ([]model.Request, error) {
	requests, err := store.ListRequestsByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, Internal("listing requests", err)
	}
	return requests, nil
}

// ListRequestsForRequester returns requests made by requesterID, newest first.
func (s *Service) ListRequestsForRequester(ctx context.Context, requesterID string) ([]model.Request, error) {
	requests, err := store.ListRequestsByRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, Internal("listing requests", err)
	}
	return requests, nil
}

// inTx runs fn in a transaction. An *Error from fn is returned as is; any
// other error becomes KindInternal.
func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Internal("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return cerr
		}
		return Internal("updating database", err)
	}
	if err := tx.Commit(); err != nil {
		return Internal("committing transaction", err)
	}
	return nil
}

// cascade rejects every pending request on itemID except exceptID, stamping
// them with at, the time of the change that triggered it. It runs after that
// change has committed, so it never fails the caller.
func (s *Service) cascade(ctx context.Context, itemID, exceptID string, at time.Time) {
	ctx = context.WithoutCancel(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cascadeBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(b, uint64(s.cascadeRetries-1))

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		n, err := s.rejectPending(ctx, s.db, itemID, exceptID, at)
		if err != nil {
			return err
		}
		s.metrics.Cascaded(n)
		if n > 0 {
			s.logger.Info("pending requests rejected", "item", itemID, "count", n)
		}
		return nil
	}, policy, func(err error, wait time.Duration) {
		s.logger.Warn("cascade attempt failed", "item", itemID, "attempt", attempt, "retry_in", wait, "error", err)
	})
	if err != nil {
		s.metrics.CascadeFailed()
		s.logger.Error("cascade rejection failed", "item", itemID, "attempts", attempt, "error", err)
	}
}

// rejectedByClaim reports whether req was rejected by the cascade of the
// claim that currently holds item. Such requests share the claim's timestamp.
func rejectedByClaim(req *model.Request, item *model.Item) bool {
	return req.Status == model.RequestStatusRejected &&
		item != nil && item.Status == model.ItemStatusClaimed &&
		item.ClaimedAt != nil && req.UpdatedAt.Equal(*item.ClaimedAt)
}

// reloadRequest re-reads a request after a successful change.
func (s *Service) reloadRequest(ctx context.Context, id string) (*model.Request, error) {
	req, err := store.GetRequest(ctx, s.db, id)
	if err != nil {
		return nil, Internal("loading request", err)
	}
	if req == nil {
		return nil, NotFound(MsgRequestNotFound)
	}
	return req, nil
}

func (s *Service) reloadItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := store.GetItem(ctx, s.db, id)
	if err != nil {
		return nil, Internal("loading item", err)
	}
	if item == nil {
		return nil, NotFound(MsgItemNotFound)
	}
	return item, nil
}
