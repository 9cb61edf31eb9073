package ads

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/notification"
	apperrors "github.com/gatherup/gatherup/pkg/errors"
	"github.com/teris-io/shortid"
)

// Engine owns the join-request state machine: every request moves from
// pending to accepted or rejected, and each transition carries its
// compensating capacity and group-membership updates in one repository
// transaction. Notification dispatch always happens after commit and is
// never allowed to fail an operation.
type Engine struct {
	log      *log.Logger
	db       database.GatherUpRepository
	notifier notification.Dispatcher
}

func NewEngine(logger *log.Logger, db database.GatherUpRepository, notifier notification.Dispatcher) *Engine {
	return &Engine{
		log:      logger,
		db:       db,
		notifier: notifier,
	}
}

type CreateAdParams struct {
	Title       string
	Description string
	MinPeople   int
	MaxPeople   int
	EventDate   string
	EventTime   string
	Info        string
	AutoReserve bool
	Gender      string
}

// CreateAd publishes a new ad together with its companion chat group.
// Only verified owners may publish.
func (e *Engine) CreateAd(ownerId int, params CreateAdParams) (database.Ad, database.Group, error) {
	owner, err := e.db.GetUserById(ownerId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Ad{}, database.Group{}, apperrors.ErrUserNotFound
		}
		return database.Ad{}, database.Group{}, apperrors.ErrStorage(err)
	}

	if owner.Verified == nil || !*owner.Verified {
		return database.Ad{}, database.Group{}, apperrors.ErrNotVerified
	}

	if params.MinPeople < 1 || params.MinPeople > params.MaxPeople {
		return database.Ad{}, database.Group{}, apperrors.ErrInvalidCapacity
	}

	slug, err := shortid.Generate()
	if err != nil {
		return database.Ad{}, database.Group{}, apperrors.ErrStorage(err)
	}

	ad, group, err := e.db.CreateAd(database.CreateAdParams{
		OwnerCode:   owner.MemberCode,
		Title:       params.Title,
		Description: params.Description,
		MinPeople:   params.MinPeople,
		MaxPeople:   params.MaxPeople,
		EventDate:   params.EventDate,
		EventTime:   params.EventTime,
		Info:        params.Info,
		AutoReserve: params.AutoReserve,
		Gender:      params.Gender,
		GroupName:   fmt.Sprintf("%s %s", params.Title, params.EventDate),
		GroupSlug:   slug,
		OwnerId:     owner.Id,
	})
	if err != nil {
		return database.Ad{}, database.Group{}, apperrors.ErrStorage(err)
	}

	return ad, group, nil
}

// SubmitRequest records a user's interest in an ad and pings the owner.
func (e *Engine) SubmitRequest(adId, userId int) (database.Request, error) {
	ad, err := e.db.GetAdById(adId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Request{}, apperrors.ErrAdNotFound
		}
		return database.Request{}, apperrors.ErrStorage(err)
	}

	requester, err := e.db.GetUserById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Request{}, apperrors.ErrUserNotFound
		}
		return database.Request{}, apperrors.ErrStorage(err)
	}

	if requester.MemberCode == ad.OwnerCode {
		return database.Request{}, apperrors.ErrSelfRequest
	}

	if e.db.RequestExists(adId, userId) {
		return database.Request{}, apperrors.ErrDuplicateRequest
	}

	req, err := e.db.CreateRequest(adId, userId)
	if err != nil {
		return database.Request{}, apperrors.ErrStorage(err)
	}

	owner, err := e.db.GetUserByMemberCode(ad.OwnerCode)
	if err != nil {
		e.log.Printf("lookup ad owner %q: %v", ad.OwnerCode, err)
		return req, nil
	}

	e.notify(owner.Id, notification.Payload{
		Title:   "New join request",
		Message: fmt.Sprintf("%s %s wants to join %q", requester.FirstName, requester.LastName, ad.Title),
	})

	return req, nil
}

// AcceptRequest commits the accept transaction and pings the requester.
func (e *Engine) AcceptRequest(requestId int) error {
	req, err := e.db.AcceptRequest(requestId)
	if err != nil {
		return e.mapRequestErr(err)
	}

	e.notify(req.UserId, notification.Payload{
		Title:   "Request accepted",
		Message: "Your join request was accepted. You have been added to the group chat.",
	})

	return nil
}

// RejectRequest commits the reject transaction, compensating capacity and
// membership when the request had previously been accepted.
func (e *Engine) RejectRequest(requestId int) error {
	req, err := e.db.RejectRequest(requestId)
	if err != nil {
		return e.mapRequestErr(err)
	}

	e.notify(req.UserId, notification.Payload{
		Title:   "Request rejected",
		Message: "Your join request was rejected.",
	})

	return nil
}

// RejectRequestForAd rejects a request on the owner's ad page. The request
// must belong to the given ad. Compensation follows the same
// guard-on-prior-answer policy as RejectRequest.
func (e *Engine) RejectRequestForAd(requestId, adId int) error {
	req, err := e.db.GetRequestById(requestId)
	if err != nil {
		return e.mapRequestErr(err)
	}

	if req.AdId != adId {
		return apperrors.ErrRequestNotFound
	}

	return e.RejectRequest(requestId)
}

// DeleteRequest removes the request row outright. Capacity is not
// compensated; callers wanting compensation use RemoveInterest.
func (e *Engine) DeleteRequest(requestId int) error {
	if err := e.db.DeleteRequest(requestId); err != nil {
		return e.mapRequestErr(err)
	}
	return nil
}

// RemoveInterest withdraws a user's request for an ad, returning the
// capacity unit if it had been accepted and dropping the group membership.
func (e *Engine) RemoveInterest(adId, userId int) error {
	if err := e.db.RemoveInterest(adId, userId); err != nil {
		return e.mapRequestErr(err)
	}
	return nil
}

// DeleteAd removes the ad and its requests. The companion group survives
// with its ad reference nulled so chat history stays readable.
func (e *Engine) DeleteAd(adId int) (database.Ad, error) {
	ad, err := e.db.DeleteAd(adId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Ad{}, apperrors.ErrAdNotFound
		}
		return database.Ad{}, apperrors.ErrStorage(err)
	}

	return ad, nil
}

// GenderTally counts accepted requests per gender for an ad.
func (e *Engine) GenderTally(adId int) (database.GenderTally, error) {
	tally, err := e.db.GenderTally(adId)
	if err != nil {
		return database.GenderTally{}, apperrors.ErrStorage(err)
	}

	return tally, nil
}

// notify looks up the user's push subscription and dispatches the payload.
// Users without a subscription and dispatch failures are logged only.
func (e *Engine) notify(userId int, payload notification.Payload) {
	sub, err := e.db.GetSubscriptionByUserId(userId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			e.log.Printf("lookup subscription for user %d: %v", userId, err)
		}
		return
	}

	if err := e.notifier.Send(sub.Endpoint, payload); err != nil {
		e.log.Printf("notify user %d: %v", userId, err)
	}
}

func (e *Engine) mapRequestErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrRequestNotFound
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	return apperrors.ErrStorage(err)
}
