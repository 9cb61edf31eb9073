package ads

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/notification"
	"github.com/gatherup/gatherup/internal/testutil"
	apperrors "github.com/gatherup/gatherup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func newTestEngine(t *testing.T, db database.GatherUpRepository, notifier notification.Dispatcher) *Engine {
	return NewEngine(testutil.TestLogger(t), db, notifier)
}

func TestCreateAd(t *testing.T) {
	params := CreateAdParams{
		Title:     "Friday futsal",
		MinPeople: 2,
		MaxPeople: 5,
		EventDate: "2026-09-04",
		EventTime: "19:00",
	}

	t.Run("creates ad with companion group", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)

		db.On("GetUserById", 1).Return(database.User{
			Id:         1,
			MemberCode: "owner-code",
			Verified:   boolPtr(true),
		}, nil).Once()
		db.On("CreateAd", mock.MatchedBy(func(p database.CreateAdParams) bool {
			return p.OwnerCode == "owner-code" &&
				p.OwnerId == 1 &&
				p.MaxPeople == 5 &&
				p.GroupName == "Friday futsal 2026-09-04" &&
				p.GroupSlug != ""
		})).Return(
			database.Ad{Id: 10, OwnerCode: "owner-code", Title: "Friday futsal", MaxPeople: 5, Available: 5},
			database.Group{Id: 20, Slug: "abc123", AdId: intPtr(10)},
			nil,
		).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		ad, group, err := e.CreateAd(1, params)
		assert.NoError(t, err)
		assert.Equal(t, 10, ad.Id, "expected created ad id")
		assert.Equal(t, 5, ad.Available, "expected available initialized to max")
		assert.Equal(t, 20, group.Id, "expected companion group id")
	})

	t.Run("unverified owner is refused", func(t *testing.T) {
		for _, verified := range []*bool{nil, boolPtr(false)} {
			db := &database.MockGatherUpRepository{}
			db.On("GetUserById", 1).Return(database.User{Id: 1, Verified: verified}, nil).Once()

			e := newTestEngine(t, db, &notification.MockDispatcher{})
			_, _, err := e.CreateAd(1, params)
			assert.ErrorIs(t, err, apperrors.ErrNotVerified)
			db.AssertExpectations(t)
		}
	})

	t.Run("invalid capacity is refused", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("GetUserById", 1).Return(database.User{Id: 1, Verified: boolPtr(true)}, nil).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, _, err := e.CreateAd(1, CreateAdParams{Title: "x", MinPeople: 6, MaxPeople: 5})
		assert.ErrorIs(t, err, apperrors.ErrInvalidCapacity)
	})
}

func TestSubmitRequest(t *testing.T) {
	ad := database.Ad{Id: 10, OwnerCode: "owner-code", Title: "Friday futsal"}

	t.Run("creates pending request and notifies owner", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		notifier := &notification.MockDispatcher{}
		defer notifier.AssertExpectations(t)

		db.On("GetAdById", 10).Return(ad, nil).Once()
		db.On("GetUserById", 2).Return(database.User{Id: 2, MemberCode: "requester-code", FirstName: "Jane", LastName: "Doe"}, nil).Once()
		db.On("RequestExists", 10, 2).Return(false).Once()
		db.On("CreateRequest", 10, 2).Return(database.Request{Id: 30, AdId: 10, UserId: 2}, nil).Once()
		db.On("GetUserByMemberCode", "owner-code").Return(database.User{Id: 1}, nil).Once()
		db.On("GetSubscriptionByUserId", 1).Return(database.Subscription{Id: 1, UserId: 1, Endpoint: "token-1"}, nil).Once()
		notifier.On("Send", "token-1", mock.MatchedBy(func(p notification.Payload) bool {
			return p.Title == "New join request"
		})).Return(nil).Once()

		e := newTestEngine(t, db, notifier)
		req, err := e.SubmitRequest(10, 2)
		assert.NoError(t, err)
		assert.Equal(t, 30, req.Id)
		assert.Nil(t, req.Answer, "expected request to start pending")
	})

	t.Run("notification failure does not fail the request", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		notifier := &notification.MockDispatcher{}
		defer notifier.AssertExpectations(t)

		db.On("GetAdById", 10).Return(ad, nil).Once()
		db.On("GetUserById", 2).Return(database.User{Id: 2, MemberCode: "requester-code"}, nil).Once()
		db.On("RequestExists", 10, 2).Return(false).Once()
		db.On("CreateRequest", 10, 2).Return(database.Request{Id: 30, AdId: 10, UserId: 2}, nil).Once()
		db.On("GetUserByMemberCode", "owner-code").Return(database.User{Id: 1}, nil).Once()
		db.On("GetSubscriptionByUserId", 1).Return(database.Subscription{Endpoint: "token-1"}, nil).Once()
		notifier.On("Send", "token-1", mock.Anything).Return(errors.New("gateway down")).Once()

		e := newTestEngine(t, db, notifier)
		_, err := e.SubmitRequest(10, 2)
		assert.NoError(t, err, "expected notification failure to be swallowed")
	})

	t.Run("owner without subscription is skipped", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAdById", 10).Return(ad, nil).Once()
		db.On("GetUserById", 2).Return(database.User{Id: 2, MemberCode: "requester-code"}, nil).Once()
		db.On("RequestExists", 10, 2).Return(false).Once()
		db.On("CreateRequest", 10, 2).Return(database.Request{Id: 30, AdId: 10, UserId: 2}, nil).Once()
		db.On("GetUserByMemberCode", "owner-code").Return(database.User{Id: 1}, nil).Once()
		db.On("GetSubscriptionByUserId", 1).Return(database.Subscription{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, err := e.SubmitRequest(10, 2)
		assert.NoError(t, err)
	})

	t.Run("ad not found", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAdById", 99).Return(database.Ad{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, err := e.SubmitRequest(99, 2)
		assert.ErrorIs(t, err, apperrors.ErrAdNotFound)
	})

	t.Run("self request is refused without a row", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAdById", 10).Return(ad, nil).Once()
		db.On("GetUserById", 1).Return(database.User{Id: 1, MemberCode: "owner-code"}, nil).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, err := e.SubmitRequest(10, 1)
		assert.ErrorIs(t, err, apperrors.ErrSelfRequest)
		db.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
	})

	t.Run("duplicate request is refused", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAdById", 10).Return(ad, nil).Once()
		db.On("GetUserById", 2).Return(database.User{Id: 2, MemberCode: "requester-code"}, nil).Once()
		db.On("RequestExists", 10, 2).Return(true).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, err := e.SubmitRequest(10, 2)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateRequest)
		db.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
	})
}

func TestAcceptRequest(t *testing.T) {
	t.Run("accepts and notifies requester", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		notifier := &notification.MockDispatcher{}
		defer notifier.AssertExpectations(t)

		db.On("AcceptRequest", 30).Return(database.Request{Id: 30, AdId: 10, UserId: 2, Answer: intPtr(database.AnswerAccepted)}, nil).Once()
		db.On("GetSubscriptionByUserId", 2).Return(database.Subscription{Endpoint: "token-2"}, nil).Once()
		notifier.On("Send", "token-2", mock.MatchedBy(func(p notification.Payload) bool {
			return p.Title == "Request accepted"
		})).Return(nil).Once()

		e := newTestEngine(t, db, notifier)
		assert.NoError(t, e.AcceptRequest(30))
	})

	t.Run("missing request", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("AcceptRequest", 99).Return(database.Request{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		assert.ErrorIs(t, e.AcceptRequest(99), apperrors.ErrRequestNotFound)
	})

	t.Run("capacity exhausted passes through as conflict", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("AcceptRequest", 30).Return(database.Request{}, apperrors.ErrCapacityExhausted).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		err := e.AcceptRequest(30)
		assert.ErrorIs(t, err, apperrors.ErrCapacityExhausted)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyExists))
	})

	t.Run("storage failure wraps as internal", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("AcceptRequest", 30).Return(database.Request{}, errors.New("connection reset")).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		err := e.AcceptRequest(30)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal), "expected internal code, got %v", err)
	})
}

func TestRejectRequest(t *testing.T) {
	t.Run("rejects and notifies requester", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		notifier := &notification.MockDispatcher{}
		defer notifier.AssertExpectations(t)

		db.On("RejectRequest", 30).Return(database.Request{Id: 30, AdId: 10, UserId: 2, Answer: intPtr(database.AnswerRejected)}, nil).Once()
		db.On("GetSubscriptionByUserId", 2).Return(database.Subscription{Endpoint: "token-2"}, nil).Once()
		notifier.On("Send", "token-2", mock.MatchedBy(func(p notification.Payload) bool {
			return p.Title == "Request rejected"
		})).Return(nil).Once()

		e := newTestEngine(t, db, notifier)
		assert.NoError(t, e.RejectRequest(30))
	})

	t.Run("missing request", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("RejectRequest", 99).Return(database.Request{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		assert.ErrorIs(t, e.RejectRequest(99), apperrors.ErrRequestNotFound)
	})
}

func TestRejectRequestForAd(t *testing.T) {
	t.Run("rejects request belonging to the ad", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRequestById", 30).Return(database.Request{Id: 30, AdId: 10, UserId: 2}, nil).Once()
		db.On("RejectRequest", 30).Return(database.Request{Id: 30, AdId: 10, UserId: 2, Answer: intPtr(database.AnswerRejected)}, nil).Once()
		db.On("GetSubscriptionByUserId", 2).Return(database.Subscription{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		assert.NoError(t, e.RejectRequestForAd(30, 10))
	})

	t.Run("request from another ad is not found", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRequestById", 30).Return(database.Request{Id: 30, AdId: 11, UserId: 2}, nil).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		err := e.RejectRequestForAd(30, 10)
		assert.ErrorIs(t, err, apperrors.ErrRequestNotFound)
		db.AssertNotCalled(t, "RejectRequest", mock.Anything)
	})
}

func TestDeleteRequest(t *testing.T) {
	db := &database.MockGatherUpRepository{}
	defer db.AssertExpectations(t)
	db.On("DeleteRequest", 30).Return(nil).Once()
	db.On("DeleteRequest", 99).Return(sql.ErrNoRows).Once()

	e := newTestEngine(t, db, &notification.MockDispatcher{})
	assert.NoError(t, e.DeleteRequest(30))
	assert.ErrorIs(t, e.DeleteRequest(99), apperrors.ErrRequestNotFound)
}

func TestRemoveInterest(t *testing.T) {
	db := &database.MockGatherUpRepository{}
	defer db.AssertExpectations(t)
	db.On("RemoveInterest", 10, 2).Return(nil).Once()
	db.On("RemoveInterest", 10, 3).Return(sql.ErrNoRows).Once()

	e := newTestEngine(t, db, &notification.MockDispatcher{})
	assert.NoError(t, e.RemoveInterest(10, 2))
	assert.ErrorIs(t, e.RemoveInterest(10, 3), apperrors.ErrRequestNotFound)
}

func TestDeleteAd(t *testing.T) {
	t.Run("deletes existing ad", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteAd", 10).Return(database.Ad{Id: 10, Title: "Friday futsal"}, nil).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		ad, err := e.DeleteAd(10)
		assert.NoError(t, err)
		assert.Equal(t, 10, ad.Id)
	})

	t.Run("missing ad", func(t *testing.T) {
		db := &database.MockGatherUpRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteAd", 99).Return(database.Ad{}, sql.ErrNoRows).Once()

		e := newTestEngine(t, db, &notification.MockDispatcher{})
		_, err := e.DeleteAd(99)
		assert.ErrorIs(t, err, apperrors.ErrAdNotFound)
	})
}

func TestGenderTally(t *testing.T) {
	db := &database.MockGatherUpRepository{}
	defer db.AssertExpectations(t)
	db.On("GenderTally", 10).Return(database.GenderTally{Male: 2, Female: 1}, nil).Once()

	e := newTestEngine(t, db, &notification.MockDispatcher{})
	tally, err := e.GenderTally(10)
	assert.NoError(t, err)
	assert.Equal(t, 2, tally.Male)
	assert.Equal(t, 1, tally.Female)
}
