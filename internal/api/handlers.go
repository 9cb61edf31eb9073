package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gatherup/gatherup/internal/ads"
	"github.com/gatherup/gatherup/internal/chat"
	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateAccountRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
}

type VerificationRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

type CreateAdRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	MinPeople   int    `json:"min_people" validate:"required,min=1"`
	MaxPeople   int    `json:"max_people" validate:"required,gtefield=MinPeople"`
	EventDate   string `json:"event_date" validate:"required"`
	EventTime   string `json:"event_time"`
	Info        string `json:"info"`
	AutoReserve bool   `json:"auto_reserve"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female mixed"`
}

type SubmitRequestRequest struct {
	AdId int `json:"ad_id" validate:"required"`
}

type AnswerRequestRequest struct {
	RequestId int `json:"request_id" validate:"required"`
	AdId      int `json:"ad_id"`
}

type PutSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (s *GatherUpApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// decodeAndValidate parses the request body into v and runs its
// validation tags.
func (s *GatherUpApp) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}

	return s.validate.Struct(v)
}

func userResponse(u database.User) types.User {
	return types.User{
		Id:         u.Id,
		MemberCode: u.MemberCode,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Gender:     u.Gender,
		Verified:   u.Verified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func adResponse(ad database.Ad, groupSlug string) types.Ad {
	return types.Ad{
		Id:          ad.Id,
		OwnerCode:   ad.OwnerCode,
		Title:       ad.Title,
		Description: ad.Description,
		MinPeople:   ad.MinPeople,
		MaxPeople:   ad.MaxPeople,
		Available:   ad.Available,
		EventDate:   ad.EventDate,
		EventTime:   ad.EventTime,
		Info:        ad.Info,
		AutoReserve: ad.AutoReserve,
		Gender:      ad.Gender,
		GroupSlug:   groupSlug,
		CreatedAt:   ad.CreatedAt,
		UpdatedAt:   ad.UpdatedAt,
	}
}

func (s *GatherUpApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateUser(database.CreateUserParams{
		MemberCode:   uuid.NewString(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: pwdHash,
		Gender:       req.Gender,
	})
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userResponse(newUser))
}

func (s *GatherUpApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := s.decodeAndValidate(r, &lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetUserByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, userResponse(dbUser))
}

func (s *GatherUpApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *GatherUpApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) account(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := s.db.GetUserById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, userResponse(user))
	case http.MethodPut:
		curUser, err := s.db.GetUserById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req UpdateAccountRequest
		if err := s.decodeAndValidate(r, &req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		dbUser, err := s.db.UpdateUser(database.UpdateUserParams{
			UserId:    curUser.Id,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			// a new contact address invalidates the prior verification
			ResetVerification: req.Email != curUser.Email,
		})
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, userResponse(dbUser))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *GatherUpApp) accountVerification(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req VerificationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetUserVerification(userId, *req.Verified); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) createAd(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateAdRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ad, group, err := s.engine.CreateAd(userId, ads.CreateAdParams{
		Title:       req.Title,
		Description: req.Description,
		MinPeople:   req.MinPeople,
		MaxPeople:   req.MaxPeople,
		EventDate:   req.EventDate,
		EventTime:   req.EventTime,
		Info:        req.Info,
		AutoReserve: req.AutoReserve,
		Gender:      req.Gender,
	})
	if err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, adResponse(ad, group.Slug))
}

func (s *GatherUpApp) getAds(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	if idStr != "" {
		adId, err := strconv.Atoi(idStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ad, err := s.db.GetAdById(adId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var slug string
		if group, err := s.db.GetGroupByAdId(ad.Id); err == nil {
			slug = group.Slug
		}

		s.writeJson(w, http.StatusOK, adResponse(ad, slug))
		return
	}

	dbAds, err := s.db.ListAds(r.URL.Query().Get("gender"))
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	adList := make([]types.Ad, 0, len(dbAds))
	for _, ad := range dbAds {
		adList = append(adList, adResponse(ad, ""))
	}

	s.writeJson(w, http.StatusOK, adList)
}

func (s *GatherUpApp) deleteAd(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	adId, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ad, err := s.db.GetAdById(adId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if ad.OwnerCode != user.MemberCode {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// resolve the companion group before the delete nulls its ad reference
	var groupSlug string
	if group, err := s.db.GetGroupByAdId(ad.Id); err == nil {
		groupSlug = group.Slug
	}

	if _, err := s.engine.DeleteAd(ad.Id); err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if groupSlug != "" {
		if err := s.cs.UnloadGroup(r.Context(), groupSlug, true); err != nil {
			s.log.Println("unload group after ad delete:", err)
		}
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GatherUpApp) genderTally(w http.ResponseWriter, r *http.Request) {
	adId, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	tally, err := s.engine.GenderTally(adId)
	if err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.GenderTally{
		Male:   tally.Male,
		Female: tally.Female,
	})
}

func (s *GatherUpApp) createRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SubmitRequestRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newReq, err := s.engine.SubmitRequest(req.AdId, userId)
	if err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Request{
		Id:        newReq.Id,
		AdId:      newReq.AdId,
		UserId:    newReq.UserId,
		Answer:    newReq.Answer,
		CreatedAt: newReq.CreatedAt,
	})
}

func (s *GatherUpApp) listRequests(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	adId, err := strconv.Atoi(r.URL.Query().Get("ad_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ad, err := s.db.GetAdById(adId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if ad.OwnerCode != user.MemberCode {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRequests, err := s.db.ListRequestsForAd(ad.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	requests := make([]types.Request, 0, len(dbRequests))
	for _, dbReq := range dbRequests {
		requests = append(requests, types.Request{
			Id:     dbReq.Id,
			AdId:   dbReq.AdId,
			UserId: dbReq.UserId,
			Answer: dbReq.Answer,
			User: types.User{
				Id:        dbReq.User.Id,
				FirstName: dbReq.User.FirstName,
				LastName:  dbReq.User.LastName,
				Gender:    dbReq.User.Gender,
			},
			CreatedAt: dbReq.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, requests)
}

// requireAdOwnership loads the request and checks the caller owns its ad.
func (s *GatherUpApp) requireAdOwnership(requestId, userId int) (database.Request, *ApiError) {
	req, err := s.db.GetRequestById(requestId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Request{}, NewNotFoundError()
		}
		return database.Request{}, NewInternalServerError(err)
	}

	ad, err := s.db.GetAdById(req.AdId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Request{}, NewNotFoundError()
		}
		return database.Request{}, NewInternalServerError(err)
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		return database.Request{}, NewInternalServerError(err)
	}

	if ad.OwnerCode != user.MemberCode {
		return database.Request{}, NewForbiddenError()
	}

	return req, nil
}

func (s *GatherUpApp) acceptRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AnswerRequestRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, errResp := s.requireAdOwnership(req.RequestId, userId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.engine.AcceptRequest(req.RequestId); err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) rejectRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AnswerRequestRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, errResp := s.requireAdOwnership(req.RequestId, userId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var err error
	if req.AdId != 0 {
		err = s.engine.RejectRequestForAd(req.RequestId, req.AdId)
	} else {
		err = s.engine.RejectRequest(req.RequestId)
	}
	if err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) deleteRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	requestId, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req, err := s.db.GetRequestById(requestId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the requester may always withdraw; otherwise only the ad owner
	if req.UserId != userId {
		if _, errResp := s.requireAdOwnership(requestId, userId); errResp != nil {
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.engine.DeleteRequest(requestId); err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) removeInterest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	adId, err := strconv.Atoi(r.URL.Query().Get("ad_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.engine.RemoveInterest(adId, userId); err != nil {
		errResp := fromAppError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) listGroups(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbGroups, err := s.db.ListGroupsForUser(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groups := make([]types.Group, 0, len(dbGroups))
	for _, g := range dbGroups {
		groups = append(groups, types.Group{
			Id:        g.Id,
			AdId:      g.AdId,
			Name:      g.Name,
			Slug:      g.Slug,
			SeqId:     g.SeqId,
			CreatedAt: g.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, groups)
}

// memberGroup resolves the slug and checks the caller's durable
// membership before any message or member listing.
func (s *GatherUpApp) memberGroup(slug string, userId int) (database.Group, *ApiError) {
	if slug == "" {
		return database.Group{}, NewBadRequestError()
	}

	group, err := s.db.GetGroupBySlug(slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Group{}, NewNotFoundError()
		}
		return database.Group{}, NewInternalServerError(err)
	}

	if !s.db.IsGroupMember(group.Id, userId) {
		return database.Group{}, NewForbiddenError()
	}

	return group, nil
}

func (s *GatherUpApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, errResp := s.memberGroup(r.URL.Query().Get("slug"), userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var after, before, limit int
	var err error

	afterStr := r.URL.Query().Get("after")
	if afterStr != "" {
		after, err = strconv.Atoi(afterStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	beforeStr := r.URL.Query().Get("before")
	if beforeStr != "" {
		before, err = strconv.Atoi(beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.GetMessages(group.Id, after, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		m := types.Message{
			SeqId:      msg.SeqId,
			GroupSlug:  group.Slug,
			SenderName: msg.SenderName,
			Content:    msg.Content,
			Timestamp:  msg.CreatedAt,
		}

		// sender id is only disclosed on the caller's own messages
		if msg.UserId == userId {
			m.UserId = msg.UserId
		}

		messages = append(messages, m)
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GatherUpApp) getMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, errResp := s.memberGroup(r.URL.Query().Get("slug"), userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMembers, err := s.db.GetGroupMembers(group.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members := make([]types.Member, 0, len(dbMembers))
	for _, m := range dbMembers {
		members = append(members, types.Member{
			UserId:    m.UserId,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			IsAdmin:   m.IsAdmin,
			IsPresent: s.cs.Presence().IsPresent(group.Slug, m.UserId),
		})
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *GatherUpApp) removeMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	targetId, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, errResp := s.memberGroup(r.URL.Query().Get("slug"), userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// members may leave on their own; removing others takes admin rights
	if targetId != userId {
		dbMembers, err := s.db.GetGroupMembers(group.Id)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		isAdmin := false
		for _, m := range dbMembers {
			if m.UserId == userId && m.IsAdmin {
				isAdmin = true
				break
			}
		}

		if !isAdmin {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.db.RemoveGroupMember(group.Id, targetId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) putSubscription(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PutSubscriptionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sub, err := s.db.UpsertSubscription(userId, req.Endpoint)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"endpoint": sub.Endpoint})
}

func (s *GatherUpApp) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteSubscription(userId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GatherUpApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := chat.NewClient(types.User{
		Id:         user.Id,
		MemberCode: user.MemberCode,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func (s *GatherUpApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("healthz:", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
