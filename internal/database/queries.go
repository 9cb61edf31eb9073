package database

import (
	"database/sql"
	"time"

	apperrors "github.com/gatherup/gatherup/pkg/errors"
)

const (
	createMemberQuery = "INSERT INTO group_members (group_id, user_id, is_admin, created_at) " +
		"VALUES ($1, $2, $3, $4) ON CONFLICT (group_id, user_id) DO NOTHING"
	selectGroupQuery = "SELECT id, ad_id, name, slug, seq_id, created_at FROM groups "
)

func (db *PgGatherUpRepository) CreateUser(params CreateUserParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (member_code, first_name, last_name, email, password_hash, gender, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id, member_code, first_name, last_name, email, gender",
		params.MemberCode,
		params.FirstName,
		params.LastName,
		params.Email,
		params.PasswordHash,
		params.Gender,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.MemberCode,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Gender,
	)

	return u, err
}

func (db *PgGatherUpRepository) UpdateUser(params UpdateUserParams) (User, error) {
	// An email edit resets the verification flag to NULL, forcing the
	// user through verification again.
	query := "UPDATE users SET first_name = $2, last_name = $3, email = $4, updated_at = $5 "
	if params.ResetVerification {
		query = "UPDATE users SET first_name = $2, last_name = $3, email = $4, updated_at = $5, verified = NULL "
	}

	res := db.conn.QueryRow(
		query+"WHERE id = $1 RETURNING id, member_code, first_name, last_name, email, gender, verified",
		params.UserId,
		params.FirstName,
		params.LastName,
		params.Email,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.MemberCode,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Gender,
		&u.Verified,
	)

	return u, err
}

func (db *PgGatherUpRepository) GetUserById(id int) (User, error) {
	return db.getUser("SELECT id, member_code, first_name, last_name, email, password_hash, gender, verified FROM users WHERE id = $1 LIMIT 1", id)
}

func (db *PgGatherUpRepository) GetUserByEmail(email string) (User, error) {
	return db.getUser("SELECT id, member_code, first_name, last_name, email, password_hash, gender, verified FROM users WHERE email = $1 LIMIT 1", email)
}

func (db *PgGatherUpRepository) GetUserByMemberCode(memberCode string) (User, error) {
	return db.getUser("SELECT id, member_code, first_name, last_name, email, password_hash, gender, verified FROM users WHERE member_code = $1 LIMIT 1", memberCode)
}

func (db *PgGatherUpRepository) getUser(query string, arg any) (User, error) {
	row := db.conn.QueryRow(query, arg)

	var user User
	err := row.Scan(
		&user.Id,
		&user.MemberCode,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&user.Gender,
		&user.Verified,
	)

	return user, err
}

func (db *PgGatherUpRepository) SetUserVerification(userId int, verified bool) error {
	res, err := db.conn.Exec(
		"UPDATE users SET verified = $2, updated_at = $3 WHERE id = $1",
		userId,
		verified,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CreateAd inserts the ad, its companion group and the owner's admin
// membership as one transaction.
func (db *PgGatherUpRepository) CreateAd(params CreateAdParams) (Ad, Group, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Ad{}, Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO ads (owner_code, title, description, min_people, max_people, available, event_date, event_time, info, auto_reserve, gender, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $9, $10, $11, $11) "+
			"RETURNING id, owner_code, title, description, min_people, max_people, available, event_date, event_time, info, auto_reserve, gender, created_at, updated_at",
		params.OwnerCode,
		params.Title,
		params.Description,
		params.MinPeople,
		params.MaxPeople,
		params.EventDate,
		params.EventTime,
		params.Info,
		params.AutoReserve,
		params.Gender,
		time.Now().UTC(),
	)

	var ad Ad
	err = res.Scan(
		&ad.Id,
		&ad.OwnerCode,
		&ad.Title,
		&ad.Description,
		&ad.MinPeople,
		&ad.MaxPeople,
		&ad.Available,
		&ad.EventDate,
		&ad.EventTime,
		&ad.Info,
		&ad.AutoReserve,
		&ad.Gender,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	)
	if err != nil {
		return Ad{}, Group{}, err
	}

	res = tx.QueryRow(
		"INSERT INTO groups (ad_id, name, slug, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, ad_id, name, slug, seq_id, created_at",
		ad.Id,
		params.GroupName,
		params.GroupSlug,
		time.Now().UTC(),
	)

	var group Group
	err = res.Scan(
		&group.Id,
		&group.AdId,
		&group.Name,
		&group.Slug,
		&group.SeqId,
		&group.CreatedAt,
	)
	if err != nil {
		return Ad{}, Group{}, err
	}

	_, err = tx.Exec(createMemberQuery, group.Id, params.OwnerId, true, time.Now().UTC())
	if err != nil {
		return Ad{}, Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return Ad{}, Group{}, err
	}

	return ad, group, nil
}

func (db *PgGatherUpRepository) GetAdById(adId int) (Ad, error) {
	row := db.conn.QueryRow(
		"SELECT id, owner_code, title, description, min_people, max_people, available, event_date, event_time, info, auto_reserve, gender, created_at, updated_at "+
			"FROM ads WHERE id = $1 LIMIT 1",
		adId,
	)

	return scanAd(row)
}

func (db *PgGatherUpRepository) ListAds(gender string) ([]Ad, error) {
	rows, err := db.conn.Query(
		"SELECT id, owner_code, title, description, min_people, max_people, available, event_date, event_time, info, auto_reserve, gender, created_at, updated_at "+
			"FROM ads WHERE gender = '' OR gender = $1 ORDER BY created_at DESC",
		gender,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ads = make([]Ad, 0)
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad)
	}

	return ads, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(row rowScanner) (Ad, error) {
	var ad Ad
	err := row.Scan(
		&ad.Id,
		&ad.OwnerCode,
		&ad.Title,
		&ad.Description,
		&ad.MinPeople,
		&ad.MaxPeople,
		&ad.Available,
		&ad.EventDate,
		&ad.EventTime,
		&ad.Info,
		&ad.AutoReserve,
		&ad.Gender,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	)

	return ad, err
}

// DeleteAd removes the ad and its requests while keeping the companion
// group alive as chat history with its ad reference nulled.
func (db *PgGatherUpRepository) DeleteAd(adId int) (Ad, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Ad{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM requests WHERE ad_id = $1", adId)
	if err != nil {
		return Ad{}, err
	}

	_, err = tx.Exec("UPDATE groups SET ad_id = NULL WHERE ad_id = $1", adId)
	if err != nil {
		return Ad{}, err
	}

	row := tx.QueryRow(
		"DELETE FROM ads WHERE id = $1 "+
			"RETURNING id, owner_code, title, description, min_people, max_people, available, event_date, event_time, info, auto_reserve, gender, created_at, updated_at",
		adId,
	)

	var ad Ad
	ad, err = scanAd(row)
	if err != nil {
		return Ad{}, err
	}

	if err = tx.Commit(); err != nil {
		return Ad{}, err
	}

	return ad, nil
}

func (db *PgGatherUpRepository) CreateRequest(adId, userId int) (Request, error) {
	res := db.conn.QueryRow(
		"INSERT INTO requests (ad_id, user_id, answer, created_at, updated_at) "+
			"VALUES ($1, $2, NULL, $3, $3) RETURNING id, ad_id, user_id, created_at",
		adId,
		userId,
		time.Now().UTC(),
	)

	var req Request
	err := res.Scan(
		&req.Id,
		&req.AdId,
		&req.UserId,
		&req.CreatedAt,
	)

	return req, err
}

func (db *PgGatherUpRepository) GetRequestById(requestId int) (Request, error) {
	row := db.conn.QueryRow(
		"SELECT id, ad_id, user_id, answer, created_at, updated_at FROM requests WHERE id = $1 LIMIT 1",
		requestId,
	)

	var req Request
	err := row.Scan(
		&req.Id,
		&req.AdId,
		&req.UserId,
		&req.Answer,
		&req.CreatedAt,
		&req.UpdatedAt,
	)

	return req, err
}

func (db *PgGatherUpRepository) RequestExists(adId, userId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM requests WHERE ad_id = $1 AND user_id = $2 LIMIT 1",
		adId,
		userId,
	)

	var id int
	err := res.Scan(&id)

	return err == nil
}

func (db *PgGatherUpRepository) ListRequestsForAd(adId int) ([]Request, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.ad_id, r.user_id, r.answer, r.created_at, u.member_code, u.first_name, u.last_name, u.gender "+
			"FROM requests r JOIN users u ON r.user_id = u.id WHERE r.ad_id = $1 ORDER BY r.created_at",
		adId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests = make([]Request, 0)
	for rows.Next() {
		var req Request
		if err = rows.Scan(
			&req.Id,
			&req.AdId,
			&req.UserId,
			&req.Answer,
			&req.CreatedAt,
			&req.User.MemberCode,
			&req.User.FirstName,
			&req.User.LastName,
			&req.User.Gender,
		); err != nil {
			return nil, err
		}

		req.User.Id = req.UserId
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// AcceptRequest marks the request accepted, takes one unit of the ad's
// capacity and adds the requester to the ad's group, all in one
// transaction. Accepting an already-accepted request is a no-op.
func (db *PgGatherUpRepository) AcceptRequest(requestId int) (Request, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Request{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req Request
	row := tx.QueryRow(
		"SELECT id, ad_id, user_id, answer FROM requests WHERE id = $1 FOR UPDATE",
		requestId,
	)
	err = row.Scan(&req.Id, &req.AdId, &req.UserId, &req.Answer)
	if err != nil {
		return Request{}, err
	}

	if req.Answer != nil && *req.Answer == AnswerAccepted {
		// already accepted, nothing to re-apply
		err = tx.Commit()
		return req, err
	}

	_, err = tx.Exec(
		"UPDATE requests SET answer = $2, updated_at = $3 WHERE id = $1",
		requestId,
		AnswerAccepted,
		time.Now().UTC(),
	)
	if err != nil {
		return Request{}, err
	}

	var res sql.Result
	res, err = tx.Exec(
		"UPDATE ads SET available = available - 1, updated_at = $2 WHERE id = $1 AND available > 0",
		req.AdId,
		time.Now().UTC(),
	)
	if err != nil {
		return Request{}, err
	}

	var n int64
	n, err = res.RowsAffected()
	if err != nil {
		return Request{}, err
	}
	if n == 0 {
		err = apperrors.ErrCapacityExhausted
		return Request{}, err
	}

	var groupId int
	err = tx.QueryRow("SELECT id FROM groups WHERE ad_id = $1 LIMIT 1", req.AdId).Scan(&groupId)
	if err != nil {
		if err == sql.ErrNoRows {
			err = apperrors.ErrNoGroupForAd
		}
		return Request{}, err
	}

	_, err = tx.Exec(createMemberQuery, groupId, req.UserId, false, time.Now().UTC())
	if err != nil {
		return Request{}, err
	}

	if err = tx.Commit(); err != nil {
		return Request{}, err
	}

	answer := AnswerAccepted
	req.Answer = &answer
	return req, nil
}

// RejectRequest marks the request rejected. When the prior answer was
// accepted it compensates first: the capacity unit is returned and the
// requester's group membership removed. Repeat calls change nothing.
func (db *PgGatherUpRepository) RejectRequest(requestId int) (Request, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Request{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req Request
	row := tx.QueryRow(
		"SELECT id, ad_id, user_id, answer FROM requests WHERE id = $1 FOR UPDATE",
		requestId,
	)
	err = row.Scan(&req.Id, &req.AdId, &req.UserId, &req.Answer)
	if err != nil {
		return Request{}, err
	}

	if req.Answer != nil && *req.Answer == AnswerAccepted {
		_, err = tx.Exec(
			"UPDATE ads SET available = available + 1, updated_at = $2 WHERE id = $1",
			req.AdId,
			time.Now().UTC(),
		)
		if err != nil {
			return Request{}, err
		}

		_, err = tx.Exec(
			"DELETE FROM group_members USING groups "+
				"WHERE group_members.group_id = groups.id AND groups.ad_id = $1 AND group_members.user_id = $2",
			req.AdId,
			req.UserId,
		)
		if err != nil {
			return Request{}, err
		}
	}

	_, err = tx.Exec(
		"UPDATE requests SET answer = $2, updated_at = $3 WHERE id = $1",
		requestId,
		AnswerRejected,
		time.Now().UTC(),
	)
	if err != nil {
		return Request{}, err
	}

	if err = tx.Commit(); err != nil {
		return Request{}, err
	}

	answer := AnswerRejected
	req.Answer = &answer
	return req, nil
}

func (db *PgGatherUpRepository) DeleteRequest(requestId int) error {
	res, err := db.conn.Exec("DELETE FROM requests WHERE id = $1", requestId)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// RemoveInterest withdraws a user's request for an ad, compensating the
// ad's capacity only when the request had been accepted.
func (db *PgGatherUpRepository) RemoveInterest(adId, userId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var requestId int
	var answer *int
	row := tx.QueryRow(
		"SELECT id, answer FROM requests WHERE ad_id = $1 AND user_id = $2 FOR UPDATE",
		adId,
		userId,
	)
	err = row.Scan(&requestId, &answer)
	if err != nil {
		return err
	}

	if answer != nil && *answer == AnswerAccepted {
		_, err = tx.Exec(
			"UPDATE ads SET available = available + 1, updated_at = $2 WHERE id = $1",
			adId,
			time.Now().UTC(),
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(
		"DELETE FROM group_members USING groups "+
			"WHERE group_members.group_id = groups.id AND groups.ad_id = $1 AND group_members.user_id = $2",
		adId,
		userId,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM requests WHERE id = $1", requestId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgGatherUpRepository) GenderTally(adId int) (GenderTally, error) {
	row := db.conn.QueryRow(
		"SELECT "+
			"COUNT(*) FILTER (WHERE u.gender = 'male'), "+
			"COUNT(*) FILTER (WHERE u.gender = 'female') "+
			"FROM requests r JOIN users u ON r.user_id = u.id "+
			"WHERE r.ad_id = $1 AND r.answer = $2",
		adId,
		AnswerAccepted,
	)

	var tally GenderTally
	err := row.Scan(&tally.Male, &tally.Female)

	return tally, err
}

func (db *PgGatherUpRepository) GetGroupBySlug(slug string) (Group, error) {
	return scanGroup(db.conn.QueryRow(selectGroupQuery+"WHERE slug = $1 LIMIT 1", slug))
}

func (db *PgGatherUpRepository) GetGroupByAdId(adId int) (Group, error) {
	return scanGroup(db.conn.QueryRow(selectGroupQuery+"WHERE ad_id = $1 LIMIT 1", adId))
}

func scanGroup(row rowScanner) (Group, error) {
	var group Group
	err := row.Scan(
		&group.Id,
		&group.AdId,
		&group.Name,
		&group.Slug,
		&group.SeqId,
		&group.CreatedAt,
	)

	return group, err
}

func (db *PgGatherUpRepository) ListGroupsForUser(userId int) ([]Group, error) {
	rows, err := db.conn.Query(
		"SELECT g.id, g.ad_id, g.name, g.slug, g.seq_id, g.created_at "+
			"FROM group_members m JOIN groups g ON g.id = m.group_id WHERE m.user_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups = make([]Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

func (db *PgGatherUpRepository) GetGroupMembers(groupId int) ([]GroupMember, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.group_id, m.user_id, u.first_name, u.last_name, m.is_admin, m.created_at "+
			"FROM group_members m JOIN users u ON m.user_id = u.id WHERE m.group_id = $1 ORDER BY m.created_at",
		groupId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]GroupMember, 0)
	for rows.Next() {
		var m GroupMember
		if err = rows.Scan(
			&m.Id,
			&m.GroupId,
			&m.UserId,
			&m.FirstName,
			&m.LastName,
			&m.IsAdmin,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}

		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgGatherUpRepository) IsGroupMember(groupId, userId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM group_members WHERE group_id = $1 AND user_id = $2 LIMIT 1",
		groupId,
		userId,
	)

	var id int
	err := res.Scan(&id)

	return err == nil
}

func (db *PgGatherUpRepository) RemoveGroupMember(groupId, userId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM group_members WHERE group_id = $1 AND user_id = $2",
		groupId,
		userId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CreateMessage assigns the group's next sequence id and persists the
// message under it in one transaction, so the group's seq_id always
// points at the latest stored message.
func (db *PgGatherUpRepository) CreateMessage(msg Message) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRow(
		"UPDATE groups SET seq_id = seq_id + 1 WHERE id = $1 RETURNING seq_id",
		msg.GroupId,
	).Scan(&msg.SeqId)
	if err != nil {
		return Message{}, err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err = tx.QueryRow(
		"INSERT INTO messages (seq_id, group_id, user_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id",
		msg.SeqId,
		msg.GroupId,
		msg.UserId,
		msg.Content,
		msg.CreatedAt,
	).Scan(&msg.Id)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgGatherUpRepository) GetMessages(groupId, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.seq_id, m.group_id, m.user_id, u.first_name || ' ' || u.last_name, m.content, m.created_at "+
			"FROM messages m JOIN users u ON m.user_id = u.id "+
			"WHERE m.group_id = $1 AND m.seq_id BETWEEN $2 AND $3 ORDER BY m.seq_id LIMIT $4",
		groupId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.SeqId,
			&msg.GroupId,
			&msg.UserId,
			&msg.SenderName,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgGatherUpRepository) UpsertSubscription(userId int, endpoint string) (Subscription, error) {
	res := db.conn.QueryRow(
		"INSERT INTO subscriptions (user_id, endpoint, created_at, updated_at) VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (user_id) DO UPDATE SET endpoint = EXCLUDED.endpoint, updated_at = EXCLUDED.updated_at "+
			"RETURNING id, user_id, endpoint",
		userId,
		endpoint,
		time.Now().UTC(),
	)

	var sub Subscription
	err := res.Scan(
		&sub.Id,
		&sub.UserId,
		&sub.Endpoint,
	)

	return sub, err
}

func (db *PgGatherUpRepository) GetSubscriptionByUserId(userId int) (Subscription, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, endpoint FROM subscriptions WHERE user_id = $1 LIMIT 1",
		userId,
	)

	var sub Subscription
	err := row.Scan(
		&sub.Id,
		&sub.UserId,
		&sub.Endpoint,
	)

	return sub, err
}

func (db *PgGatherUpRepository) DeleteSubscription(userId int) error {
	_, err := db.conn.Exec("DELETE FROM subscriptions WHERE user_id = $1", userId)

	return err
}
