package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/gatherup/gatherup/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Statements issued by the lifecycle transactions, matched verbatim.
const (
	lockRequestQuery    = "SELECT id, ad_id, user_id, answer FROM requests WHERE id = $1 FOR UPDATE"
	answerUpdateQuery   = "UPDATE requests SET answer = $2, updated_at = $3 WHERE id = $1"
	capacityTakeQuery   = "UPDATE ads SET available = available - 1, updated_at = $2 WHERE id = $1 AND available > 0"
	capacityReturnQuery = "UPDATE ads SET available = available + 1, updated_at = $2 WHERE id = $1"
	groupForAdQuery     = "SELECT id FROM groups WHERE ad_id = $1 LIMIT 1"
	memberDeleteQuery   = "DELETE FROM group_members USING groups " +
		"WHERE group_members.group_id = groups.id AND groups.ad_id = $1 AND group_members.user_id = $2"
	lockInterestQuery  = "SELECT id, answer FROM requests WHERE ad_id = $1 AND user_id = $2 FOR UPDATE"
	requestDeleteQuery = "DELETE FROM requests WHERE id = $1"
)

func newSqlmockRepo(t *testing.T) (*PgGatherUpRepository, sqlmock.Sqlmock) {
	conn, dbMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &PgGatherUpRepository{conn: conn}, dbMock
}

func requestRows(id, adId, userId int, answer *int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "ad_id", "user_id", "answer"})
	if answer != nil {
		return rows.AddRow(id, adId, userId, *answer)
	}
	return rows.AddRow(id, adId, userId, nil)
}

func intPtr(v int) *int { return &v }

// expectAccept queues the full statement sequence of a successful accept:
// lock, answer write, conditional capacity decrement, group resolution and
// the idempotent membership insert, committed as one unit.
func expectAccept(dbMock sqlmock.Sqlmock, requestId, adId, userId, groupId int) {
	dbMock.ExpectBegin()
	dbMock.ExpectQuery(lockRequestQuery).WithArgs(requestId).
		WillReturnRows(requestRows(requestId, adId, userId, nil))
	dbMock.ExpectExec(answerUpdateQuery).WithArgs(requestId, AnswerAccepted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec(capacityTakeQuery).WithArgs(adId, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectQuery(groupForAdQuery).WithArgs(adId).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(groupId))
	dbMock.ExpectExec(createMemberQuery).WithArgs(groupId, userId, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectCommit()
}

func TestAcceptRequest(t *testing.T) {
	t.Run("accepts a pending request, taking capacity and adding membership", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)
		expectAccept(dbMock, 7, 2, 4, 3)

		req, err := db.AcceptRequest(7)
		assert.NoError(t, err)
		assert.Equal(t, 7, req.Id)
		assert.Equal(t, 2, req.AdId)
		assert.Equal(t, 4, req.UserId)
		assert.NotNil(t, req.Answer)
		assert.Equal(t, AnswerAccepted, *req.Answer)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("re-accepting an accepted request is a committed no-op", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, intPtr(AnswerAccepted)))
		dbMock.ExpectCommit()

		req, err := db.AcceptRequest(7)
		assert.NoError(t, err)
		assert.Equal(t, AnswerAccepted, *req.Answer)
		// no second decrement and no second membership insert were issued
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("exhausted capacity rolls the transaction back", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, nil))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerAccepted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(capacityTakeQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectRollback()

		_, err := db.AcceptRequest(7)
		assert.ErrorIs(t, err, apperrors.ErrCapacityExhausted)
		// the rollback discards the answer write, so the request stays pending
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("ad without a group rolls back with a precondition error", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, nil))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerAccepted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(capacityTakeQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(groupForAdQuery).WithArgs(2).WillReturnError(sql.ErrNoRows)
		dbMock.ExpectRollback()

		_, err := db.AcceptRequest(7)
		assert.ErrorIs(t, err, apperrors.ErrNoGroupForAd)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("membership insert failure rolls back the answer and the decrement", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, nil))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerAccepted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(capacityTakeQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(groupForAdQuery).WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		dbMock.ExpectExec(createMemberQuery).WithArgs(3, 4, false, sqlmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		dbMock.ExpectRollback()

		_, err := db.AcceptRequest(7)
		assert.Error(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("missing request aborts before any write", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(99).WillReturnError(sql.ErrNoRows)
		dbMock.ExpectRollback()

		_, err := db.AcceptRequest(99)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestRejectRequest(t *testing.T) {
	t.Run("rejecting an accepted request compensates capacity and membership", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, intPtr(AnswerAccepted)))
		dbMock.ExpectExec(capacityReturnQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(memberDeleteQuery).WithArgs(2, 4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerRejected, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		req, err := db.RejectRequest(7)
		assert.NoError(t, err)
		assert.Equal(t, AnswerRejected, *req.Answer)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejecting a pending request skips compensation", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, nil))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerRejected, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		_, err := db.RejectRequest(7)
		assert.NoError(t, err)
		// no capacity increment, no membership delete
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("repeat reject changes nothing further", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, intPtr(AnswerRejected)))
		dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerRejected, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		_, err := db.RejectRequest(7)
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("compensation failure rolls back, leaving the answer untouched", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
			WillReturnRows(requestRows(7, 2, 4, intPtr(AnswerAccepted)))
		dbMock.ExpectExec(capacityReturnQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))
		dbMock.ExpectRollback()

		_, err := db.RejectRequest(7)
		assert.Error(t, err)
		// the answer update was never issued
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

// An accept followed by a reject is the compensation round-trip: the
// reject's capacity increment and membership delete mirror the accept's
// decrement and insert, so the ad ends where it started.
func TestAcceptThenRejectRoundTrip(t *testing.T) {
	db, dbMock := newSqlmockRepo(t)

	expectAccept(dbMock, 7, 2, 4, 3)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(lockRequestQuery).WithArgs(7).
		WillReturnRows(requestRows(7, 2, 4, intPtr(AnswerAccepted)))
	dbMock.ExpectExec(capacityReturnQuery).WithArgs(2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec(memberDeleteQuery).WithArgs(2, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec(answerUpdateQuery).WithArgs(7, AnswerRejected, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()

	accepted, err := db.AcceptRequest(7)
	assert.NoError(t, err)
	assert.Equal(t, AnswerAccepted, *accepted.Answer)

	rejected, err := db.RejectRequest(7)
	assert.NoError(t, err)
	assert.Equal(t, AnswerRejected, *rejected.Answer)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestRemoveInterest(t *testing.T) {
	t.Run("withdrawing an accepted request returns the capacity unit", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockInterestQuery).WithArgs(2, 4).
			WillReturnRows(sqlmock.NewRows([]string{"id", "answer"}).AddRow(7, AnswerAccepted))
		dbMock.ExpectExec(capacityReturnQuery).WithArgs(2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(memberDeleteQuery).WithArgs(2, 4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(requestDeleteQuery).WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		err := db.RemoveInterest(2, 4)
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("withdrawing a pending request leaves capacity alone", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockInterestQuery).WithArgs(2, 4).
			WillReturnRows(sqlmock.NewRows([]string{"id", "answer"}).AddRow(7, nil))
		dbMock.ExpectExec(memberDeleteQuery).WithArgs(2, 4).
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectExec(requestDeleteQuery).WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		err := db.RemoveInterest(2, 4)
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown request aborts before any write", func(t *testing.T) {
		db, dbMock := newSqlmockRepo(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockInterestQuery).WithArgs(2, 9).WillReturnError(sql.ErrNoRows)
		dbMock.ExpectRollback()

		err := db.RemoveInterest(2, 9)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
