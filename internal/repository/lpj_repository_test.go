package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/models"
)

func TestLPJRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLPJRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lpj")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	lpj := &models.LPJ{ProgramID: 9, SubmittedBy: "user-2"}
	require.NoError(t, repo.Create(context.Background(), lpj))
	require.Equal(t, int64(3), lpj.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLPJRepositoryGetByIDJoinsProgramTitle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLPJRepository(db)
	rows := sqlmock.NewRows([]string{"id", "program_id", "program_title", "submitted_by", "status", "note", "reviewed_by", "reviewed_at", "created_at"}).
		AddRow(int64(3), int64(9), "Pekan Statistika", "user-2", "submitted", nil, nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM lpj l JOIN programs p ON p.id = l.program_id")).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	lpj, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, "Pekan Statistika", lpj.ProgramTitle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLPJRepositoryApplyDecisionConcurrencyGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLPJRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lpj SET status = $1, note = $2, reviewed_by = $3, reviewed_at = $4")).
		WithArgs("approved", nil, "ketua-1", now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ApplyDecision(context.Background(), DecisionParams{
		ID: 3, Status: models.StatusApproved, ReviewedBy: "ketua-1", ReviewedAt: now,
	}))

	// Second write finds no reviewable row left.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lpj SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ApplyDecision(context.Background(), DecisionParams{
		ID: 3, Status: models.StatusApproved, ReviewedBy: "ketua-1", ReviewedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
