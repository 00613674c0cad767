package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type programRepoStub struct {
	programs        map[int64]*models.Program
	nextID          int64
	submissionCount int
	deleted         []int64
}

func newProgramRepoStub() *programRepoStub {
	return &programRepoStub{programs: make(map[int64]*models.Program)}
}

func (s *programRepoStub) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	result := make([]models.Program, 0, len(s.programs))
	for _, p := range s.programs {
		result = append(result, *p)
	}
	return result, len(result), nil
}

func (s *programRepoStub) FindByID(ctx context.Context, id int64) (*models.Program, error) {
	p, ok := s.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (s *programRepoStub) Create(ctx context.Context, program *models.Program) error {
	s.nextID++
	program.ID = s.nextID
	copied := *program
	s.programs[program.ID] = &copied
	return nil
}

func (s *programRepoStub) Update(ctx context.Context, program *models.Program) error {
	if _, ok := s.programs[program.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *program
	s.programs[program.ID] = &copied
	return nil
}

func (s *programRepoStub) Delete(ctx context.Context, id int64) error {
	delete(s.programs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *programRepoStub) CountSubmissions(ctx context.Context, id int64) (int, error) {
	return s.submissionCount, nil
}

func TestProgramServiceCreateAndGet(t *testing.T) {
	repo := newProgramRepoStub()
	audit := &auditStub{}
	svc := NewProgramService(repo, audit, nil, nil)

	created, err := svc.Create(context.Background(), CreateProgramRequest{
		Title: "  Webinar Statistika  ", Division: "PSDM", Period: "2026", LeadUserID: "koordinator-1",
	}, ketuaClaims())
	require.NoError(t, err)
	assert.Equal(t, "Webinar Statistika", created.Title)
	assert.Len(t, audit.logs, 1)

	loaded, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, loaded.Title)

	_, err = svc.Get(context.Background(), 404)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestProgramServiceCreateValidation(t *testing.T) {
	svc := NewProgramService(newProgramRepoStub(), nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateProgramRequest{Division: "PSDM"}, ketuaClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProgramServiceUpdate(t *testing.T) {
	repo := newProgramRepoStub()
	svc := NewProgramService(repo, nil, nil, nil)
	created, err := svc.Create(context.Background(), CreateProgramRequest{
		Title: "Webinar", Division: "PSDM", Period: "2026", LeadUserID: "koordinator-1",
	}, ketuaClaims())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateProgramRequest{
		Title: "Webinar Nasional", Division: "PSDM", Period: "2026", LeadUserID: "koordinator-1",
	}, ketuaClaims())
	require.NoError(t, err)
	assert.Equal(t, "Webinar Nasional", updated.Title)

	_, err = svc.Update(context.Background(), 404, UpdateProgramRequest{
		Title: "x", Division: "y", Period: "z", LeadUserID: "u",
	}, ketuaClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestProgramServiceDeleteGuard(t *testing.T) {
	repo := newProgramRepoStub()
	svc := NewProgramService(repo, nil, nil, nil)
	created, err := svc.Create(context.Background(), CreateProgramRequest{
		Title: "Webinar", Division: "PSDM", Period: "2026", LeadUserID: "koordinator-1",
	}, ketuaClaims())
	require.NoError(t, err)

	// A program with submissions attached cannot be removed.
	repo.submissionCount = 2
	err = svc.Delete(context.Background(), created.ID, ketuaClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	repo.submissionCount = 0
	require.NoError(t, svc.Delete(context.Background(), created.ID, ketuaClaims()))
	assert.Equal(t, []int64{created.ID}, repo.deleted)

	err = svc.Delete(context.Background(), created.ID, ketuaClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
