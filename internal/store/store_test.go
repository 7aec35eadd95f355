package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/imgjobs/internal/store"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("imgjobs_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// A second run finds nothing to apply.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newJob(session uuid.UUID, params models.Params, submitted time.Time) *models.Job {
	return &models.Job{
		ID:          uuid.NewString(),
		SessionID:   session,
		Operation:   params.Operation(),
		Params:      params,
		Filename:    "cat.png",
		Status:      models.JobStatusPending,
		SubmittedAt: submitted,
		UpdatedAt:   submitted,
	}
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	assert.NoError(t, s.Ping(context.Background()))
}

func TestCreateAndGetJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Crop{Left: "1", Top: "2", Right: "30", Bottom: "40"}, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.SessionID, got.SessionID)
	assert.Equal(t, models.OpCrop, got.Operation)
	assert.Equal(t, models.Crop{Left: "1", Top: "2", Right: "30", Bottom: "40"}, got.Params)
	assert.Equal(t, "cat.png", got.Filename)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Empty(t, got.ResultURL)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, job.SubmittedAt.Equal(got.SubmittedAt))
}

func TestCreateJob_ParamlessOperation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Grayscale{}, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Grayscale{}, got.Params)
	assert.Empty(t, got.ParamValues())
}

func TestCreateJob_Duplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Resize{Width: "10", Height: "10"}, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))
	assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicateKey)
}

func TestGetJob_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetJob(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateJobStatus_Success(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Resize{Width: "800", Height: "600"}, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusStarted))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusSuccess,
		store.WithResultURL("http://backend/download-result/"+job.ID)))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, got.Status)
	assert.Equal(t, "http://backend/download-result/"+job.ID, got.ResultURL)
	assert.NotNil(t, got.CompletedAt)
}

func TestUpdateJobStatus_Failure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Sepia{}, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailure,
		store.WithErrorDetail("cannot identify image file")))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailure, got.Status)
	assert.Equal(t, "cannot identify image file", got.ErrorDetail)
	assert.Empty(t, got.ResultURL)
}

func TestUpdateJobStatus_TerminalIsFinal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := newJob(uuid.New(), models.Resize{Width: "1", Height: "1"}, time.Now().UTC())
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRevoked))

	// Same terminal status again is accepted and changes nothing.
	assert.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRevoked))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusSuccess)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRevoked, got.Status)
}

func TestUpdateJobStatus_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	err := s.UpdateJobStatus(context.Background(), "missing", models.JobStatusStarted)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListJobs_FilterAndPaginate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	sessionA := uuid.New()
	sessionB := uuid.New()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var aIDs []string
	for i := 0; i < 5; i++ {
		j := newJob(sessionA, models.Resize{Width: strconv.Itoa(i + 1), Height: strconv.Itoa(i + 1)}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateJob(ctx, j))
		aIDs = append(aIDs, j.ID)
	}
	require.NoError(t, s.CreateJob(ctx, newJob(sessionA, models.Grayscale{}, base.Add(time.Hour))))
	require.NoError(t, s.CreateJob(ctx, newJob(sessionB, models.Resize{Width: "9", Height: "9"}, base)))

	jobs, total, err := s.ListJobs(ctx, store.JobFilter{SessionID: &sessionA, Operation: models.OpResize, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, jobs, 2)
	// Newest first.
	assert.Equal(t, aIDs[4], jobs[0].ID)
	assert.Equal(t, aIDs[3], jobs[1].ID)

	jobs, _, err = s.ListJobs(ctx, store.JobFilter{SessionID: &sessionA, Operation: models.OpResize, Limit: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, aIDs[0], jobs[0].ID)

	_, total, err = s.ListJobs(ctx, store.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	_, total, err = s.ListJobs(ctx, store.JobFilter{Status: models.JobStatusSuccess})
	require.NoError(t, err)
	assert.Zero(t, total)
}
