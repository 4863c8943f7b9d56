package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"digido/models"
	"digido/repository/testutil"
	"digido/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryRunRepository_TryClaim(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRunRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("first claim wins", func(t *testing.T) {
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, summaryDate)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.NotZero(t, run.ID)
		assert.Equal(t, models.RunStatusPending, run.Status)
	})

	t.Run("second claim for same date loses", func(t *testing.T) {
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, summaryDate)
		assert.ErrorIs(t, err, service.ErrAlreadyClaimed)
		assert.Nil(t, run)
	})

	t.Run("different date claims independently", func(t *testing.T) {
		nextDay := summaryDate.AddDate(0, 0, 1)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, nextDay)
		require.NoError(t, err)
		assert.NotNil(t, run)
	})

	t.Run("time of day is ignored in the claim key", func(t *testing.T) {
		sameDay := time.Date(2024, 6, 15, 17, 42, 0, 0, time.UTC)
		_, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, sameDay)
		assert.ErrorIs(t, err, service.ErrAlreadyClaimed)
	})
}

func TestSummaryRunRepository_ClaimAfterTerminalStates(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRunRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))

	t.Run("failed run does not block a fresh claim", func(t *testing.T) {
		date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, run.ID, "flow unavailable"))

		retry, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)
		assert.NotEqual(t, run.ID, retry.ID)
	})

	t.Run("succeeded run keeps blocking", func(t *testing.T) {
		date := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)
		require.NoError(t, repo.MarkSucceeded(ctx, run.ID, map[string]interface{}{"content_length": 42}))

		_, err = repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		assert.ErrorIs(t, err, service.ErrAlreadyClaimed)
	})
}

func TestSummaryRunRepository_ConcurrentClaims(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRunRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))
	date := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	const claimers = 8
	var wg sync.WaitGroup
	results := make([]error, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, service.ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent claimer wins")
}

func TestSummaryRunRepository_StatusTransitions(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRunRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))

	t.Run("pending to running to succeeded", func(t *testing.T) {
		date := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)

		require.NoError(t, repo.MarkRunning(ctx, run.ID))
		require.NoError(t, repo.MarkSucceeded(ctx, run.ID, map[string]interface{}{"content_length": 17}))

		got, err := repo.GetByID(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RunStatusSucceeded, got.Status)
		assert.NotNil(t, got.FinishedAt)
		assert.EqualValues(t, 17, got.Metadata["content_length"])
	})

	t.Run("terminal runs reject further transitions", func(t *testing.T) {
		date := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, run.ID, "boom"))

		assert.ErrorIs(t, repo.MarkRunning(ctx, run.ID), service.ErrNotPending)
		assert.ErrorIs(t, repo.MarkSucceeded(ctx, run.ID, nil), service.ErrNotPending)
	})

	t.Run("failure reason lands in metadata", func(t *testing.T) {
		date := time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC)
		run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, run.ID, "flow returned status 502"))

		got, err := repo.GetByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "flow returned status 502", got.Metadata["error"])
	})
}

func TestSummaryRunRepository_ListStale(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRunRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))

	date := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	run, err := repo.TryClaim(ctx, "user-1", models.FlowDailySummary, date)
	require.NoError(t, err)
	require.NoError(t, repo.MarkRunning(ctx, run.ID))

	t.Run("fresh run is not stale", func(t *testing.T) {
		stale, err := repo.ListStale(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)
	})

	t.Run("run older than cutoff is stale", func(t *testing.T) {
		stale, err := repo.ListStale(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, run.ID, stale[0].ID)
	})

	t.Run("terminal run is never stale", func(t *testing.T) {
		require.NoError(t, repo.MarkSucceeded(ctx, run.ID, nil))
		stale, err := repo.ListStale(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)
	})
}
