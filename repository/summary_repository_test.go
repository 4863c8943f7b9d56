package repository

import (
	"context"
	"testing"
	"time"

	"digido/repository/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryRepository_Insert(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))

	t.Run("successful insert", func(t *testing.T) {
		summary := testutil.CreateTestDailySummary("user-1", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
		require.NoError(t, repo.Insert(ctx, summary))
		assert.NotZero(t, summary.ID)
		assert.False(t, summary.CreatedAt.IsZero())
	})

	t.Run("time of day is normalized away", func(t *testing.T) {
		withTime := testutil.CreateTestDailySummary("user-1", time.Date(2024, 6, 16, 17, 42, 0, 0, time.UTC))
		require.NoError(t, repo.Insert(ctx, withTime))

		got, err := repo.GetLatest(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "2024-06-16", got.SummaryDate.Format("2006-01-02"))
	})

	t.Run("one archive row per user and date", func(t *testing.T) {
		date := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Insert(ctx, testutil.CreateTestDailySummary("user-1", date)))

		err := repo.Insert(ctx, testutil.CreateTestDailySummary("user-1", date))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestSummaryRepository_GetLatest(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	prefsRepo := NewUserPrefsRepository(testDB.DB)
	repo := NewSummaryRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-1")))
	require.NoError(t, prefsRepo.Upsert(ctx, testutil.CreateTestPrefs("user-2")))

	t.Run("no summaries returns nil", func(t *testing.T) {
		got, err := repo.GetLatest(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("latest date wins regardless of insert order", func(t *testing.T) {
		newer := testutil.CreateTestDailySummary("user-1", time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC))
		newer.Content = "newer summary"
		older := testutil.CreateTestDailySummary("user-1", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
		older.Content = "older summary"

		require.NoError(t, repo.Insert(ctx, newer))
		require.NoError(t, repo.Insert(ctx, older))

		got, err := repo.GetLatest(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "newer summary", got.Content)
		assert.Equal(t, "2024-06-16", got.SummaryDate.Format("2006-01-02"))
	})

	t.Run("users do not see each other's archives", func(t *testing.T) {
		got, err := repo.GetLatest(ctx, "user-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
