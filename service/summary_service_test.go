package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"digido/events"
	"digido/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSummaryTestMocks() (*MockUnitOfWork, *MockUnitOfWorkFactory, *MockUserPrefsRepository, *MockSummaryRunRepository, *MockOutboxRepository, *MockSummaryRepository) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockPrefsRepo := new(MockUserPrefsRepository)
	mockRunRepo := new(MockSummaryRunRepository)
	mockOutboxRepo := new(MockOutboxRepository)
	mockSummaryRepo := new(MockSummaryRepository)

	mockUoW.SetRepositories(mockPrefsRepo, mockRunRepo, mockOutboxRepo, mockSummaryRepo)
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	return mockUoW, mockFactory, mockPrefsRepo, mockRunRepo, mockOutboxRepo, mockSummaryRepo
}

func TestSummaryService_RunForUser_Success(t *testing.T) {
	ctx := context.Background()
	mockUoW, mockFactory, mockPrefsRepo, mockRunRepo, mockOutboxRepo, mockSummaryRepo := newSummaryTestMocks()
	mockGenerator := new(MockContentGenerator)

	prefs := &models.UserPrefs{
		UserID:           "user-1",
		Timezone:         "UTC",
		SummaryTime:      "08:00",
		SummaryEnabled:   true,
		DeliveryChannels: []models.Channel{models.ChannelSMS, models.ChannelPush},
		PhoneNumber:      "+15551234567",
	}
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	run := &models.SummaryRun{ID: 7, UserID: "user-1", Flow: models.FlowDailySummary, SummaryDate: summaryDate, Status: models.RunStatusPending}

	mockRunRepo.On("TryClaim", mock.Anything, "user-1", models.FlowDailySummary, summaryDate).Return(run, nil)
	mockRunRepo.On("MarkRunning", mock.Anything, int64(7)).Return(nil)
	mockGenerator.On("Generate", mock.Anything, "user-1", summaryDate).Return("your day in review", nil)

	mockRunRepo.On("MarkSucceeded", mock.Anything, int64(7), mock.MatchedBy(func(md map[string]interface{}) bool {
		return md["content_length"] == len("your day in review") && md["delivered"] == true
	})).Return(nil)

	mockSummaryRepo.On("Insert", mock.Anything, mock.MatchedBy(func(s *models.DailySummary) bool {
		return s.UserID == "user-1" && s.Content == "your day in review"
	})).Return(nil)

	// One entry per enabled channel, each with its own dedup key
	seenKeys := make(map[string]bool)
	mockOutboxRepo.On("Enqueue", mock.Anything, mock.MatchedBy(func(e *models.OutboxEntry) bool {
		seenKeys[e.DedupKey.String()] = true
		return e.RunID == 7 && e.Payload.Content == "your day in review" && e.Payload.Address != ""
	})).Return(nil).Twice()

	mockPrefsRepo.On("AdvanceLastSentOn", mock.Anything, "user-1", summaryDate).Return(nil)

	mockUoW.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		gen, ok := e.(events.SummaryGeneratedEvent)
		return ok && gen.UserID == "user-1" && gen.RunID == 7 && len(gen.Channels) == 2
	})).Return()

	service := NewSummaryService(mockFactory, mockGenerator, time.Minute)
	err := service.RunForUser(ctx, prefs, summaryDate)

	require.NoError(t, err)
	assert.Len(t, seenKeys, 2, "each outbox entry gets a distinct dedup key")
	mockRunRepo.AssertExpectations(t)
	mockOutboxRepo.AssertExpectations(t)
	mockSummaryRepo.AssertExpectations(t)
	mockPrefsRepo.AssertExpectations(t)
	mockUoW.AssertExpectations(t)
}

func TestSummaryService_RunForUser_AlreadyClaimed(t *testing.T) {
	ctx := context.Background()
	_, mockFactory, _, mockRunRepo, _, _ := newSummaryTestMocks()
	mockGenerator := new(MockContentGenerator)

	prefs := &models.UserPrefs{UserID: "user-1", DeliveryChannels: []models.Channel{models.ChannelPush}}
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	mockRunRepo.On("TryClaim", mock.Anything, "user-1", models.FlowDailySummary, summaryDate).Return(nil, ErrAlreadyClaimed)

	service := NewSummaryService(mockFactory, mockGenerator, time.Minute)
	err := service.RunForUser(ctx, prefs, summaryDate)

	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	mockGenerator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSummaryService_RunForUser_GenerationFails(t *testing.T) {
	ctx := context.Background()
	mockUoW, mockFactory, mockPrefsRepo, mockRunRepo, mockOutboxRepo, _ := newSummaryTestMocks()
	mockGenerator := new(MockContentGenerator)

	prefs := &models.UserPrefs{UserID: "user-1", DeliveryChannels: []models.Channel{models.ChannelPush}}
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	run := &models.SummaryRun{ID: 9, UserID: "user-1", SummaryDate: summaryDate, Status: models.RunStatusPending}

	genErr := errors.New("flow returned status 500")
	mockRunRepo.On("TryClaim", mock.Anything, "user-1", models.FlowDailySummary, summaryDate).Return(run, nil)
	mockRunRepo.On("MarkRunning", mock.Anything, int64(9)).Return(nil)
	mockGenerator.On("Generate", mock.Anything, "user-1", summaryDate).Return("", genErr)
	mockRunRepo.On("MarkFailed", mock.Anything, int64(9), genErr.Error()).Return(nil)

	mockUoW.On("Publish", mock.MatchedBy(func(e events.Event) bool {
		failed, ok := e.(events.SummaryFailedEvent)
		return ok && failed.RunID == 9 && failed.Reason == genErr.Error()
	})).Return()

	service := NewSummaryService(mockFactory, mockGenerator, time.Minute)
	err := service.RunForUser(ctx, prefs, summaryDate)

	require.Error(t, err)
	mockRunRepo.AssertExpectations(t)
	mockUoW.AssertExpectations(t)

	// No delivery and no last-sent advance on failure; the user stays
	// eligible for the rest of the local day
	mockOutboxRepo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	mockPrefsRepo.AssertNotCalled(t, "AdvanceLastSentOn", mock.Anything, mock.Anything, mock.Anything)
}

func TestSummaryService_ForceRun_NoSend(t *testing.T) {
	ctx := context.Background()
	mockUoW, mockFactory, mockPrefsRepo, mockRunRepo, mockOutboxRepo, mockSummaryRepo := newSummaryTestMocks()
	mockGenerator := new(MockContentGenerator)

	prefs := &models.UserPrefs{
		UserID:           "user-1",
		Timezone:         "UTC",
		SummaryTime:      "08:00",
		SummaryEnabled:   true,
		DeliveryChannels: []models.Channel{models.ChannelPush},
	}
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	run := &models.SummaryRun{ID: 11, UserID: "user-1", SummaryDate: summaryDate, Status: models.RunStatusPending}

	mockPrefsRepo.On("GetByID", mock.Anything, "user-1").Return(prefs, nil)
	mockRunRepo.On("TryClaim", mock.Anything, "user-1", models.FlowDailySummary, summaryDate).Return(run, nil)
	mockRunRepo.On("MarkRunning", mock.Anything, int64(11)).Return(nil)
	mockGenerator.On("Generate", mock.Anything, "user-1", summaryDate).Return("dry run content", nil)
	mockRunRepo.On("MarkSucceeded", mock.Anything, int64(11), mock.MatchedBy(func(md map[string]interface{}) bool {
		return md["delivered"] == false
	})).Return(nil)
	mockSummaryRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockPrefsRepo.On("AdvanceLastSentOn", mock.Anything, "user-1", summaryDate).Return(nil)
	mockUoW.On("Publish", mock.Anything).Return()

	service := NewSummaryService(mockFactory, mockGenerator, time.Minute)
	err := service.ForceRun(ctx, "user-1", summaryDate, false)

	require.NoError(t, err)
	mockOutboxRepo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	mockSummaryRepo.AssertExpectations(t)
}

func TestSummaryService_ForceRun_UnknownUser(t *testing.T) {
	ctx := context.Background()
	_, mockFactory, mockPrefsRepo, mockRunRepo, _, _ := newSummaryTestMocks()
	mockGenerator := new(MockContentGenerator)

	mockPrefsRepo.On("GetByID", mock.Anything, "ghost").Return(nil, nil)

	service := NewSummaryService(mockFactory, mockGenerator, time.Minute)
	err := service.ForceRun(ctx, "ghost", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	mockRunRepo.AssertNotCalled(t, "TryClaim", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
