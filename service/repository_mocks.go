package service

import (
	"context"
	"time"

	"digido/events"
	"digido/models"

	"github.com/stretchr/testify/mock"
)

// MockUserPrefsRepository is a mock implementation of UserPrefsRepository
type MockUserPrefsRepository struct {
	mock.Mock
}

func (m *MockUserPrefsRepository) ListEnabled(ctx context.Context, limit int) ([]*models.UserPrefs, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserPrefs), args.Error(1)
}

func (m *MockUserPrefsRepository) GetByID(ctx context.Context, userID string) (*models.UserPrefs, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserPrefs), args.Error(1)
}

func (m *MockUserPrefsRepository) AdvanceLastSentOn(ctx context.Context, userID string, localDate time.Time) error {
	args := m.Called(ctx, userID, localDate)
	return args.Error(0)
}

func (m *MockUserPrefsRepository) Upsert(ctx context.Context, prefs *models.UserPrefs) error {
	args := m.Called(ctx, prefs)
	return args.Error(0)
}

// MockSummaryRunRepository is a mock implementation of SummaryRunRepository
type MockSummaryRunRepository struct {
	mock.Mock
}

func (m *MockSummaryRunRepository) TryClaim(ctx context.Context, userID, flow string, summaryDate time.Time) (*models.SummaryRun, error) {
	args := m.Called(ctx, userID, flow, summaryDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SummaryRun), args.Error(1)
}

func (m *MockSummaryRunRepository) MarkRunning(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSummaryRunRepository) MarkSucceeded(ctx context.Context, id int64, metadata map[string]interface{}) error {
	args := m.Called(ctx, id, metadata)
	return args.Error(0)
}

func (m *MockSummaryRunRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockSummaryRunRepository) GetByID(ctx context.Context, id int64) (*models.SummaryRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SummaryRun), args.Error(1)
}

func (m *MockSummaryRunRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*models.SummaryRun, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SummaryRun), args.Error(1)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockOutboxRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, id int64, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	args := m.Called(ctx, id, attempts, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetByID(ctx context.Context, id int64) (*models.OutboxEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OutboxEntry), args.Error(1)
}

// MockSummaryRepository is a mock implementation of SummaryRepository
type MockSummaryRepository struct {
	mock.Mock
}

func (m *MockSummaryRepository) Insert(ctx context.Context, summary *models.DailySummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockSummaryRepository) GetLatest(ctx context.Context, userID string) (*models.DailySummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailySummary), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository handles
// are set once with SetRepositories; Publish calls are recorded for
// assertion like any other expectation.
type MockUnitOfWork struct {
	mock.Mock

	prefsRepo   UserPrefsRepository
	runRepo     SummaryRunRepository
	outboxRepo  OutboxRepository
	summaryRepo SummaryRepository
}

// SetRepositories wires the repository mocks returned by the accessors
func (m *MockUnitOfWork) SetRepositories(prefs UserPrefsRepository, runs SummaryRunRepository, outbox OutboxRepository, summaries SummaryRepository) {
	m.prefsRepo = prefs
	m.runRepo = runs
	m.outboxRepo = outbox
	m.summaryRepo = summaries
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Publish(event events.Event) {
	m.Called(event)
}

func (m *MockUnitOfWork) UserPrefsRepository() UserPrefsRepository {
	return m.prefsRepo
}

func (m *MockUnitOfWork) SummaryRunRepository() SummaryRunRepository {
	return m.runRepo
}

func (m *MockUnitOfWork) OutboxRepository() OutboxRepository {
	return m.outboxRepo
}

func (m *MockUnitOfWork) SummaryRepository() SummaryRepository {
	return m.summaryRepo
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockContentGenerator is a mock implementation of ContentGenerator
type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) Generate(ctx context.Context, userID string, summaryDate time.Time) (string, error) {
	args := m.Called(ctx, userID, summaryDate)
	return args.String(0), args.Error(1)
}

// MockChannelSender is a mock implementation of ChannelSender
type MockChannelSender struct {
	mock.Mock

	channel models.Channel
}

// NewMockChannelSender creates a sender mock bound to one channel
func NewMockChannelSender(channel models.Channel) *MockChannelSender {
	return &MockChannelSender{channel: channel}
}

func (m *MockChannelSender) Channel() models.Channel {
	return m.channel
}

func (m *MockChannelSender) Send(ctx context.Context, entry *models.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockSummaryService is a mock implementation of SummaryService
type MockSummaryService struct {
	mock.Mock
}

func (m *MockSummaryService) RunForUser(ctx context.Context, prefs *models.UserPrefs, summaryDate time.Time) error {
	args := m.Called(ctx, prefs, summaryDate)
	return args.Error(0)
}

func (m *MockSummaryService) ForceRun(ctx context.Context, userID string, summaryDate time.Time, deliver bool) error {
	args := m.Called(ctx, userID, summaryDate, deliver)
	return args.Error(0)
}

// MockDispatcherService is a mock implementation of DispatcherService
type MockDispatcherService struct {
	mock.Mock
}

func (m *MockDispatcherService) DrainOutbox(ctx context.Context, batchSize int) (*DeliveryReport, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DeliveryReport), args.Error(1)
}
