package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/models"
	"github.com/ternarybob/taskqueue/internal/schema"
)

// mockTaskQueueStorage is a mock implementation of interfaces.TaskQueueStorage for testing.
type mockTaskQueueStorage struct {
	mock.Mock
}

func (m *mockTaskQueueStorage) FindOrCreateTQ(ctx context.Context, c models.CanonicalRequirements, fingerprint string, priorityHint float64) (int64, error) {
	args := m.Called(ctx, c, fingerprint, priorityHint)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTaskQueueStorage) AttachJob(ctx context.Context, tqID, jobID int64, priorityHint float64) error {
	args := m.Called(ctx, tqID, jobID, priorityHint)
	return args.Error(0)
}

func (m *mockTaskQueueStorage) DetachJob(ctx context.Context, jobID int64) (int64, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTaskQueueStorage) DeleteTQ(ctx context.Context, tqID int64) error {
	args := m.Called(ctx, tqID)
	return args.Error(0)
}

func (m *mockTaskQueueStorage) DeleteTQIfEmpty(ctx context.Context, tqID int64) (bool, error) {
	args := m.Called(ctx, tqID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTaskQueueStorage) RetrieveTQs(ctx context.Context) ([]models.TaskQueue, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.TaskQueue), args.Error(1)
}

func (m *mockTaskQueueStorage) GetTaskQueue(ctx context.Context, tqID int64) (models.TaskQueue, error) {
	args := m.Called(ctx, tqID)
	return args.Get(0).(models.TaskQueue), args.Error(1)
}

func (m *mockTaskQueueStorage) GetNumTaskQueues(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockTaskQueueStorage) GetTaskQueueForJobs(ctx context.Context, jobIDs []int64) (map[int64]int64, error) {
	args := m.Called(ctx, jobIDs)
	return args.Get(0).(map[int64]int64), args.Error(1)
}

func (m *mockTaskQueueStorage) MatchCandidates(ctx context.Context, r models.ResourceDescription) ([]models.TaskQueue, error) {
	args := m.Called(ctx, r)
	return args.Get(0).([]models.TaskQueue), args.Error(1)
}

func (m *mockTaskQueueStorage) OldestJob(ctx context.Context, tqID int64) (models.Job, error) {
	args := m.Called(ctx, tqID)
	return args.Get(0).(models.Job), args.Error(1)
}

func TestMatcher_MatchAndGetTaskQueue_OrdersByShareDescending(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{NumQueuesToGet: 2}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{
		{TQID: 1, Share: 0.2},
		{TQID: 2, Share: 0.7},
		{TQID: 3, Share: 0.1},
	}, nil)

	m := New(store, schema.NewPlatformOrder(nil), 3)
	ids, err := m.MatchAndGetTaskQueue(context.Background(), resource)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids)
	store.AssertExpectations(t)
}

func TestMatcher_MatchAndGetTaskQueue_DefaultsToOneQueue(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{
		{TQID: 1, Share: 0.5},
		{TQID: 2, Share: 0.5},
	}, nil)

	m := New(store, schema.NewPlatformOrder(nil), 3)
	ids, err := m.MatchAndGetTaskQueue(context.Background(), resource)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestMatcher_MatchAndGetTaskQueue_RejectsNegativeCPUTime(t *testing.T) {
	store := new(mockTaskQueueStorage)
	m := New(store, schema.NewPlatformOrder(nil), 3)
	_, err := m.MatchAndGetTaskQueue(context.Background(), models.ResourceDescription{CPUTime: -1})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.BadRequest))
}

func TestMatcher_MatchAndGetJob_DispatchesOldestJobFromChosenTQ(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{
		{TQID: 1, Share: 1.0},
	}, nil)
	store.On("OldestJob", mock.Anything, int64(1)).Return(models.Job{JobID: 100, TQID: 1}, nil)
	store.On("DetachJob", mock.Anything, int64(100)).Return(int64(1), nil)

	m := New(store, schema.NewPlatformOrder(nil), 3)
	result, err := m.MatchAndGetJob(context.Background(), resource)
	require.NoError(t, err)
	assert.True(t, result.MatchFound)
	assert.Equal(t, int64(100), result.JobID)
	assert.Equal(t, int64(1), result.TQID)
}

func TestMatcher_MatchAndGetJob_NoCandidatesReturnsNotFound(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{}, nil)

	m := New(store, schema.NewPlatformOrder(nil), 3)
	result, err := m.MatchAndGetJob(context.Background(), resource)
	require.NoError(t, err)
	assert.False(t, result.MatchFound)
}

func TestMatcher_MatchAndGetJob_RetriesOnLostDetachRace(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{
		{TQID: 1, Share: 1.0},
	}, nil)
	store.On("OldestJob", mock.Anything, int64(1)).Return(models.Job{JobID: 100, TQID: 1}, nil).Once()
	store.On("DetachJob", mock.Anything, int64(100)).Return(int64(0), errs.New(errs.UnknownJob, "DetachJob")).Once()
	store.On("OldestJob", mock.Anything, int64(1)).Return(models.Job{JobID: 101, TQID: 1}, nil).Once()
	store.On("DetachJob", mock.Anything, int64(101)).Return(int64(1), nil).Once()

	m := New(store, schema.NewPlatformOrder(nil), 3)
	result, err := m.MatchAndGetJob(context.Background(), resource)
	require.NoError(t, err)
	assert.Equal(t, int64(101), result.JobID)
}

func TestMatcher_MatchAndGetJob_ExhaustedRetryBudgetReportsNoMatch(t *testing.T) {
	store := new(mockTaskQueueStorage)
	resource := models.ResourceDescription{}
	store.On("MatchCandidates", mock.Anything, resource).Return([]models.TaskQueue{
		{TQID: 1, Share: 1.0},
	}, nil)
	store.On("OldestJob", mock.Anything, int64(1)).Return(models.Job{JobID: 100, TQID: 1}, nil)
	store.On("DetachJob", mock.Anything, int64(100)).Return(int64(0), errs.New(errs.UnknownJob, "DetachJob"))

	m := New(store, schema.NewPlatformOrder(nil), 2)
	result, err := m.MatchAndGetJob(context.Background(), resource)
	require.NoError(t, err)
	assert.False(t, result.MatchFound)
}

func TestWeightedPick_ZeroShareFallsBackToUniform(t *testing.T) {
	tqs := []models.TaskQueue{{TQID: 1, Share: 0}, {TQID: 2, Share: 0}}
	chosen := weightedPick(tqs)
	assert.Contains(t, []int64{1, 2}, chosen.TQID)
}

func TestWeightedPick_SingleCandidateAlwaysChosen(t *testing.T) {
	tqs := []models.TaskQueue{{TQID: 7, Share: 0.3}}
	assert.Equal(t, int64(7), weightedPick(tqs).TQID)
}
