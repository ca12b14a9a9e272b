package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/repo"
	"github.com/mbeoliero/singleton/internal/once"
)

func newTestService(t *testing.T) (*RaceService, *MockTrialRepo, *MockTrialCache) {
	t.Helper()

	trialRepo := NewMockTrialRepo()
	trialCache := NewMockTrialCache()
	repo.SetTrialRepo(trialRepo)
	repo.SetTrialCache(trialCache)
	t.Cleanup(func() {
		repo.SetTrialRepo(nil)
		repo.SetTrialCache(nil)
	})

	return NewRaceService(), trialRepo, trialCache
}

func TestRunTrial_CorrectPolicies(t *testing.T) {
	s, trialRepo, trialCache := newTestService(t)
	ctx := context.Background()

	for _, p := range once.Policies() {
		if !p.Correct() {
			continue
		}
		t.Run(p.String(), func(t *testing.T) {
			trial, err := s.RunTrial(ctx, TrialRequest{Policy: p, Threads: 100, Delay: time.Millisecond})
			require.NoError(t, err)

			assert.Equal(t, p.String(), trial.Policy)
			assert.Equal(t, 100, trial.Threads)
			assert.Len(t, trial.Identities, 100)
			assert.Equal(t, 1, trial.Distinct)
			assert.Equal(t, int64(0), trial.Incomplete)
			assert.Equal(t, int64(1), trial.Constructions)
			assert.False(t, trial.Violated)
			assert.True(t, trial.Correct)
			assert.True(t, trial.Expected())
			assert.Equal(t, p.Eager(), trial.ReadyBeforeGet)
			assert.NotZero(t, trial.Id)

			saved, err := trialRepo.FindById(ctx, trial.Id)
			require.NoError(t, err)
			assert.Same(t, trial, saved)

			cached, err := trialCache.GetLatest(ctx, p.String())
			require.NoError(t, err)
			assert.Same(t, trial, cached)
		})
	}
}

func TestReproduce_Unsynchronized(t *testing.T) {
	s, _, _ := newTestService(t)

	trial, rounds, err := s.Reproduce(context.Background(), TrialRequest{
		Policy:  once.PolicyUnsynchronized,
		Threads: 100,
		Delay:   10 * time.Millisecond,
	}, 20)
	require.NoError(t, err)

	assert.True(t, trial.Violated, "no duplicate after %d rounds", rounds)
	assert.Greater(t, trial.Distinct, 1)
	assert.GreaterOrEqual(t, trial.Constructions, int64(trial.Distinct))
	assert.False(t, trial.Correct)
	assert.True(t, trial.Expected())
	assert.LessOrEqual(t, rounds, 20)
}

func TestReproduce_CorrectPolicyRunsAllRounds(t *testing.T) {
	s, trialRepo, _ := newTestService(t)

	trial, rounds, err := s.Reproduce(context.Background(), TrialRequest{
		Policy:  once.PolicyDoubleChecked,
		Threads: 20,
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, rounds)
	assert.False(t, trial.Violated)
	assert.Len(t, trialRepo.CreateCalls, 3)
}

func TestReproduce_InvalidRounds(t *testing.T) {
	s, trialRepo, _ := newTestService(t)
	_, _, err := s.Reproduce(context.Background(), TrialRequest{Policy: once.PolicyHolder, Threads: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidRounds)

	_, _, err = s.Reproduce(context.Background(), TrialRequest{Policy: once.PolicyHolder, Threads: 1}, MaxRounds+1)
	assert.ErrorIs(t, err, ErrInvalidRounds)
	assert.Empty(t, trialRepo.CreateCalls)
}

func TestRunTrial_RecordsEffectiveDelay(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	// zero falls back to the policy default
	trial, err := s.RunTrial(ctx, TrialRequest{Policy: once.PolicyUnsynchronized, Threads: 2})
	require.NoError(t, err)
	assert.Equal(t, once.DefaultRaceWindow.Milliseconds(), trial.DelayMs)

	trial, err = s.RunTrial(ctx, TrialRequest{Policy: once.PolicyDoubleChecked, Threads: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(0), trial.DelayMs)

	trial, err = s.RunTrial(ctx, TrialRequest{Policy: once.PolicySyncBlock, Threads: 2, Delay: 3 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, int64(3), trial.DelayMs)

	// eager policies build before any caller arrives, so there is no window
	trial, err = s.RunTrial(ctx, TrialRequest{Policy: once.PolicyEagerConst, Threads: 2, Delay: 3 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, int64(0), trial.DelayMs)
}

func TestRunTrial_VisibilityHolds(t *testing.T) {
	s, _, _ := newTestService(t)

	for _, p := range []once.Policy{once.PolicyDoubleChecked, once.PolicyHolder} {
		for range 20 {
			trial, err := s.RunTrial(context.Background(), TrialRequest{Policy: p, Threads: 64})
			require.NoError(t, err)
			require.Equal(t, int64(0), trial.Incomplete, "policy %s", p)
			require.False(t, trial.Violated)
		}
	}
}

// halfBuilt hands every caller an instance whose marker was never written.
type halfBuilt struct{}

func (halfBuilt) Get() *entity.Instance {
	return &entity.Instance{Id: 7, Seq: 1, CreatedAt: time.Now()}
}

func (halfBuilt) Policy() once.Policy { return once.PolicyDoubleChecked }

func TestRaceCallers_CountsIncomplete(t *testing.T) {
	identities, incomplete, err := raceCallers(context.Background(), halfBuilt{}, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(10), incomplete)
	assert.Equal(t, 1, countDistinct(identities))

	oi := once.MustNew(once.PolicyHolder, NewInstanceFactory().New)
	_, incomplete, err = raceCallers(context.Background(), oi, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(0), incomplete)
}

func TestRunTrial_Validation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.RunTrial(ctx, TrialRequest{Policy: once.PolicyHolder, Threads: 0})
	assert.ErrorIs(t, err, ErrInvalidThreads)

	_, err = s.RunTrial(ctx, TrialRequest{Policy: once.PolicyHolder, Threads: MaxThreads + 1})
	assert.ErrorIs(t, err, ErrInvalidThreads)

	_, err = s.RunTrial(ctx, TrialRequest{Policy: once.Policy(0), Threads: 1})
	assert.ErrorIs(t, err, once.ErrUnknownPolicy)
}

func TestRunTrial_Timeout(t *testing.T) {
	s, trialRepo, _ := newTestService(t)

	_, err := s.RunTrial(context.Background(), TrialRequest{
		Policy:  once.PolicySyncMethod,
		Threads: 2,
		Delay:   500 * time.Millisecond,
		Timeout: 20 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTrialTimeout)
	assert.Empty(t, trialRepo.CreateCalls)
}

func TestRunTrial_SaveFailure(t *testing.T) {
	s, trialRepo, trialCache := newTestService(t)
	trialRepo.CreateFunc = func(ctx context.Context, trial *entity.Trial) error {
		return ErrMock
	}

	trial, err := s.RunTrial(context.Background(), TrialRequest{Policy: once.PolicyHolder, Threads: 4})
	assert.ErrorIs(t, err, ErrMock)
	assert.NotNil(t, trial)

	cached, _ := trialCache.GetLatest(context.Background(), once.PolicyHolder.String())
	assert.Nil(t, cached)
}

func TestRunTrial_CacheFailureIsNotFatal(t *testing.T) {
	s, _, trialCache := newTestService(t)
	trialCache.SetErr = ErrMock

	trial, err := s.RunTrial(context.Background(), TrialRequest{Policy: once.PolicySyncBlock, Threads: 4})
	require.NoError(t, err)
	assert.False(t, trial.Violated)
}

func TestRunTrial_WithoutStores(t *testing.T) {
	repo.SetTrialRepo(nil)
	repo.SetTrialCache(nil)
	s := NewRaceService()

	trial, err := s.RunTrial(context.Background(), TrialRequest{Policy: once.PolicyEagerBlock, Threads: 8})
	require.NoError(t, err)
	assert.True(t, trial.ReadyBeforeGet)

	_, err = s.GetTrial(context.Background(), trial.Id)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.LatestTrial(context.Background(), once.PolicyEagerBlock)
	assert.ErrorIs(t, err, ErrTrialNotFound)
}

func TestRunAll(t *testing.T) {
	s, trialRepo, _ := newTestService(t)

	trials, err := s.RunAll(context.Background(), 50, 2*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, trials, len(once.Policies()))

	for i, p := range once.Policies() {
		require.NotNil(t, trials[i])
		assert.Equal(t, p.String(), trials[i].Policy)
		assert.True(t, trials[i].Expected(), "policy %s", p)
	}
	assert.Len(t, trialRepo.CreateCalls, len(once.Policies()))
}

func TestRunAll_PropagatesError(t *testing.T) {
	s, _, _ := newTestService(t)
	_, err := s.RunAll(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidThreads)
}

func TestGetTrial(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	trial, err := s.RunTrial(ctx, TrialRequest{Policy: once.PolicyHolder, Threads: 3})
	require.NoError(t, err)

	got, err := s.GetTrial(ctx, trial.Id)
	require.NoError(t, err)
	assert.Equal(t, trial.Id, got.Id)

	_, err = s.GetTrial(ctx, trial.Id+1)
	assert.ErrorIs(t, err, ErrTrialNotFound)
}

func TestLatestTrial(t *testing.T) {
	s, trialRepo, trialCache := newTestService(t)
	ctx := context.Background()

	_, err := s.LatestTrial(ctx, once.PolicySyncMethod)
	assert.ErrorIs(t, err, ErrTrialNotFound)

	trial, err := s.RunTrial(ctx, TrialRequest{Policy: once.PolicySyncMethod, Threads: 3})
	require.NoError(t, err)

	got, err := s.LatestTrial(ctx, once.PolicySyncMethod)
	require.NoError(t, err)
	assert.Equal(t, trial.Id, got.Id)
	assert.Equal(t, 1, trialCache.GetHits)

	// cache errors fall back to the repo
	trialCache.GetErr = ErrMock
	got, err = s.LatestTrial(ctx, once.PolicySyncMethod)
	require.NoError(t, err)
	assert.Equal(t, trial.Id, got.Id)
	assert.Len(t, trialRepo.CreateCalls, 1)
}

func TestInstanceFactory(t *testing.T) {
	f := NewInstanceFactory()

	var wg sync.WaitGroup
	instances := make([]*entity.Instance, 10)
	for i := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			instances[i] = f.New()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), f.Built())
	ids := make(map[int64]struct{})
	for _, inst := range instances {
		assert.True(t, inst.Complete())
		ids[inst.Id] = struct{}{}
	}
	assert.Len(t, ids, 10)
}

func TestCountDistinct(t *testing.T) {
	assert.Equal(t, 0, countDistinct(nil))
	assert.Equal(t, 1, countDistinct([]int64{5, 5, 5}))
	assert.Equal(t, 3, countDistinct([]int64{1, 2, 3, 1}))
}
