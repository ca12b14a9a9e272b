package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mbeoliero/singleton/domain/entity"
)

// MockTrialRepo implements repo.TrialRepo for testing
type MockTrialRepo struct {
	mu         sync.Mutex
	trials     map[uint64]*entity.Trial
	CreateFunc func(ctx context.Context, trial *entity.Trial) error

	// Call tracking
	CreateCalls []*entity.Trial
}

func NewMockTrialRepo() *MockTrialRepo {
	return &MockTrialRepo{
		trials: make(map[uint64]*entity.Trial),
	}
}

func (m *MockTrialRepo) Create(ctx context.Context, trial *entity.Trial) error {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, trial)
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, trial)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[trial.Id] = trial
	return nil
}

func (m *MockTrialRepo) FindById(ctx context.Context, id uint64) (*entity.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trials[id], nil
}

func (m *MockTrialRepo) ListByPolicy(ctx context.Context, policy string, limit int) ([]*entity.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.Trial
	for _, t := range m.trials {
		if t.Policy == policy {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockTrialCache implements repo.TrialCache for testing
type MockTrialCache struct {
	mu      sync.Mutex
	latest  map[string]*entity.Trial
	GetErr  error
	SetErr  error
	GetHits int
}

func NewMockTrialCache() *MockTrialCache {
	return &MockTrialCache{latest: make(map[string]*entity.Trial)}
}

func (m *MockTrialCache) SetLatest(ctx context.Context, trial *entity.Trial) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[trial.Policy] = trial
	return nil
}

func (m *MockTrialCache) GetLatest(ctx context.Context, policy string) (*entity.Trial, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.latest[policy]
	if ok {
		m.GetHits++
	}
	return t, nil
}

// ErrMock is a generic error for testing
var ErrMock = errors.New("mock error")
