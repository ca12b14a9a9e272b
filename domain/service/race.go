package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/repo"
	"github.com/mbeoliero/singleton/infra/config"
	"github.com/mbeoliero/singleton/internal/once"
	"github.com/mbeoliero/singleton/pkg/id_gen"
	"github.com/mbeoliero/singleton/pkg/log"
)

const (
	MaxThreads         = 10000
	MaxRounds          = 1000
	DefaultTimeout     = 10 * time.Second
	DefaultMaxParallel = 4
)

var (
	ErrInvalidThreads   = errors.New("invalid threads")
	ErrInvalidRounds    = errors.New("invalid rounds")
	ErrTrialTimeout     = errors.New("trial did not finish in time")
	ErrTrialNotFound    = errors.New("trial not found")
	ErrStoreUnavailable = errors.New("trial store unavailable")
)

type TrialRequest struct {
	Policy  once.Policy
	Threads int
	// Delay widens the check-to-construction window. Zero keeps the policy's default.
	Delay time.Duration
	// Timeout bounds the join of all callers. Zero means DefaultTimeout.
	Timeout time.Duration
}

type RaceService struct {
	trialRepo   repo.TrialRepo
	trialCache  repo.TrialCache
	nodeId      string
	maxParallel int
}

func NewRaceService() *RaceService {
	s := &RaceService{
		trialRepo:   repo.GetTrialRepo(),
		trialCache:  repo.GetTrialCache(),
		maxParallel: DefaultMaxParallel,
	}
	if cfg := config.Get(); cfg != nil {
		s.nodeId = cfg.Server.NodeId
		if cfg.Race.MaxParallel > 0 {
			s.maxParallel = cfg.Race.MaxParallel
		}
	}
	return s
}

// RunTrial races req.Threads goroutines against a fresh initializer and records
// what each of them got back.
func (s *RaceService) RunTrial(ctx context.Context, req TrialRequest) (*entity.Trial, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	factory := NewInstanceFactory()
	var opts []once.Option
	if req.Delay > 0 {
		opts = append(opts, once.WithDelay(req.Delay))
	}
	oi, err := once.New(req.Policy, factory.New, opts...)
	if err != nil {
		return nil, err
	}
	readyBeforeGet := once.Ready(oi)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	identities, incomplete, err := raceCallers(ctx, oi, req.Threads, timeout)
	if err != nil {
		log.CtxError(ctx, "race failed, policy: %s, threads: %d, err: %v", req.Policy, req.Threads, err)
		return nil, err
	}
	cost := time.Since(start)

	id, err := id_gen.NextId(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate trial id failed: %w", err)
	}

	distinct := countDistinct(identities)
	trial := &entity.Trial{
		Id:             uint64(id),
		Policy:         req.Policy.String(),
		Threads:        req.Threads,
		DelayMs:        once.RaceWindow(oi).Milliseconds(),
		Identities:     identities,
		Distinct:       distinct,
		Incomplete:     incomplete,
		Constructions:  factory.Built(),
		ReadyBeforeGet: readyBeforeGet,
		Violated:       distinct > 1 || incomplete > 0,
		Correct:        req.Policy.Correct(),
		CostMs:         cost.Milliseconds(),
		NodeId:         s.nodeId,
		CreatedAt:      time.Now().UnixMilli(),
	}

	if !trial.Expected() {
		log.CtxError(ctx, "single instance violated, policy: %s, distinct: %d, incomplete: %d, constructions: %d", trial.Policy, trial.Distinct, trial.Incomplete, trial.Constructions)
	} else {
		log.CtxDebug(ctx, "trial done, policy: %s, threads: %d, distinct: %d, cost: %v", trial.Policy, trial.Threads, trial.Distinct, cost)
	}

	if s.trialRepo != nil {
		if err = s.trialRepo.Create(ctx, trial); err != nil {
			return trial, fmt.Errorf("save trial failed, id: %d, err: %w", trial.Id, err)
		}
	}
	if s.trialCache != nil {
		if err = s.trialCache.SetLatest(ctx, trial); err != nil {
			log.CtxWarn(ctx, "cache latest trial failed, policy: %s, err: %v", trial.Policy, err)
		}
	}
	return trial, nil
}

// Reproduce reruns the trial until one violates the single-instance property or
// rounds are exhausted. It returns the violating trial (or the last one) and the
// number of rounds used.
func (s *RaceService) Reproduce(ctx context.Context, req TrialRequest, rounds int) (*entity.Trial, int, error) {
	if rounds <= 0 || rounds > MaxRounds {
		return nil, 0, fmt.Errorf("%w: %d, must be in [1, %d]", ErrInvalidRounds, rounds, MaxRounds)
	}

	var last *entity.Trial
	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			return last, round - 1, err
		}
		trial, err := s.RunTrial(ctx, req)
		if err != nil {
			return trial, round, err
		}
		last = trial
		if trial.Violated {
			return trial, round, nil
		}
	}
	return last, rounds, nil
}

// RunAll runs one trial per policy, at most maxParallel at a time. Results follow once.Policies order.
func (s *RaceService) RunAll(ctx context.Context, threads int, delay time.Duration) ([]*entity.Trial, error) {
	policies := once.Policies()
	trials := make([]*entity.Trial, len(policies))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, p := range policies {
		g.Go(func() error {
			trial, err := s.RunTrial(gCtx, TrialRequest{Policy: p, Threads: threads, Delay: delay})
			if err != nil {
				return fmt.Errorf("policy %s: %w", p, err)
			}
			trials[i] = trial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

// GetTrial 查询试验记录
func (s *RaceService) GetTrial(ctx context.Context, id uint64) (*entity.Trial, error) {
	if s.trialRepo == nil {
		return nil, ErrStoreUnavailable
	}
	trial, err := s.trialRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if trial == nil {
		return nil, ErrTrialNotFound
	}
	return trial, nil
}

// LatestTrial 优先读缓存，未命中时回源数据库
func (s *RaceService) LatestTrial(ctx context.Context, policy once.Policy) (*entity.Trial, error) {
	if s.trialCache != nil {
		trial, err := s.trialCache.GetLatest(ctx, policy.String())
		if err != nil {
			log.CtxWarn(ctx, "read latest trial from cache failed, policy: %s, err: %v", policy, err)
		} else if trial != nil {
			return trial, nil
		}
	}

	if s.trialRepo == nil {
		return nil, ErrTrialNotFound
	}
	trials, err := s.trialRepo.ListByPolicy(ctx, policy.String(), 1)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, ErrTrialNotFound
	}
	return trials[0], nil
}

func validateRequest(req TrialRequest) error {
	if !req.Policy.Valid() {
		return fmt.Errorf("%w: %d", once.ErrUnknownPolicy, int(req.Policy))
	}
	if req.Threads < 1 || req.Threads > MaxThreads {
		return fmt.Errorf("%w: %d, must be in [1, %d]", ErrInvalidThreads, req.Threads, MaxThreads)
	}
	return nil
}

// raceCallers releases threads goroutines from one gate so their first Get calls overlap.
// It also counts callers that got back an instance whose fields were not all visible.
func raceCallers(ctx context.Context, oi once.Initializer[*entity.Instance], threads int, timeout time.Duration) ([]int64, int64, error) {
	identities := make([]int64, threads)
	gate := make(chan struct{})
	var incomplete atomic.Int64

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := range threads {
		go func() {
			defer wg.Done()
			<-gate
			inst := oi.Get()
			if !inst.Complete() {
				incomplete.Add(1)
			}
			if inst != nil {
				identities[i] = inst.Id
			}
		}()
	}
	close(gate)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return identities, incomplete.Load(), nil
	case <-raceCtx.Done():
		return nil, 0, fmt.Errorf("%w, policy: %s, threads: %d: %w", ErrTrialTimeout, oi.Policy(), threads, raceCtx.Err())
	}
}

func countDistinct(identities []int64) int {
	seen := make(map[int64]struct{}, 1)
	for _, id := range identities {
		seen[id] = struct{}{}
	}
	return len(seen)
}
