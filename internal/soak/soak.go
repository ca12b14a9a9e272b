package soak

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	redislock "github.com/go-co-op/gocron-redis-lock/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/service"
	"github.com/mbeoliero/singleton/infra/config"
	"github.com/mbeoliero/singleton/internal/once"
	"github.com/mbeoliero/singleton/pkg/log"
)

var (
	ErrInvalidSchedule = errors.New("invalid soak schedule")
	ErrMissingRedis    = errors.New("distributed soak requires a redis client")
	ErrAlreadyStarted  = errors.New("soak already started")

	// cronParser 校验 cron 表达式，支持秒级精度（可选）
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Runner runs one trial. *service.RaceService satisfies it.
type Runner interface {
	RunTrial(ctx context.Context, req service.TrialRequest) (*entity.Trial, error)
}

type Stats struct {
	Runs       int64 `json:"runs"`
	Failed     int64 `json:"failed"`
	Unexpected int64 `json:"unexpected"` // correct policies that produced more than one instance
}

// Soak periodically races every configured policy so a regression in a correct
// policy shows up in the logs and in Stats.
type Soak struct {
	cfg      config.SoakConfig
	runner   Runner
	policies []once.Policy
	cron     gocron.Scheduler
	started  atomic.Bool
	stopOnce sync.Once

	runs       atomic.Int64
	failed     atomic.Int64
	unexpected atomic.Int64
}

func NewSoak(cfg config.SoakConfig, runner Runner, rdb redis.UniversalClient) (*Soak, error) {
	if err := ValidateSchedule(cfg); err != nil {
		return nil, err
	}
	policies, err := parsePolicies(cfg.Policies)
	if err != nil {
		return nil, err
	}

	var opts []gocron.SchedulerOption
	if cfg.Distributed {
		if rdb == nil {
			return nil, ErrMissingRedis
		}
		locker, err := newLocker(rdb, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gocron.WithGlobalJobOptions(gocron.WithDistributedJobLocker(locker)))
	}

	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	return &Soak{
		cfg:      cfg,
		runner:   runner,
		policies: policies,
		cron:     scheduler,
	}, nil
}

// newLocker makes each tick of a soak job run on one node only.
func newLocker(rdb redis.UniversalClient, cfg config.SoakConfig) (gocron.Locker, error) {
	if cfg.LockerExpiry > 0 {
		return redislock.NewRedisLockerWithOptions(rdb,
			redislock.WithKeyPrefix(cfg.KeyPrefix),
			redislock.WithRedsyncOptions(redsync.WithExpiry(cfg.LockerExpiry)))
	}
	return redislock.NewRedisLockerWithOptions(rdb, redislock.WithKeyPrefix(cfg.KeyPrefix))
}

// ValidateSchedule accepts either a cron expression or a positive interval.
func ValidateSchedule(cfg config.SoakConfig) error {
	if cfg.Cron != "" {
		if _, err := cronParser.Parse(cfg.Cron); err != nil {
			return fmt.Errorf("%w: invalid cron expression: %w", ErrInvalidSchedule, err)
		}
		return nil
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
	}
	return nil
}

func parsePolicies(names []string) ([]once.Policy, error) {
	if len(names) == 0 {
		return once.Policies(), nil
	}
	policies := make([]once.Policy, 0, len(names))
	for _, name := range names {
		p, err := once.ParsePolicy(name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func (s *Soak) jobDefinition() gocron.JobDefinition {
	if s.cfg.Cron != "" {
		withSeconds := len(strings.Fields(s.cfg.Cron)) == 6
		return gocron.CronJob(s.cfg.Cron, withSeconds)
	}
	return gocron.DurationJob(s.cfg.Interval)
}

func (s *Soak) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}

	for _, p := range s.policies {
		job, err := s.cron.NewJob(
			s.jobDefinition(),
			gocron.NewTask(func() {
				s.runOnce(ctx, p)
			}),
			gocron.WithName("soak_"+p.String()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			log.CtxError(ctx, "failed to schedule soak job, policy: %s, err: %v", p, err)
			return err
		}
		log.CtxInfo(ctx, "scheduled soak job, policy: %s, job name: %s", p, job.Name())
	}

	s.cron.Start()
	return nil
}

func (s *Soak) runOnce(ctx context.Context, p once.Policy) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			log.CtxError(ctx, "soak trial panic, policy: %s, err: %v", p, r)
		}
	}()

	s.runs.Add(1)
	trial, err := s.runner.RunTrial(ctx, service.TrialRequest{Policy: p, Threads: s.cfg.Threads})
	if err != nil {
		s.failed.Add(1)
		log.CtxError(ctx, "soak trial failed, policy: %s, err: %v", p, err)
		return
	}

	if !trial.Expected() {
		s.unexpected.Add(1)
		log.CtxError(ctx, "soak found %d instances under correct policy %s, trial: %d", trial.Distinct, p, trial.Id)
		return
	}
	log.CtxInfo(ctx, "soak trial, policy: %s, distinct: %d, constructions: %d, cost: %dms", p, trial.Distinct, trial.Constructions, trial.CostMs)
}

func (s *Soak) Stats() Stats {
	return Stats{
		Runs:       s.runs.Load(),
		Failed:     s.failed.Load(),
		Unexpected: s.unexpected.Load(),
	}
}

// Stop shuts the scheduler down, waiting for running trials unless ctx expires first.
func (s *Soak) Stop(ctx context.Context) {
	if !s.started.Load() {
		return
	}

	s.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			if err := s.cron.Shutdown(); err != nil {
				log.CtxWarn(ctx, "soak scheduler shutdown, err: %v", err)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			log.CtxWarn(ctx, "soak scheduler did not stop in time")
		}
	})
}
