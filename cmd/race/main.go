package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mbeoliero/singleton/api"
	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/service"
	"github.com/mbeoliero/singleton/infra/config"
	"github.com/mbeoliero/singleton/internal/client"
	"github.com/mbeoliero/singleton/internal/once"
	"github.com/mbeoliero/singleton/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race: %v\n", err)
	}
	os.Exit(code)
}

// run returns 1 when a trial fails or a correct policy hands out more than one instance.
func run(ctx context.Context, args []string, out io.Writer) (int, error) {
	v := config.NewViper()
	fs := pflag.NewFlagSet("race", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path of the yaml config file")
	fs.StringP("policy", "p", "all", "policy to race, or all: "+policyNames())
	fs.IntP("threads", "t", 100, "concurrent callers per trial")
	fs.Int("delay", 10, "milliseconds between the existence check and construction")
	fs.IntP("rounds", "r", 20, "rounds to retry the unsynchronized policy until it breaks")
	fs.String("server", "", "run trials on a remote server, e.g. 127.0.0.1:8080")
	fs.String("log-level", "info", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if err := bindFlags(v, fs); err != nil {
		return 2, err
	}

	cfg, err := config.LoadFrom(v, *configPath)
	if err != nil {
		return 2, fmt.Errorf("load config failed: %w", err)
	}
	log.SetLevel(log.ParseLevel(cfg.Log.Level))

	var trials []*entity.Trial
	if cfg.Race.Server != "" {
		trials, err = runRemote(ctx, cfg.Race)
	} else {
		trials, err = runLocal(ctx, cfg.Race)
	}
	if err != nil {
		return 1, err
	}

	code := 0
	for _, trial := range trials {
		printTrial(out, trial)
		if !trial.Expected() {
			code = 1
		}
	}
	return code, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	binds := map[string]string{
		"race.policy":  "policy",
		"race.threads": "threads",
		"race.delay":   "delay",
		"race.rounds":  "rounds",
		"race.server":  "server",
		"log.level":    "log-level",
	}
	for key, flag := range binds {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func runLocal(ctx context.Context, cfg config.RaceConfig) ([]*entity.Trial, error) {
	s := service.NewRaceService()

	if strings.EqualFold(cfg.Policy, "all") {
		trials, err := s.RunAll(ctx, cfg.Threads, cfg.Delay)
		if err != nil {
			return nil, err
		}
		// the broken policy gets the same retries as a single run would
		for i, trial := range trials {
			if trial.Policy != once.PolicyUnsynchronized.String() || trial.Violated {
				continue
			}
			retried, err := reproduce(ctx, s, once.PolicyUnsynchronized, cfg)
			if err != nil {
				return nil, err
			}
			trials[i] = retried
		}
		return trials, nil
	}

	p, err := once.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	trial, err := reproduce(ctx, s, p, cfg)
	if err != nil {
		return nil, err
	}
	return []*entity.Trial{trial}, nil
}

func reproduce(ctx context.Context, s *service.RaceService, p once.Policy, cfg config.RaceConfig) (*entity.Trial, error) {
	rounds := 1
	if !p.Correct() {
		rounds = cfg.Rounds
	}
	trial, used, err := s.Reproduce(ctx, service.TrialRequest{
		Policy:  p,
		Threads: cfg.Threads,
		Delay:   cfg.Delay,
		Timeout: cfg.Timeout,
	}, rounds)
	if err != nil {
		return nil, err
	}
	log.CtxInfo(ctx, "policy %s finished after %d round(s)", p, used)
	return trial, nil
}

func runRemote(ctx context.Context, cfg config.RaceConfig) ([]*entity.Trial, error) {
	c, err := client.NewClient(cfg.Server, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	delayMs := cfg.Delay.Milliseconds()
	if strings.EqualFold(cfg.Policy, "all") {
		return c.RunAll(ctx, &api.RunAllRequest{Threads: cfg.Threads, DelayMs: delayMs})
	}

	p, err := once.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	rounds := 1
	if !p.Correct() {
		rounds = cfg.Rounds
	}
	resp, err := c.RunTrial(ctx, &api.RunTrialRequest{
		Policy:  p.String(),
		Threads: cfg.Threads,
		DelayMs: delayMs,
		Rounds:  rounds,
	})
	if err != nil {
		return nil, err
	}
	return []*entity.Trial{resp.Trial}, nil
}

func printTrial(out io.Writer, trial *entity.Trial) {
	for i, id := range trial.Identities {
		fmt.Fprintf(out, "%s caller=%d identity=%d\n", trial.Policy, i, id)
	}
	verdict := "ok"
	switch {
	case !trial.Expected():
		verdict = "UNEXPECTED"
	case trial.Violated:
		verdict = "broken as expected"
	}
	fmt.Fprintf(out, "%s threads=%d distinct=%d constructions=%d ready_before_get=%t incomplete=%d delay=%dms cost=%dms: %s\n",
		trial.Policy, trial.Threads, trial.Distinct, trial.Constructions, trial.ReadyBeforeGet, trial.Incomplete, trial.DelayMs, trial.CostMs, verdict)
}

func policyNames() string {
	policies := once.Policies()
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}
