package main

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/spf13/pflag"

	"github.com/mbeoliero/singleton/api"
	"github.com/mbeoliero/singleton/domain/service"
	"github.com/mbeoliero/singleton/infra/config"
	"github.com/mbeoliero/singleton/infra/mysql"
	"github.com/mbeoliero/singleton/infra/redis"
	"github.com/mbeoliero/singleton/internal/soak"
	"github.com/mbeoliero/singleton/pkg/log"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "path of the yaml config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	log.SetLevel(log.ParseLevel(cfg.Log.Level))

	ctx := context.TODO()

	if err = mysql.Init(); err != nil {
		log.CtxError(ctx, "failed to init mysql: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "mysql initialized")

	if err = redis.Init(); err != nil {
		log.CtxError(ctx, "failed to init redis: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "redis initialized")

	raceService := service.NewRaceService()

	closed := []route.CtxCallback{}
	if cfg.Soak.Enabled {
		runner, err := soak.NewSoak(cfg.Soak, raceService, redis.GetClient())
		if err != nil {
			log.CtxError(ctx, "failed to create soak: %v", err)
			panic(err)
		}
		if err = runner.Start(ctx); err != nil {
			log.CtxError(ctx, "failed to start soak: %v", err)
			panic(err)
		}
		log.CtxInfo(ctx, "soak started, node: %s", cfg.Server.NodeId)
		closed = append(closed, runner.Stop)
	}

	h := server.New(server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.Port)))
	api.RegisterRoutes(h, raceService)
	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.Port)

	closed = append(closed, func(ctx context.Context) {
		log.CtxInfo(ctx, "start to close mysql and redis")
		_ = mysql.Close()
		_ = redis.Close()
	})
	h.OnShutdown = append(h.OnShutdown, closed...)

	if err = h.Run(); err != nil {
		log.CtxError(ctx, "server error: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "server stopped")
}
