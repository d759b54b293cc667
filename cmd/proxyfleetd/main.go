package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"proxyfleet/internal/proxypool/orchestrator"
	"proxyfleet/internal/proxypool/pool"
	"proxyfleet/internal/proxypool/source"
	"proxyfleet/internal/proxypool/source/oculus"
	"proxyfleet/internal/proxypool/source/proxymesh"
	"proxyfleet/internal/proxypool/source/publiclist"
	"proxyfleet/internal/proxypool/validate"
	"proxyfleet/internal/service/web"
	"proxyfleet/internal/shared/config"
	"proxyfleet/internal/shared/events"
	"proxyfleet/internal/shared/logger"
	"proxyfleet/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "proxyfleet.ini")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()

	var sources []source.ProxySource
	if cfg.OculusConf.Enabled {
		sources = append(sources, oculus.New(oculus.Config{
			BaseURL:      cfg.OculusConf.BaseURL,
			OrderToken:   cfg.OculusConf.OrderToken,
			PlanType:     cfg.OculusConf.PlanType,
			Country:      cfg.OculusConf.Country,
			EnableSocks5: cfg.OculusConf.EnableSocks5,
		}))
	}
	if cfg.ProxyMeshConf.Enabled {
		sources = append(sources, proxymesh.New(proxymesh.Config{
			Host:     cfg.ProxyMeshConf.Host,
			Port:     cfg.ProxyMeshConf.Port,
			Username: cfg.ProxyMeshConf.Username,
			Password: cfg.ProxyMeshConf.Password,
		}))
	}
	if cfg.PublicListConf.Enabled {
		sources = append(sources, publiclist.New(publiclist.Config{
			URL: cfg.PublicListConf.URL,
		}))
	}
	if len(sources) == 0 {
		logger.Fatal().Msg("no sources enabled; set at least one of [oculus], [proxymesh], [publiclist] enabled=true")
	}

	orch := orchestrator.New(bus, sources...)
	mgr := pool.New(pool.Config{
		TargetSize:       cfg.PoolConf.TargetSize,
		LowWaterFraction: cfg.PoolConf.LowWaterFraction,
	}, orch, validate.StubValidator{}, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("pool init failed")
	}

	var wg sync.WaitGroup
	hub := web.NewHub(bus)
	go hub.Run()
	web.StartServer(&wg, cfg.WebConf, mgr, hub)

	logger.Info().Msg("proxyfleetd running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
