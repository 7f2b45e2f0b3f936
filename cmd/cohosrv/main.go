// Command cohosrv starts the cooperative-scheduler HTTP server: it wires
// config, logging, the worker pool, the listener(s), the router (static
// files plus the adapted compute/job endpoints) and runs until signaled to
// shut down, generalizing the teacher's flat cmd/server/main.go (raw
// getenvInt calls feeding router.InitPools and server.ListenAndServe
// directly) into one place that assembles the library's pieces instead of
// reaching into package-level state.
package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"

	"cohosrv/internal/accept"
	"cohosrv/internal/compute"
	"cohosrv/internal/config"
	"cohosrv/internal/filecache"
	"cohosrv/internal/log"
	"cohosrv/internal/netio"
	"cohosrv/internal/router"
	"cohosrv/internal/server"
	"cohosrv/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("COHOSRV_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaskSIGPIPE {
		// internal/netio writes via raw unix.Write/unix.Sendfile, which
		// raises SIGPIPE (not just EPIPE) on a write to a peer that already
		// closed its read side; net.Conn-based servers never see this
		// because net installs its own ignore. Ignored process-wide since
		// Go delivers SIGPIPE to the whole process, not per goroutine/fd.
		signal.Ignore(syscall.SIGPIPE)
	}

	logger := log.New(log.Options{Level: cfg.LogLevel, Format: log.Format(cfg.LogFormat)})

	cache, err := buildCache(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build static file cache")
	}

	manager, err := worker.NewManager(cfg.Workers, logger, cfg.ReadyBudget)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start worker pool")
	}

	r := router.New(logger)
	r.Use(accessLogFilter(logger))
	registerStaticRoutes(r, cache)

	pools := compute.Init(compute.DefaultWorkerConfig(), cfg.IdleTimeout, logger)
	compute.Register(r, pools, cfg.HeaderTimeout, cfg.IdleTimeout)
	compute.RegisterBasic(r, manager)

	srvOpts := server.Options{
		Router:        r,
		Log:           logger,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		HeaderTimeout: cfg.HeaderTimeout,
		ServerName:    "cohosrv",
	}
	handle := func(conn *netio.Conn) { server.HandleConn(conn, srvOpts) }

	for _, l := range cfg.Listeners {
		opts := accept.Options{
			Address:        l.Address,
			Port:           l.Port,
			ReuseAddr:      l.ReuseAddr,
			IdleTimeout:    cfg.IdleTimeout,
			MaxConnections: cfg.MaxConnections,
		}
		bound, err := accept.Listen(manager, opts, logger, handle)
		if err != nil {
			logger.Fatal().Err(err).Str("address", l.Address).Int("port", l.Port).Msg("listen failed")
		}
		logger.Info().Str("address", bound.String()).Msg("listening")
	}

	waitForShutdown(logger, manager, pools, cache)
}

// buildCache picks the filecache.Cache variant named by cfg.CacheMode,
// generalizing the teacher's lack of any static-file path at all into
// spec §4.5's pluggable cache surface.
func buildCache(cfg config.Config, logger zerolog.Logger) (filecache.Cache, error) {
	if cfg.StaticRoot == "" {
		return filecache.NewNoCache(os.TempDir()), nil
	}
	switch cfg.CacheMode {
	case "sendfile":
		return filecache.NewSendFileCache(cfg.StaticRoot, logger)
	case "sendfile-fresh":
		return filecache.NewSendFile(cfg.StaticRoot), nil
	case "compress":
		mem, err := filecache.NewMemCache(cfg.StaticRoot, logger)
		if err != nil {
			return nil, err
		}
		return filecache.NewCompressCache(mem, filecache.GzipCompressor(), filecache.ZstdCompressor()), nil
	case "none":
		return filecache.NewNoCache(cfg.StaticRoot), nil
	default: // "memory"
		return filecache.NewMemCache(cfg.StaticRoot, logger)
	}
}

// registerStaticRoutes mounts GET /static/... and GET /static (directory
// index request treated as not found, spec §4.5 has no directory listing)
// against cache, using router.Rest to capture the remainder of the path.
func registerStaticRoutes(r *router.Router, cache filecache.Cache) {
	r.Route("GET", "HEAD").Path(router.Exact("static"), router.Rest{Name: "path"}).
		Handle(func(ctx *router.Context) router.Response {
			rel, _ := ctx.String("path")
			resp, err := cache.Serve(ctx.Request, rel)
			if err != nil {
				return router.InternalError("cache_error", err.Error())
			}
			return resp
		})
}

// waitForShutdown blocks until SIGINT/SIGTERM, then releases every
// long-lived resource in turn (spec §9: graceful shutdown closes workers
// before exit so in-flight connections finish their current response).
func waitForShutdown(logger zerolog.Logger, manager *worker.Manager, pools *compute.Pools, cache filecache.Cache) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	manager.Close()
	pools.Close()
	if err := cache.Close(); err != nil {
		logger.Warn().Err(err).Msg("cache close failed")
	}
}
