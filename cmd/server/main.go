package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/xtding233/foraging-backend/internal/config"
	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/history"
	"github.com/xtding233/foraging-backend/internal/patch"
	"github.com/xtding233/foraging-backend/internal/rpc"
)

var (
	configDir   string
	taskName    string
	grpcAddr    string
	metricsAddr string
	dbPath      string
	seed        uint64
	watch       bool
	logLevel    string
	historyRing int

	rootCmd = &cobra.Command{
		Use:   "foraging-server",
		Short: "Serve patch reward state over gRPC",
		Long: `foraging-server seeds one patch per entry of a task file and serves
their reward state over gRPC. Metrics are exposed for Prometheus.`,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configDir, "config-dir", "config", "directory holding tasks/<name>.yaml")
	f.StringVar(&taskName, "task", "default", "task file name without extension")
	f.StringVar(&grpcAddr, "grpc-addr", ":9090", "gRPC listen address")
	f.StringVar(&metricsAddr, "metrics-addr", ":2112", "Prometheus metrics listen address (empty disables)")
	f.StringVar(&dbPath, "db", "", "SQLite file for state history (empty disables)")
	f.Uint64Var(&seed, "seed", 0, "random seed; overrides the task seed (unset and no task seed means non-reproducible)")
	f.BoolVar(&watch, "watch", false, "reload update rules when the task files change")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.IntVar(&historyRing, "history-ring", 0, "keep the last N state changes in memory for the History RPC (0 disables)")
}

func newLogger(level string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), nil
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	loader := config.NewLoader(configDir)
	task, err := loader.LoadTask(taskName)
	if err != nil {
		return err
	}

	rng := distribution.NewCryptoRNG()
	var runSeed uint64
	switch {
	case cmd.Flags().Changed("seed"):
		runSeed = seed
		rng = distribution.NewSeededRNG(seed)
	case task.Seed != nil:
		runSeed = *task.Seed
		rng = distribution.NewSeededRNG(*task.Seed)
	}

	var (
		recorders []patch.Recorder
		ring      *history.Memory
	)
	if historyRing > 0 {
		ring = history.NewMemory(historyRing)
		recorders = append(recorders, ring)
	}
	if dbPath != "" {
		store, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		hrun, err := store.NewRun(taskName, runSeed)
		if err != nil {
			return err
		}
		logger.Info("recording history", "db", dbPath, "run", hrun.Info().ID)
		recorders = append(recorders, hrun)
	}
	opts := []patch.Option{patch.WithStartRules(task.Rules)}
	if len(recorders) > 0 {
		opts = append(opts, patch.WithRecorder(history.Tee(recorders...)))
	}

	manager, err := patch.FromRewardSpecs(task.Rewards, rng, opts...)
	if err != nil {
		return err
	}
	logger.Info("patches seeded", "task", taskName, "patches", manager.Len())

	svc := rpc.NewServer(manager, task.Rules, rng)
	if ring != nil {
		svc.SetHistory(ring)
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor(logger)))
	rpc.RegisterPatchServiceServer(gs, svc)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch {
		paths := []string{loader.Paths().DefaultPath(), loader.Paths().TaskPath(taskName)}
		w, err := config.NewFileWatcher(paths, 200*time.Millisecond, func(path string) {
			loader.Invalidate()
			next, err := loader.LoadTask(taskName)
			if err != nil {
				logger.Error("reload failed, keeping current rules", "path", path, "error", err)
				return
			}
			svc.SetRules(next.Rules)
			logger.Info("rules reloaded", "path", path)
		})
		if err != nil {
			return err
		}
		w.Start(ctx)
		defer w.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}
	g.Go(func() error {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		return gs.Serve(lis)
	})

	var metrics *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", metricsAddr)
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		gs.GracefulStop()
		if metrics != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metrics.Shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
