package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/routes"
	"github.com/Ramsey-B/fictotum/pkg/routes/health"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP review API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{Graph: true})
		if err != nil {
			return err
		}
		defer env.Close(context.Background())

		checker := health.NewChecker(cfg.AppName, env.pings())
		mergeDefaults, err := mergeOptions()
		if err != nil {
			return err
		}
		mergeDefaults.Execute = false

		e := routes.New(routes.Dependencies{
			ServiceName:  cfg.AppName,
			AllowOrigins: cfg.AllowOrigins,
			Logger:       logger,
			Health:       checker,
			Graph:        env.Graph,
			Matcher:      env.Matcher,
			Coordinator:  env.Coordinator,
			Engine:       env.Engine,
			Decisions:    env.Decisions,
			ImportDefaults: importer.Options{
				BatchSize: cfg.ImportBatchSize,
				Agent:     cfg.ImportAgent,
			},
			MergeDefaults: mergeDefaults,
		})

		port := servePort
		if port == 0 {
			port = cfg.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           e,
			ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.WithField("port", port).Info("Starting server")
			checker.SetReady(true)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			checker.SetReady(false)
			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// pings lists the health checks of every started dependency
func (env *appEnv) pings() map[string]health.PingFunc {
	checks := map[string]health.PingFunc{}
	if env.Graph != nil {
		checks["graph"] = env.Graph.Ping
	}
	if env.DB != nil {
		checks["postgres"] = env.DB.PingContext
	}
	if env.Redis != nil {
		checks["redis"] = env.Redis.Ping
	}
	return checks
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
