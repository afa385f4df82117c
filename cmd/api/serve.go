package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/handler"
	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/ai-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/store/postgres"
)

func NewServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return pkgerrors.WithMessage(err, "failed to load configuration")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := ai.NewClient(cfg.Model)
			if cfg.Model.PullOnStart {
				go pullModel(ctx, client)
			}

			var store chat.Store
			if cfg.Database.Enabled() {
				pg, err := openStore(ctx, cfg.Database)
				if err != nil {
					log.WithError(err).Warn("database unavailable, running without persistence")
				} else {
					defer pg.Close()
					store = pg
				}
			} else {
				log.Info("persistence disabled by configuration")
			}

			svc := chatService.NewService(client, store, ai.NewPromptBuilder(cfg.Chat.SystemPrompt), cfg.Chat.HistoryLimit)
			router := handler.NewRouter(cfg.Server, svc)

			return startServer(ctx, cfg.Server, router)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Optional config file (yaml, toml or json); environment variables take precedence")
	return cmd
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Store, error) {
	pg, err := postgres.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			// Bounded by DB_MIGRATE_TIMEOUT; run `api migrate` once Postgres is reachable.
			log.WithError(err).Warn("schema migration failed")
		}
	}
	return pg, nil
}

func pullModel(ctx context.Context, client *ai.Client) {
	log.WithField("model", client.Model()).Info("pulling model")
	if err := client.Pull(ctx); err != nil {
		log.WithError(err).Warn("could not pull model, the runtime may not be up yet")
		return
	}
	log.WithField("model", client.Model()).Info("model ready")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", serverCfg.Addr).Info("chat API listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info("chat API stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
