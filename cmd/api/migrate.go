package main

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/store/postgres"
)

func NewMigrateCommand() *cobra.Command {
	var (
		configFile string
		dbLogLevel postgres.LogLevel
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the conversation schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return pkgerrors.WithMessage(err, "failed to load configuration")
			}
			if cmd.Flags().Changed("db-log-level") {
				cfg.Database.LogLevel = dbLogLevel.String()
			}
			if timeout > 0 {
				cfg.Database.MigrateTimeout = timeout
			}

			pg, err := postgres.New(cfg.Database)
			if err != nil {
				return pkgerrors.WithMessage(err, "couldn't open database")
			}
			defer pg.Close()

			ctx := context.Background()
			if err := pg.Ping(ctx); err != nil {
				return pkgerrors.WithMessage(err, "database is not reachable")
			}
			return pkgerrors.WithMessage(pg.Migrate(ctx), "migration failed")
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Optional config file")
	_ = dbLogLevel.Set(postgres.LogLevelWarn)
	cmd.Flags().Var(&dbLogLevel, "db-log-level", "GORM database log level (info,warn,error,silent)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Migration timeout; 0 uses DB_MIGRATE_TIMEOUT")
	return cmd
}
