// Package main implements the entry point for the Recall API server, which
// schedules spaced repetition reviews over a shared knowledge catalog and
// routes catalog edits through an operator approval workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/config"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/redact"
	"github.com/phrazzld/recall-api/internal/service/auth"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "recall-api: %v\n", err)
		os.Exit(1)
	}
}

// mintOptions are the flags of the token minting mode, used to obtain a
// development token without an identity provider.
type mintOptions struct {
	enabled bool
	account string
	role    string
	name    string
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("recall-api", pflag.ContinueOnError)
	config.AddFlags(flags)

	var mint mintOptions
	flags.BoolVar(&mint.enabled, "mint-token", false, "print a signed access token and exit")
	flags.StringVar(&mint.account, "account", "", "account ID for --mint-token (random when empty)")
	flags.StringVar(&mint.role, "role", domain.RoleClient.String(), "role for --mint-token")
	flags.StringVar(&mint.name, "name", "", "reviewer label for --mint-token")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if mint.enabled {
		return mintToken(cfg, mint, stdout)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_url", redact.DatabaseURL(cfg.Database.URL)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := setupAppDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", slog.String("error", err.Error()))
		}
	}()

	if err := runMigrations(db, log); err != nil {
		return err
	}

	app, err := newApplication(cfg, log, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.serve(ctx)
}

func mintToken(cfg *config.Config, opts mintOptions, stdout io.Writer) error {
	role, err := domain.ParseRole(opts.role)
	if err != nil {
		return err
	}

	accountID := uuid.New()
	if opts.account != "" {
		accountID, err = uuid.Parse(opts.account)
		if err != nil {
			return fmt.Errorf("invalid --account: %w", err)
		}
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	token, err := jwtService.GenerateToken(context.Background(), domain.Identity{
		AccountID: accountID,
		Role:      role,
		Label:     opts.name,
	})
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	_, err = fmt.Fprintln(stdout, token)
	return err
}
