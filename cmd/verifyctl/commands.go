package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/auth"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
	"github.com/storefeedback/qrverify/internal/server/services"
)

// openRepos is swapped in tests.
var openRepos = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	return repomanager.OpenPostgres(ctx, dsn)
}

type rootOptions struct {
	dsn string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "verifyctl",
		Short:         "Maintenance tool for the QR verification service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("QRVERIFY_DATABASE_DSN"), "PostgreSQL DSN (default $QRVERIFY_DATABASE_DSN)")

	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(sweepCmd(opts))
	rootCmd.AddCommand(rotateQRCmd(opts))
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func withRepos(ctx context.Context, opts *rootOptions, fn func(repomanager.RepositoryManager) error) error {
	if opts.dsn == "" {
		return errors.New("--dsn or QRVERIFY_DATABASE_DSN is required")
	}
	repos, err := openRepos(ctx, opts.dsn)
	if err != nil {
		return err
	}
	defer repos.Close()
	return fn(repos)
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepos(cmd.Context(), opts, func(repos repomanager.RepositoryManager) error {
				if err := repos.RunMigrations(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending sessions past their deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepos(cmd.Context(), opts, func(repos repomanager.RepositoryManager) error {
				sessions := services.NewSessionManager(repos, 0, logging.Nop())
				n, err := sessions.CleanupExpiredSessions(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
				return nil
			})
		},
	}
}

func rotateQRCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-qr STORE_ID",
		Short: "Bump a store's QR version so previously printed codes are rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepos(cmd.Context(), opts, func(repos repomanager.RepositoryManager) error {
				v, err := repos.Stores().RotateQR(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("rotate qr for %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "store %s now at qr version %d\n", args[0], v)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		operator string
		secret   string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if operator == "" {
				return errors.New("--operator is required")
			}
			if secret == "" {
				return errors.New("--secret or QRVERIFY_SECRET_KEY is required")
			}
			token, err := auth.GenerateOperatorToken(operator, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded as the token subject")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("QRVERIFY_SECRET_KEY"), "HMAC secret shared with the server (default $QRVERIFY_SECRET_KEY)")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")

	return cmd
}
