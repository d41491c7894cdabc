package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/config"
	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/observability"
	"github.com/spec-kit/memo-service/internal/persistence"
	"github.com/spec-kit/memo-service/internal/repository"
	"github.com/spec-kit/memo-service/internal/service"
)

func init() {
	var dir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) error {
				return persistence.RunMigrations(ctx, pg.PoolHandle(), dir, logger)
			})
		},
	}
	migrateCmd.Flags().StringVarP(&dir, "dir", "d", persistence.DefaultMigrationsDir, "Migrations directory")
	rootCmd.AddCommand(migrateCmd)

	var email, view string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memos for an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) error {
				memos := service.NewMemoService(service.MemoDependencies{
					MemoRepo: repository.NewMemoRepository(pg.PoolHandle()),
					Logger:   logger,
				})
				return runList(ctx, memos, email, view, limit, os.Stdout)
			})
		},
	}
	listCmd.Flags().StringVarP(&email, "email", "e", "", "Viewer address (required)")
	listCmd.Flags().StringVarP(&view, "view", "v", "inbox", "inbox, sent, drafts, archived, pending, approved or tracking")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows")
	_ = listCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(listCmd)

	usersCmd := &cobra.Command{Use: "users", Short: "Directory operations"}
	var user domain.User
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a directory entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) error {
				rdb := persistence.NewRedis(cfg.Redis, logger)
				defer rdb.Close()
				users := repository.NewUserRepository(pg.PoolHandle())
				directory := service.NewDirectoryService(users, rdb.Cache(), cfg.Directory.CacheTTL(), logger)
				return runUserAdd(ctx, users, directory, &user, os.Stdout)
			})
		},
	}
	addCmd.Flags().StringVarP(&user.Email, "email", "e", "", "Address (required)")
	addCmd.Flags().StringVarP(&user.Name, "name", "n", "", "Display name")
	addCmd.Flags().StringVarP(&user.Department, "department", "d", "", "Department")
	addCmd.Flags().StringVarP(&user.Designation, "designation", "t", "", "Designation")
	_ = addCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(addCmd)
	rootCmd.AddCommand(usersCmd)
}

// withStore connects to the configured database for one command.
func withStore(ctx context.Context, fn func(context.Context, *config.Config, *persistence.Postgres, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	return fn(ctx, cfg, pg, logger)
}

func runList(ctx context.Context, memos *service.MemoService, email, view string, limit int, out io.Writer) error {
	parsed, ok := domain.ParseView(view)
	if !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	views, err := memos.ListFor(ctx, domain.RawIdentity(email), service.MemoListFilter{View: parsed, Limit: limit})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tFROM\tSUBJECT\tUPDATED")
	for _, v := range views {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.Memo.ID, v.Memo.Status, v.Memo.From, v.Memo.Subject, v.Memo.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// cacheInvalidator drops cached directory entries.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, address string)
}

// runUserAdd saves user and evicts the cached identity so new memos and
// minutes pick up the change.
func runUserAdd(ctx context.Context, users repository.UserRepository, cache cacheInvalidator, user *domain.User, out io.Writer) error {
	user.Email = domain.NormalizeAddress(user.Email)
	if !domain.ValidAddress(user.Email) {
		return fmt.Errorf("invalid address %q", user.Email)
	}
	if err := users.Upsert(ctx, user); err != nil {
		return err
	}
	cache.Invalidate(ctx, user.Email)
	_, _ = fmt.Fprintf(out, "%s\t%s\n", user.ID, user.Email)
	return nil
}
