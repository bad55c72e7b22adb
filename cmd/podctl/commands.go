package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"atrocitee/internal/app"
	"atrocitee/internal/catalog"
	"atrocitee/internal/config"
	"atrocitee/internal/logging"
	"atrocitee/internal/models"

	"github.com/spf13/cobra"
)

// backend is what podctl drives. app.Services satisfies it through its
// synchronizer and submitter.
type backend interface {
	SyncProducts(ctx context.Context, syncType models.SyncType) (catalog.SyncResult, error)
	SyncCategories(ctx context.Context, syncType models.SyncType) (catalog.CategoryResult, error)
	ListChanges(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error)
	Approve(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
	Reject(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
	Apply(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
	Submit(ctx context.Context, orderID string) (*models.Order, error)
	RefreshStatus(ctx context.Context, orderID string) (*models.Order, error)
	io.Closer
}

type opener func(configPath string) (backend, error)

type servicesBackend struct {
	*catalog.Synchronizer
	svc *app.Services
}

func (b servicesBackend) Submit(ctx context.Context, orderID string) (*models.Order, error) {
	return b.svc.Submitter.Submit(ctx, orderID)
}

func (b servicesBackend) RefreshStatus(ctx context.Context, orderID string) (*models.Order, error) {
	return b.svc.Submitter.RefreshStatus(ctx, orderID)
}

func (b servicesBackend) Close() error {
	return b.svc.Close()
}

func openBackend(configPath string) (backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, _, err := logging.New(config.LoggingConfig{Level: cfg.Logging.Level, Format: "console", Output: "stderr"}, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	svc, err := app.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	return servicesBackend{Synchronizer: svc.Synchronizer, svc: svc}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "podctl",
		Short:         "Operate the print-on-demand integration from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")

	// run opens the backend for one command and prints its result as JSON.
	run := func(fn func(cmd *cobra.Command, b backend) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			b, err := open(configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			out, err := fn(cmd, b)
			if out != nil {
				if encErr := printJSON(cmd.OutOrStdout(), out); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		}
	}

	root.AddCommand(newSyncCmd(run), newOrderCmd(run), newChangesCmd(run))
	return root
}

type runner func(fn func(cmd *cobra.Command, b backend) (any, error)) func(*cobra.Command, []string) error

func newSyncCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "Pull the provider catalog"}

	var syncType string
	products := &cobra.Command{
		Use:   "products",
		Short: "Synchronize store products and stage risky changes",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
			return b.SyncProducts(cmd.Context(), models.SyncType(syncType))
		}),
	}
	products.Flags().StringVar(&syncType, "type", string(models.SyncFull), "sync type recorded in history (full, scheduled, webhook)")

	categories := &cobra.Command{
		Use:   "categories",
		Short: "Synchronize provider catalog categories",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
			return b.SyncCategories(cmd.Context(), models.SyncFull)
		}),
	}

	cmd.AddCommand(products, categories)
	return cmd
}

func newOrderCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Submit and reconcile orders"}

	submit := &cobra.Command{
		Use:   "submit ORDER_ID",
		Short: "Submit a local order to the provider",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
			return b.Submit(cmd.Context(), cmd.Flags().Arg(0))
		}),
	}
	refresh := &cobra.Command{
		Use:   "refresh ORDER_ID",
		Short: "Poll the provider and update local order status",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
			return b.RefreshStatus(cmd.Context(), cmd.Flags().Arg(0))
		}),
	}

	cmd.AddCommand(submit, refresh)
	return cmd
}

func newChangesCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{Use: "changes", Short: "Review staged product changes"}

	var (
		status   string
		limit    int
		reviewer string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List staged changes",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
			return b.ListChanges(cmd.Context(), models.ChangeStatus(status), limit)
		}),
	}
	list.Flags().StringVar(&status, "status", string(models.ChangePendingReview), "change status to list")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	review := func(use, short string, act func(backend, context.Context, int64, string) (*models.ProductChange, error)) *cobra.Command {
		c := &cobra.Command{
			Use:   use + " CHANGE_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, b backend) (any, error) {
				id, err := strconv.ParseInt(cmd.Flags().Arg(0), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid change id %q", cmd.Flags().Arg(0))
				}
				return act(b, cmd.Context(), id, reviewer)
			}),
		}
		c.Flags().StringVar(&reviewer, "reviewer", envOr("USER", "podctl"), "name recorded as reviewer")
		return c
	}

	cmd.AddCommand(
		list,
		review("approve", "Approve a pending change", backend.Approve),
		review("reject", "Reject a pending or approved change", backend.Reject),
		review("apply", "Write a change to the catalog", backend.Apply),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
