// Command cartctl inspects and edits the cart kept in a local SQLite file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abgdnv/gomarketplace/internal/cart"
	"github.com/abgdnv/gomarketplace/internal/storage"
	"github.com/abgdnv/gomarketplace/pkg/bootstrap"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dbPath   string
	key      string
	logLevel string
	timeout  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := cleanup(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. cleanup closes the cart and the database
// opened by whichever command ran; it is safe to call when nothing was opened.
func newRootCmd() (root *cobra.Command, cleanup func() error) {
	opts := &rootOptions{}
	var (
		kv    *storage.SQLite
		store *cart.Store
	)

	root = &cobra.Command{
		Use:          "cartctl",
		Short:        "Inspect and edit the local shopping cart",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger := bootstrap.NewLoggerTo(cmd.ErrOrStderr(), opts.logLevel)
			ctx := cmd.Context()

			var err error
			kv, err = storage.OpenSQLite(ctx, opts.dbPath)
			if err != nil {
				return err
			}
			store = cart.NewStore(ctx, kv,
				cart.WithKey(opts.key),
				cart.WithTimeout(opts.timeout),
				cart.WithLogger(logger),
			)
			select {
			case <-store.Ready():
			case <-ctx.Done():
				return ctx.Err()
			}
			cmd.SetContext(cart.WithStore(ctx, store))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "cart.db", "path to the SQLite cart database")
	root.PersistentFlags().StringVar(&opts.key, "key", cart.DefaultKey, "storage key the cart is kept under")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "timeout for each storage call")

	root.AddCommand(
		newListCmd(),
		newAddCmd(),
		newIncCmd(),
		newDecCmd(),
		newSyncCmd(),
	)
	return root, func() error { return closeAll(store, kv) }
}

func closeAll(store *cart.Store, kv *storage.SQLite) error {
	if store != nil {
		_ = store.Close()
	}
	if kv != nil {
		if err := kv.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
