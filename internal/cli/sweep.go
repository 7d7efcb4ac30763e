package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
	"github.com/roach88/plume/internal/sweeper"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	Watch bool
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(root *RootOptions) *cobra.Command {
	opts := &SweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a storage maintenance pass",
		Long: "Deletes old rows from the local database until it fits the\n" +
			"configured retention targets. One invocation sweeps a single\n" +
			"randomly chosen category; with --watch it keeps sweeping on the\n" +
			"configured interval until interrupted.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "sweep on the configured interval until interrupted")

	return cmd
}

func runSweep(cmd *cobra.Command, root *RootOptions, opts *SweepOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sw := sweeper.New(st, cache.NewExclusion(), relay.StaticIdentity{Pubkey: cfg.OwnPubkey}, sweeper.Targets{
		Posts:        cfg.Retention.Posts,
		Profiles:     cfg.Retention.Profiles,
		ContactLists: cfg.Retention.ContactLists,
		RelayLists:   cfg.Retention.RelayLists,
	})

	if !opts.Watch {
		return sw.Sweep(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sw.Run(ctx, cfg.SweepInterval)
	return nil
}
