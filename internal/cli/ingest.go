package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/processor"
	"github.com/roach88/plume/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	Relay string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(root *RootOptions) *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Run serialized events through the processing pipeline",
		Long: "Reads a stream of JSON events from the given file (or stdin) and\n" +
			"processes each one exactly as if it had arrived from a relay:\n" +
			"validated, classified and persisted to the configured database.\n" +
			"Invalid events are dropped silently.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Relay, "relay", "", "origin relay URL recorded as provenance")

	return cmd
}

func runIngest(cmd *cobra.Command, root *RootOptions, opts *IngestOptions, args []string) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open events file: %w", err)
		}
		defer f.Close()
		in = f
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	dispatcher := processor.NewDispatcher(cmd.Context(),
		cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize)
	defer dispatcher.Close()
	proc := processor.New(st, cache.NewExclusion(), dispatcher)

	dec := json.NewDecoder(in)
	read := 0
	for {
		var event nostr.Event
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode event %d: %w", read+1, err)
		}
		proc.Process(&event, opts.Relay)
		read++
	}

	dispatcher.Wait()
	cmd.Printf("processed %d events\n", read)
	return nil
}
