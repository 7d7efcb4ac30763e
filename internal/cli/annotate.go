package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plume/internal/annotate"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/store"
)

// NewAnnotateCommand creates the annotate command.
func NewAnnotateCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate [content]",
		Short: "Parse post content into styled segments",
		Long: "Tokenizes the given content (or stdin when no argument is given)\n" +
			"into plain text, hashtags, links and protocol references, resolving\n" +
			"referenced profiles against the local database, and prints one\n" +
			"segment per line.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, root, args)
		},
	}

	return cmd
}

func runAnnotate(cmd *cobra.Command, root *RootOptions, args []string) error {
	content, err := readContent(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	names, err := lookupNames(cmd, cfg.DBPath, content)
	if err != nil {
		return err
	}

	annotated := annotate.New().Annotate(content, names)
	for _, seg := range annotated.Segments {
		cmd.Printf("%-12s %q", segmentKindName(seg.Kind), seg.Text)
		if seg.Value != seg.Text && seg.Value != "" {
			cmd.Printf("  (%s)", seg.Value)
		}
		cmd.Println()
	}
	for _, link := range annotated.MediaLinks() {
		cmd.Printf("%-12s %s\n", "media", link)
	}
	return nil
}

func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// lookupNames resolves referenced profiles to display names. A missing
// database is not an error; references just render shortened.
func lookupNames(cmd *cobra.Command, dbPath, content string) (map[string]string, error) {
	var pubkeys []string
	for _, ptr := range nostr.ExtractProfilePointers([]string{content}) {
		pubkeys = append(pubkeys, ptr.Pubkey)
	}
	if len(pubkeys) == 0 {
		return nil, nil
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return st.NamesByPubkey(cmd.Context(), pubkeys)
}

func segmentKindName(kind annotate.SegmentKind) string {
	switch kind {
	case annotate.SegmentPlain:
		return "plain"
	case annotate.SegmentHashtag:
		return "hashtag"
	case annotate.SegmentURL:
		return "url"
	case annotate.SegmentPostRef:
		return "post-ref"
	case annotate.SegmentProfileRef:
		return "profile-ref"
	}
	return "unknown"
}
