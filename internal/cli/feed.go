package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plume/internal/cache"
	"github.com/roach88/plume/internal/feed"
	"github.com/roach88/plume/internal/nostr"
	"github.com/roach88/plume/internal/relay"
	"github.com/roach88/plume/internal/store"
	"github.com/roach88/plume/internal/subscriber"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	Replies  bool
	Contacts bool
	Author   string
	Hashtag  string
	Limit    int
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(root *RootOptions) *cobra.Command {
	opts := &FeedOptions{}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the feed from local storage",
		Long: "Queries the local database for the newest matching posts and\n" +
			"prints them. No relay connections are opened; the command shows\n" +
			"whatever a running client has already synchronized.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Replies, "replies", false, "include replies")
	cmd.Flags().BoolVar(&opts.Contacts, "contacts", false, "restrict to the configured account's contacts")
	cmd.Flags().StringVar(&opts.Author, "author", "", "restrict to one author (hex pubkey)")
	cmd.Flags().StringVar(&opts.Hashtag, "hashtag", "", "restrict to one hashtag")
	cmd.Flags().IntVar(&opts.Limit, "limit", 25, "maximum number of posts")

	return cmd
}

func runFeed(cmd *cobra.Command, root *RootOptions, opts *FeedOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Local-only: the nop transport makes every subscription a no-op
	// while storage reads answer normally.
	transport := relay.NopSubscriber{}
	relays := relay.StaticProvider{Relays: cfg.DefaultRelays}
	identity := relay.StaticIdentity{Pubkey: cfg.OwnPubkey}
	sub := subscriber.New(transport, relays, cache.NewExclusion(), st)
	provider := feed.New(st, transport, sub, relays, identity)

	settings := feed.Settings{
		IsPosts:   true,
		IsReplies: opts.Replies,
		Hashtag:   opts.Hashtag,
	}
	switch {
	case opts.Author != "":
		if !nostr.IsValidHexKey(opts.Author) {
			return fmt.Errorf("author %q is not a 64-char hex key", opts.Author)
		}
		settings.Authors = feed.AuthorSingle
		settings.AuthorPubkey = opts.Author
	case opts.Contacts:
		if cfg.OwnPubkey == "" {
			return fmt.Errorf("--contacts requires own_pubkey in the config")
		}
		settings.Authors = feed.AuthorContacts
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	stream, err := provider.GetFeed(ctx, settings, opts.Limit, 0, cfg.FeedWait)
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}

	select {
	case posts := <-stream:
		printPosts(cmd, posts)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func printPosts(cmd *cobra.Command, posts []feed.Post) {
	if len(posts) == 0 {
		cmd.Println("no posts")
		return
	}
	for _, p := range posts {
		author := p.AuthorName
		if author == "" {
			if npub, err := nostr.EncodeNpub(p.Pubkey); err == nil {
				author = nostr.ShortenRef(npub)
			} else {
				author = p.Pubkey
			}
		}
		when := time.Unix(p.CreatedAt, 0).UTC().Format(time.RFC3339)
		cmd.Printf("%s  %s\n", when, author)
		if p.ReplyToID != "" {
			target := p.ReplyToName
			if target == "" {
				if note, err := nostr.EncodeNote(p.ReplyToID); err == nil {
					target = nostr.ShortenRef(note)
				} else {
					target = p.ReplyToID
				}
			}
			cmd.Printf("  in reply to %s\n", target)
		}
		cmd.Printf("  %s\n", p.Content)
		if p.ReplyCount > 0 {
			cmd.Printf("  replies: %d\n", p.ReplyCount)
		}
		cmd.Println()
	}
}
