// Package main is the entry point for relayctl, the operator CLI of the
// chat relay.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unifiedui/chat-relay/internal/config"
	"github.com/unifiedui/chat-relay/internal/core/cache"
	"github.com/unifiedui/chat-relay/internal/core/vault"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	rediscache "github.com/unifiedui/chat-relay/internal/infrastructure/cache/redis"
	dotenvvault "github.com/unifiedui/chat-relay/internal/infrastructure/vault/dotenv"
	"github.com/unifiedui/chat-relay/internal/pkg/encryption"
	"github.com/unifiedui/chat-relay/internal/services/session"
	"github.com/unifiedui/chat-relay/internal/services/upstream"
)

const commandTimeout = 30 * time.Second

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Inspect and maintain chat relay sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(sessionsCmd(), signURLCmd())
	return root
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session store maintenance",
	}
	cmd.PersistentFlags().String("owner", "", "Owner (user id) of the sessions")
	_ = cmd.MarkPersistentFlagRequired("owner")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List an owner's sessions, most recent first",
			Args:  cobra.NoArgs,
			RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, _ []string) error {
				summaries, err := svc.ListSessions(ctx, owner)
				if err != nil {
					return err
				}
				return printSummaries(cmd.OutOrStdout(), summaries)
			}),
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Print a session transcript",
			Args:  cobra.ExactArgs(1),
			RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, args []string) error {
				messages, err := svc.GetMessages(ctx, owner, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range messages {
					fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear <session-id>",
			Short: "Drop a transcript, keeping its system message",
			Args:  cobra.ExactArgs(1),
			RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, args []string) error {
				sess, err := svc.ClearMessages(ctx, owner, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s (%d messages kept)\n", sess.ID, len(sess.Messages))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, args []string) error {
				if err := svc.DeleteSession(ctx, owner, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Delete every session of an owner",
			Args:  cobra.NoArgs,
			RunE: withSessions(func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, _ []string) error {
				purged, err := svc.PurgeOwner(ctx, owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions of %s\n", purged, owner)
				return nil
			}),
		},
	)
	return cmd
}

func signURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-url [url]",
		Short: "Print the signed upstream URL, for debugging handshakes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			v := dotenvvault.NewVault()
			apiKey, err := vault.Resolve(ctx, v, cfg.Upstream.APIKey)
			if err != nil {
				return err
			}
			apiSecret, err := vault.Resolve(ctx, v, cfg.Upstream.APISecret)
			if err != nil {
				return err
			}

			rawURL := cfg.Upstream.URL
			if len(args) == 1 {
				rawURL = args[0]
			}

			signer := &upstream.Signer{APIKey: apiKey, APISecret: apiSecret}
			signed, err := signer.SignURL(rawURL, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
}

type sessionsFunc func(ctx context.Context, cmd *cobra.Command, svc session.Service, owner string, args []string) error

// withSessions opens the session store for the duration of one command.
func withSessions(fn sessionsFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		cacheClient, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer cacheClient.Close()

		key, err := vault.Resolve(ctx, dotenvvault.NewVault(), cfg.Vault.EncryptionKey)
		if err != nil {
			return err
		}
		encryptor, err := encryption.New(key)
		if err != nil {
			return err
		}

		svc, err := session.NewService(&session.Config{
			CacheClient: cacheClient,
			Encryptor:   encryptor,
			TTL:         cfg.Session.TTL,
			MaxMessages: cfg.Session.MaxMessages,
		})
		if err != nil {
			return err
		}

		return fn(ctx, cmd, svc, owner, args)
	}
}

func openCache(cfg *config.Config) (cache.Client, error) {
	if cache.Type(cfg.Cache.Type) != cache.TypeRedis {
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	return rediscache.NewClient(rediscache.Config{
		Host:       cfg.Cache.Host,
		Port:       cfg.Cache.Port,
		Password:   cfg.Cache.Password,
		DB:         cfg.Cache.DB,
		DefaultTTL: cfg.Session.TTL,
	})
}

func printSummaries(out io.Writer, summaries []*models.SessionSummary) error {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tUPDATED\tPREVIEW")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.UpdatedAt.Format(time.RFC3339), s.Preview)
	}
	return w.Flush()
}
