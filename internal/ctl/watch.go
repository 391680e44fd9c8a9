package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/client"
	"github.com/SHAIKYASIR/skillsync/pkg/models"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the chat of a project as messages arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.fillMissing(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			log := newLogger(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := client.Dial(ctx, cfg.wsBase(), client.Options{
				APIKey:    cfg.APIKey,
				UserID:    cfg.UserID,
				Signature: cfg.Signature,
				Logger:    &log,
			})
			if err != nil {
				return err
			}
			defer c.Close()
			log.Debug().Str("addr", cfg.wsBase()).Str("project", projectID).Msg("connected")
			return watchMessages(ctx, c, projectID, cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id to follow")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// watchMessages prints the current chat of projectID, then every new message
// until ctx ends or the connection drops.
func watchMessages(ctx context.Context, c *client.Client, projectID string, w io.Writer, log zerolog.Logger) error {
	var initial []models.Message
	sub, err := c.Subscribe(ctx, "watch", "listMessages", map[string]string{"projectId": projectID}, &initial)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})
	printNew(w, initial, seen)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.Updates:
			if !ok {
				if err := c.Err(); err != nil && !errors.Is(err, client.ErrClosed) {
					return err
				}
				return nil
			}
			var msgs []models.Message
			if err := u.Decode(&msgs); err != nil {
				log.Warn().Err(err).Uint64("version", u.Version).Msg("undecodable update")
				continue
			}
			printNew(w, msgs, seen)
		}
	}
}

func printNew(w io.Writer, msgs []models.Message, seen map[string]struct{}) {
	for _, m := range msgs {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		fmt.Fprintf(w, "[%s] %s: %s\n", humanize.Time(time.UnixMilli(m.CreatedAt)), m.SenderID, m.Content)
	}
}
