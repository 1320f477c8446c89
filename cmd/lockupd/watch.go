package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/feed"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		tok  string
		from uint64
	)
	cmd := &cobra.Command{
		Use:   "watch [ws://host:port/ws]",
		Short: "Follow a server's event feed and print events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := feed.Dial(ctx, args[0], &feed.ClientConfig{
				Token:   domain.Address(tok),
				FromSeq: from,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					logger.Info("stopped", zap.Uint64("last_seq", client.LastSeq()))
					return nil
				case ev, ok := <-client.Events():
					if !ok {
						return nil
					}
					if err := enc.Encode(feed.FromEvent(ev)); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "only events of this pool token")
	cmd.Flags().Uint64Var(&from, "from", 0, "first event sequence to replay (0 for live events only)")
	return cmd
}
