package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lockup-ledger/internal/reporting"
	"lockup-ledger/internal/simulation"
)

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var withReport bool
	cmd := &cobra.Command{
		Use:   "simulate [scenario.yaml...]",
		Short: "Run scripted scenarios against an in-memory ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := simulation.NewRunner(logger)
			failed := 0
			for _, path := range args {
				if err := simulate(ctx, runner, path, withReport, cmd.OutOrStdout()); err != nil {
					logger.Error("scenario failed", zap.String("file", path), zap.Error(err))
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withReport, "report", false, "print the Markdown report of the final state")
	return cmd
}

func simulate(ctx context.Context, runner *simulation.Runner, path string, withReport bool, out io.Writer) error {
	sc, err := simulation.Load(path)
	if err != nil {
		return err
	}
	res, runErr := runner.Run(ctx, sc)

	fmt.Fprintf(out, "== %s (%s)\n", sc.Name, path)
	if res != nil {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tACTION\tBLOCK\tDETAIL")
		for _, st := range res.Steps {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", st.Step, st.Action, st.Block, st.Detail)
		}
		tw.Flush()
	}
	if runErr != nil {
		fmt.Fprintf(out, "FAIL: %v\n\n", runErr)
		return runErr
	}
	fmt.Fprintf(out, "ok: %d steps, %d events\n\n", len(res.Steps), len(res.Events))
	if withReport {
		fmt.Fprintln(out, reporting.RenderMarkdown(res.Report))
	}
	return nil
}
