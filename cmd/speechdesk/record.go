package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"speechdesk/internal/domain"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone until Enter, then transcribe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			controller := env.services.Controller
			if err := controller.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Recording... press Enter to stop.")
			waitForEnter(cmd.Context(), cmd.InOrStdin())

			// Stop must still run after an interrupt so the clip gets written.
			outcomes, err := controller.Stop(context.WithoutCancel(cmd.Context()), env.selection)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), <-outcomes)
		},
	}
}

func waitForEnter(ctx context.Context, in io.Reader) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bufio.NewReader(in).ReadString('\n')
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func printOutcome(w io.Writer, outcome domain.Outcome) error {
	if outcome.Err != nil {
		return outcome.Err
	}
	if outcome.Transcript.Text == "" {
		return fmt.Errorf("no speech detected")
	}
	_, err := fmt.Fprintln(w, outcome.Transcript.Text)
	return err
}
