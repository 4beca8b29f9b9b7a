package main

import (
	"github.com/spf13/cobra"
)

func newTranscribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe an existing WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			outcomes, err := env.services.Controller.TranscribeFile(cmd.Context(), args[0], env.selection)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), <-outcomes)
		},
	}
}
