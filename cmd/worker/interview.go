package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var interviewID string

var processInterviewCmd = &cobra.Command{
	Use:   "process-interview",
	Short: "Process one interview by id without the queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		d, err := newDeps(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		wf, err := d.buildWorkflow(nil)
		if err != nil {
			return err
		}
		out := wf.Run(cmd.Context(), interviewID, nil)
		if !out.Success {
			return fmt.Errorf("interview %s failed at %s (%s): %w", interviewID, out.Step, out.Kind, out.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed interview %s: %d questions saved in %s\n",
			interviewID, out.Questions, out.Duration.Round(100*time.Millisecond))
		return nil
	},
}

func init() {
	processInterviewCmd.Flags().StringVar(&interviewID, "interview-id", "", "Id of the interview to process")
	_ = processInterviewCmd.MarkFlagRequired("interview-id")
}
