package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"interview-processor-go/internal/processor"
	"interview-processor-go/internal/report"
)

var (
	outputDir    string
	languageCode string
)

var processVideoCmd = &cobra.Command{
	Use:   "process-video <video-path>",
	Short: "Extract questions from a single video file or s3:// object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath := args[0]
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		d, err := newDeps(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		proc, err := d.buildProcessor()
		if err != nil {
			return err
		}

		log.WithField("video_path", videoPath).Info("processing single video")
		start := time.Now()
		res, runErr := proc.Run(cmd.Context(), processor.Request{VideoRef: videoPath, LanguageCode: languageCode})
		rep := report.Summarize(videoPath, res, runErr, time.Since(start), []string{"s3", "transcribe", cfg.Extractor.Provider})

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Processing Summary ===")
		if rep.Status == report.StatusSuccess {
			fmt.Fprintln(out, "Processing completed successfully")
			fmt.Fprintf(out, "  Questions found: %d\n", rep.Summary.TotalQuestions)
			fmt.Fprintf(out, "  Failed answers: %d\n", rep.Summary.FailedAnswers)
			fmt.Fprintf(out, "  Processing time: %.1f seconds\n", rep.Summary.ProcessingDurationSeconds)
		} else {
			fmt.Fprintf(out, "Processing failed: %s\n", rep.Summary.ErrorMessage)
		}

		if outputDir != "" {
			jsonPath, xlsxPath, err := report.Write(outputDir, rep)
			if err != nil {
				log.WithError(err).Error("failed to save results")
			} else {
				fmt.Fprintf(out, "Results saved to: %s, %s\n", jsonPath, xlsxPath)
			}
		}

		if rep.Status != report.StatusSuccess {
			if runErr == nil {
				runErr = errors.New(rep.Summary.ErrorMessage)
			}
			return runErr
		}
		return nil
	},
}

func init() {
	processVideoCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the JSON and XLSX results")
	processVideoCmd.Flags().StringVar(&languageCode, "language", "en-US", "Language code for transcription")
}
