package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/avmerge-api/internal/combine"
)

var errNegativeTarget = errors.New("--target-duration must not be negative")

type combineSummary struct {
	Output        string  `json:"output"`
	Bytes         int     `json:"bytes"`
	VideoDuration float64 `json:"video_duration"`
	AudioDuration float64 `json:"audio_duration"`
	RepeatCount   int     `json:"repeat_count"`
}

func newCombineCommand(ctx *commandContext) *cobra.Command {
	var videoPath, audioPath, outPath string
	var targetDuration float64
	var noLoop, jsonOut bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Combine a video file and an audio file into an MP4",
		Long: `Combine plays the video alongside the audio. A video shorter than the
audio is looped to cover it unless --no-loop is given; the output never
outlasts the audio or --target-duration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetDuration < 0 {
				return errNegativeTarget
			}
			if err := ctx.ensureMedia(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = ctx.config.CombineTimeout
			}

			video, err := os.ReadFile(videoPath)
			if err != nil {
				return fmt.Errorf("read video: %w", err)
			}
			audio, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			opts := combine.Options{TargetDuration: targetDuration}
			if noLoop {
				loop := false
				opts.Loop = &loop
			}

			runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := ctx.combiner.Combine(runCtx, combine.Request{
				Video:   video,
				Audio:   audio,
				Options: opts,
			})
			if err != nil {
				return err
			}

			if err := os.WriteFile(outPath, res.Data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			summary := combineSummary{
				Output:        outPath,
				Bytes:         len(res.Data),
				VideoDuration: res.VideoDuration,
				AudioDuration: res.AudioDuration,
				RepeatCount:   res.Plan.RepeatCount,
			}
			if jsonOut {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, video %.2fs x%d, audio %.2fs)\n",
				summary.Output, summary.Bytes, summary.VideoDuration, summary.RepeatCount, summary.AudioDuration)
			return nil
		},
	}

	cmd.Flags().StringVar(&videoPath, "video", "", "Path to the video input")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Path to the audio input")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Path of the MP4 to write")
	cmd.Flags().Float64Var(&targetDuration, "target-duration", 0, "Cap the output length in seconds (0 uses the audio length)")
	cmd.Flags().BoolVar(&noLoop, "no-loop", false, "Play the video once instead of looping it to cover the audio")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort after this long (defaults to COMBINE_TIMEOUT)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the summary as JSON")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("audio")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
