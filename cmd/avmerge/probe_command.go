package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/avmerge-api/internal/media"
)

type streamView struct {
	Index     int      `json:"index"`
	CodecType string   `json:"codec_type"`
	CodecName string   `json:"codec_name,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

type probeView struct {
	File     string       `json:"file"`
	Duration float64      `json:"duration"`
	Streams  []streamView `json:"streams"`
}

func newProbeView(file string, res media.ProbeResult) probeView {
	view := probeView{
		File:     file,
		Duration: res.Duration,
		Streams:  make([]streamView, 0, len(res.Streams)),
	}
	for _, s := range res.Streams {
		view.Streams = append(view.Streams, streamView{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
			Duration:  s.Duration,
		})
	}
	return view
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Print the duration and streams of media files as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureMedia(cmd.ErrOrStderr()); err != nil {
				return err
			}

			views := make([]probeView, 0, len(args))
			for _, file := range args {
				res, err := ctx.inspector.Probe(cmd.Context(), file)
				if err != nil {
					return fmt.Errorf("probe %s: %w", file, err)
				}
				views = append(views, newProbeView(file, res))
			}
			return writeJSON(cmd, views)
		},
	}
}
