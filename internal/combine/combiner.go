// Package combine muxes one video asset and one audio asset into a single
// clip whose length is governed by the audio.
//
// A call stages both inputs in a private workspace, probes them in parallel,
// plans how often the video must loop, runs one encode pass and reads the
// result back. The workspace is released on every exit path.
package combine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/avmerge-api/internal/media"
	"github.com/maauso/avmerge-api/internal/workspace"
)

const (
	videoFile  = "input.mp4"
	audioFile  = "input.mp3"
	outputFile = "output.mp4"

	workspacePrefix = "combine"
)

// Options are caller hints for a combine call.
type Options struct {
	// TargetDuration caps the output length in seconds. Zero means the audio
	// length is used.
	TargetDuration float64
	// Loop controls video repetition. nil or true loops a short video to
	// cover the audio; false plays the video once.
	Loop *bool
}

// loopEnabled reports whether the caller allows looping.
func (o Options) loopEnabled() bool {
	return o.Loop == nil || *o.Loop
}

// Request carries the two input assets.
type Request struct {
	Video   []byte
	Audio   []byte
	Options Options
}

// Result is the combined asset plus what was measured to produce it.
type Result struct {
	// Data is the combined MP4.
	Data []byte
	// VideoDuration and AudioDuration are the probed input durations in seconds.
	VideoDuration float64
	AudioDuration float64
	// Plan is the alignment applied to the video input.
	Plan media.AlignmentPlan
}

// Combiner runs combine calls. It holds no per-call state and is safe for
// concurrent use.
type Combiner struct {
	inspector media.MediaInspector
	encoder   media.MediaEncoder
	tempRoot  string
	logger    *slog.Logger
	acquire   func(root, prefix string) (scratchDir, error)
}

// scratchDir is the part of *workspace.Workspace a combine call uses.
type scratchDir interface {
	Dir() string
	Path(name string) string
	Write(ctx context.Context, name string, data io.Reader) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Release() error
}

func acquireWorkspace(root, prefix string) (scratchDir, error) {
	ws, err := workspace.Acquire(root, prefix)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Option configures a Combiner.
type Option func(*Combiner)

// WithTempRoot sets the directory under which workspaces are created.
func WithTempRoot(dir string) Option {
	return func(c *Combiner) {
		c.tempRoot = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Combiner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCombiner creates a Combiner backed by the given prober and encoder.
func NewCombiner(inspector media.MediaInspector, encoder media.MediaEncoder, opts ...Option) *Combiner {
	c := &Combiner{
		inspector: inspector,
		encoder:   encoder,
		logger:    slog.Default(),
		acquire:   acquireWorkspace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine produces one clip from req.Video and req.Audio. Failures are
// returned as *Error; use errors.Is with the stage sentinels to classify
// them. Cancelling ctx stops a running probe or encode.
func (c *Combiner) Combine(ctx context.Context, req Request) (res Result, err error) {
	if len(req.Video) == 0 || len(req.Audio) == 0 {
		return Result{}, newError(StageStaging, ErrEmptyInput)
	}

	start := time.Now()
	ws, err := c.acquire(c.tempRoot, workspacePrefix)
	if err != nil {
		return Result{}, newError(StageStaging, err)
	}
	logger := c.logger.With(slog.String("workspace", ws.Dir()))

	defer func() {
		releaseErr := ws.Release()
		if releaseErr == nil {
			return
		}
		if cerr, ok := err.(*Error); ok {
			cerr.Cleanup = releaseErr
		}
		logger.Warn("combine: cleanup warning",
			slog.String("error", releaseErr.Error()),
		)
	}()

	videoPath, audioPath, err := c.stage(ctx, ws, req)
	if err != nil {
		return Result{}, newError(StageStaging, err)
	}
	logger.Debug("combine: inputs staged",
		slog.Int("video_bytes", len(req.Video)),
		slog.Int("audio_bytes", len(req.Audio)),
	)

	videoInfo, audioInfo, err := c.probe(ctx, videoPath, audioPath)
	if err != nil {
		return Result{}, newError(StageProbe, err)
	}

	plan, err := c.plan(videoInfo.Duration, audioInfo.Duration, req.Options)
	if err != nil {
		return Result{}, newError(StageAlignment, err)
	}
	logger.Info("combine: alignment planned",
		slog.Float64("video_duration", videoInfo.Duration),
		slog.Float64("audio_duration", audioInfo.Duration),
		slog.Bool("loop_video", plan.LoopVideo),
		slog.Int("repeat_count", plan.RepeatCount),
	)

	muxReq := media.MuxRequest{
		VideoPath:  videoPath,
		AudioPath:  audioPath,
		OutputPath: ws.Path(outputFile),
		Plan:       plan,
	}
	if req.Options.TargetDuration > 0 {
		muxReq.MaxDuration = req.Options.TargetDuration
	}
	if err := c.encoder.Mux(ctx, muxReq); err != nil {
		return Result{}, newError(StageMux, err)
	}

	data, err := ws.Read(ctx, outputFile)
	if err != nil {
		return Result{}, newError(StageReadBack, err)
	}
	if len(data) == 0 {
		return Result{}, newError(StageReadBack, ErrEmptyOutput)
	}

	logger.Info("combine: completed",
		slog.Int("output_bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return Result{
		Data:          data,
		VideoDuration: videoInfo.Duration,
		AudioDuration: audioInfo.Duration,
		Plan:          plan,
	}, nil
}

// stage writes both inputs into the workspace. Both writes complete before
// any probe starts.
func (c *Combiner) stage(ctx context.Context, ws scratchDir, req Request) (string, string, error) {
	videoPath, err := ws.Write(ctx, videoFile, bytes.NewReader(req.Video))
	if err != nil {
		return "", "", fmt.Errorf("stage video: %w", err)
	}
	audioPath, err := ws.Write(ctx, audioFile, bytes.NewReader(req.Audio))
	if err != nil {
		return "", "", fmt.Errorf("stage audio: %w", err)
	}
	return videoPath, audioPath, nil
}

// probe inspects both inputs concurrently. The group shares no cancellation,
// so a failing probe never kills the other one; Wait returns only after both
// have finished.
func (c *Combiner) probe(ctx context.Context, videoPath, audioPath string) (media.ProbeResult, media.ProbeResult, error) {
	var videoInfo, audioInfo media.ProbeResult
	var g errgroup.Group

	g.Go(func() error {
		info, err := c.inspector.Probe(ctx, videoPath)
		if err != nil {
			return fmt.Errorf("video: %w", err)
		}
		if !info.HasStream(media.CodecTypeVideo) {
			return fmt.Errorf("video: %w: no %s stream", media.ErrMissingStream, media.CodecTypeVideo)
		}
		videoInfo = info
		return nil
	})
	g.Go(func() error {
		info, err := c.inspector.Probe(ctx, audioPath)
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		if !info.HasStream(media.CodecTypeAudio) {
			return fmt.Errorf("audio: %w: no %s stream", media.ErrMissingStream, media.CodecTypeAudio)
		}
		audioInfo = info
		return nil
	})

	if err := g.Wait(); err != nil {
		return media.ProbeResult{}, media.ProbeResult{}, err
	}
	return videoInfo, audioInfo, nil
}

// plan computes the alignment. A target duration shorter than the audio
// lowers the length the video has to cover; looping can be switched off
// by the caller but degenerate durations are always rejected.
func (c *Combiner) plan(videoDuration, audioDuration float64, opts Options) (media.AlignmentPlan, error) {
	cover := audioDuration
	if opts.TargetDuration > 0 && opts.TargetDuration < cover {
		cover = opts.TargetDuration
	}

	plan, err := media.Plan(videoDuration, cover)
	if err != nil {
		return media.AlignmentPlan{}, err
	}
	if !opts.loopEnabled() {
		return media.NoLoop(), nil
	}
	return plan, nil
}
