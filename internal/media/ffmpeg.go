package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Static errors for media operations.
var (
	// ErrInvalidDuration is returned when a duration is not positive and finite.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrProbeParse is returned when ffprobe output cannot be decoded.
	ErrProbeParse = errors.New("ffprobe output unparseable")
	// ErrMissingStream is returned when an input lacks the stream kind it is used for.
	ErrMissingStream = errors.New("required stream not found")
	// ErrMissingPath is returned when a mux request omits an input or output path.
	ErrMissingPath = errors.New("mux request requires video, audio and output paths")
)

const (
	// AudioCodec is the fixed codec the audio stream is re-encoded to.
	AudioCodec = "aac"
	// DefaultAudioBitrate is used when no bitrate is configured.
	DefaultAudioBitrate = "192k"

	defaultWaitDelay = 5 * time.Second
	// maxStderrBytes bounds the diagnostic text kept from a failed run.
	maxStderrBytes = 8 << 10
)

// FFmpegEncoder implements MediaEncoder using the ffmpeg CLI.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath   string
	audioBitrate string
	// waitDelay bounds how long ffmpeg may linger after its context is done.
	waitDelay time.Duration
}

// EncoderOption configures an FFmpegEncoder.
type EncoderOption func(*FFmpegEncoder)

// WithAudioBitrate sets the bitrate of the re-encoded audio stream.
func WithAudioBitrate(bitrate string) EncoderOption {
	return func(e *FFmpegEncoder) {
		if bitrate != "" {
			e.audioBitrate = bitrate
		}
	}
}

// WithWaitDelay sets how long to wait for ffmpeg to exit after it is killed.
func WithWaitDelay(d time.Duration) EncoderOption {
	return func(e *FFmpegEncoder) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEncoder(ffmpegPath string, opts ...EncoderOption) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEncoder{
		ffmpegPath:   ffmpegPath,
		audioBitrate: DefaultAudioBitrate,
		waitDelay:    defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mux combines the first video stream of req.VideoPath with the first audio
// stream of req.AudioPath into req.OutputPath.
func (e *FFmpegEncoder) Mux(ctx context.Context, req MuxRequest) error {
	if req.VideoPath == "" || req.AudioPath == "" || req.OutputPath == "" {
		return ErrMissingPath
	}
	return e.runFFmpeg(ctx, e.muxArgs(req))
}

// muxArgs builds the ffmpeg argument list for a mux request.
// -stream_loop is an input option and must precede the video -i.
func (e *FFmpegEncoder) muxArgs(req MuxRequest) []string {
	args := []string{
		"-y",           // Overwrite output file
		"-hide_banner", // Keep stderr to the diagnostics
		"-nostdin",     // Never wait on the terminal
	}

	if loops := req.Plan.ExtraLoops(); req.Plan.LoopVideo && loops > 0 {
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}

	args = append(args,
		"-i", req.VideoPath, // Input 0: video
		"-i", req.AudioPath, // Input 1: audio
		"-c:v", "copy", // Copy video stream without re-encoding
		"-c:a", AudioCodec, // Fixed audio codec
		"-b:a", e.audioBitrate,
		"-map", "0:v:0", // First video stream from the first input
		"-map", "1:a:0", // First audio stream from the second input
		"-shortest", // Stop when the shortest stream ends
	)

	if req.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(req.MaxDuration, 'f', 3, 64))
	}

	return append(args, req.OutputPath)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegEncoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.WaitDelay = e.waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: tail(stderr.String(), maxStderrBytes),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tail returns at most n trailing bytes of s; ffmpeg prints the cause last.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
