// Package media provides the probing, alignment and muxing primitives used to
// combine one video track with one audio track.
package media

import "context"

// Stream codec types as reported by ffprobe.
const (
	CodecTypeVideo = "video"
	CodecTypeAudio = "audio"
)

// StreamInfo describes a single stream of a probed media file.
type StreamInfo struct {
	// Index is the stream index within the container.
	Index int
	// CodecType is the stream kind ("video", "audio", "subtitle", ...).
	CodecType string
	// CodecName is the codec short name (e.g. "h264", "mp3").
	CodecName string
	// Duration is the stream duration in seconds, nil when the container
	// does not report one.
	Duration *float64
}

// ProbeResult is a read-only summary of a media file.
type ProbeResult struct {
	// Duration is the container duration in seconds. It is 0 when the
	// metadata omits it.
	Duration float64
	// Streams lists the streams in container order.
	Streams []StreamInfo
}

// HasStream reports whether the result contains at least one stream of the
// given codec type.
func (r ProbeResult) HasStream(codecType string) bool {
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// CountStreams returns the number of streams of the given codec type.
func (r ProbeResult) CountStreams(codecType string) int {
	n := 0
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			n++
		}
	}
	return n
}

// MediaInspector inspects a media file that already exists on local disk.
type MediaInspector interface {
	// Probe reports the container duration and per-stream metadata of the
	// file at path. It never modifies the file.
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// MuxRequest describes one combine pass.
type MuxRequest struct {
	// VideoPath is the input whose first video stream is copied.
	VideoPath string
	// AudioPath is the input whose first audio stream is re-encoded.
	AudioPath string
	// OutputPath is the single file written by the pass.
	OutputPath string
	// Plan tells the encoder how many times to play the video input.
	Plan AlignmentPlan
	// MaxDuration caps the output in seconds. Zero means no cap.
	MaxDuration float64
}

// MediaEncoder runs the external encode pass that muxes video and audio.
type MediaEncoder interface {
	// Mux writes req.OutputPath. The video stream is copied, the audio stream
	// is re-encoded and the output ends with the shortest stream.
	Mux(ctx context.Context, req MuxRequest) error
}
