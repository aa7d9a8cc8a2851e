package media

import (
	"fmt"
	"math"
)

// AlignmentPlan records whether the video input must be repeated before the
// shortest-stream truncation, and how many times it is played in total.
type AlignmentPlan struct {
	// LoopVideo is true when the video is shorter than the duration it must cover.
	LoopVideo bool
	// RepeatCount is the total number of times the video is played. It is
	// always at least 1; 1 means no repetition.
	RepeatCount int
}

// NoLoop returns the plan that plays the video once.
func NoLoop() AlignmentPlan {
	return AlignmentPlan{RepeatCount: 1}
}

// ExtraLoops returns the number of additional plays appended to the first
// one. It is the value passed to ffmpeg's -stream_loop input option.
func (p AlignmentPlan) ExtraLoops() int {
	if p.RepeatCount <= 1 {
		return 0
	}
	return p.RepeatCount - 1
}

// Plan decides how the video must be repeated so that it covers the audio.
//
// When the video is shorter, it is played ceil(audio/video) times so the
// looped video is at least as long as the audio. Otherwise it is played once
// and the encoder's shortest-stream truncation clips it to the audio.
// Non-positive or non-finite durations return ErrInvalidDuration.
func Plan(videoDuration, audioDuration float64) (AlignmentPlan, error) {
	if !validDuration(videoDuration) {
		return AlignmentPlan{}, fmt.Errorf("%w: video duration %v", ErrInvalidDuration, videoDuration)
	}
	if !validDuration(audioDuration) {
		return AlignmentPlan{}, fmt.Errorf("%w: audio duration %v", ErrInvalidDuration, audioDuration)
	}

	if videoDuration >= audioDuration {
		return NoLoop(), nil
	}

	count := int(math.Ceil(audioDuration / videoDuration))
	if count < 1 {
		count = 1
	}
	return AlignmentPlan{
		LoopVideo:   count > 1,
		RepeatCount: count,
	}, nil
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
