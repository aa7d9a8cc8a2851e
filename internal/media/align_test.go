package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_VideoShorterLoops(t *testing.T) {
	tests := []struct {
		name      string
		video     float64
		audio     float64
		wantCount int
	}{
		{"five into twelve", 5, 12, 3},
		{"exact multiple", 4, 12, 3},
		{"just over", 10, 10.01, 2},
		{"tiny video", 0.5, 30, 60},
		{"fractional", 2.5, 7.4, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Plan(tc.video, tc.audio)
			require.NoError(t, err)

			assert.True(t, plan.LoopVideo)
			assert.Equal(t, tc.wantCount, plan.RepeatCount)
			assert.Equal(t, int(math.Ceil(tc.audio/tc.video)), plan.RepeatCount)
			assert.GreaterOrEqual(t, float64(plan.RepeatCount)*tc.video, tc.audio)
			assert.Equal(t, tc.wantCount-1, plan.ExtraLoops())
		})
	}
}

func TestPlan_VideoLongerOrEqualDoesNotLoop(t *testing.T) {
	tests := []struct {
		video, audio float64
	}{
		{20, 8},
		{8, 8},
		{8.0001, 8},
		{3600, 0.1},
	}

	for _, tc := range tests {
		plan, err := Plan(tc.video, tc.audio)
		require.NoError(t, err)
		assert.False(t, plan.LoopVideo)
		assert.Equal(t, 1, plan.RepeatCount)
		assert.Equal(t, 0, plan.ExtraLoops())
	}
}

func TestPlan_DegenerateDurations(t *testing.T) {
	tests := []struct {
		name         string
		video, audio float64
	}{
		{"zero video", 0, 12},
		{"negative video", -1, 12},
		{"zero audio", 5, 0},
		{"negative audio", 5, -3},
		{"nan video", math.NaN(), 12},
		{"inf audio", 5, math.Inf(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(tc.video, tc.audio)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDuration)
		})
	}
}

func TestAlignmentPlan_ExtraLoops(t *testing.T) {
	assert.Equal(t, 0, NoLoop().ExtraLoops())
	assert.Equal(t, 0, AlignmentPlan{}.ExtraLoops())
	assert.Equal(t, 4, AlignmentPlan{LoopVideo: true, RepeatCount: 5}.ExtraLoops())
}
