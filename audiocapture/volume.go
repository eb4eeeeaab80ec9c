package audiocapture

import "math"

// fullScale is the maximum representable amplitude for 16-bit PCM.
const fullScale = 32768.0

// Level computes the volume metric for a chunk: mean absolute amplitude
// normalized by full scale and clamped to [0,1]. Degenerate input, including
// an empty chunk or pure silence, yields 0 and never NaN.
func Level(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}

	var sum float64
	for _, s := range chunk {
		sum += math.Abs(float64(s))
	}

	level := sum / float64(len(chunk)) / fullScale
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	return min(level, 1)
}
