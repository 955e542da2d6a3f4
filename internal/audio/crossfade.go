package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// CrossfadeFrames blends an outgoing frame into an incoming one. Progress
// ramps linearly from `from` at the first stereo sample to `to` at the last
// (0 = all outgoing, 1 = all incoming) and is shaped by smoothstep. A nil
// frame stands for silence. Returns a new frame of len(incoming), or of
// len(outgoing) when incoming is nil.
func CrossfadeFrames(outgoing, incoming []int16, from, to float64) []int16 {
	n := len(incoming)
	if incoming == nil {
		n = len(outgoing)
	}
	result := make([]int16, n)
	pairs := n / Channels
	if pairs == 0 {
		return result
	}

	for i := 0; i < n; i++ {
		t := from
		if pairs > 1 {
			t += (to - from) * float64(i/Channels) / float64(pairs-1)
		}
		gain := Smoothstep(t)

		var out, in float64
		if i < len(outgoing) {
			out = float64(outgoing[i]) * (1 - gain)
		}
		if i < len(incoming) {
			in = float64(incoming[i]) * gain
		}
		mixed := out + in

		// Clip to int16 range
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		result[i] = int16(mixed)
	}

	return result
}
