// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Streams chunk by chunk or converts a whole decoded buffer at once
package resample

// Resampler performs linear interpolation to convert between sample rates.
// State carries across Resample calls so consecutive chunks join smoothly.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []int32 // final input frame of the previous chunk
	haveLast   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int32, channels),
	}
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of samples written.
func (r *Resampler) Resample(input []int32, output []int32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	// Frame -1 is the carried frame from the previous chunk.
	frameAt := func(i, ch int) int32 {
		if i < 0 {
			return r.lastFrame[ch]
		}
		return input[i*r.channels+ch]
	}

	offset := 0.0
	if r.haveLast {
		offset = 1.0
	}

	outIdx := 0
	for outIdx < outputFrames {
		pos := r.position - offset
		idx := int(pos)
		if pos < 0 {
			idx = -1
		}
		if idx+1 >= inputFrames {
			break
		}

		frac := pos - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			a := float64(frameAt(idx, ch))
			b := float64(frameAt(idx+1, ch))
			output[outIdx*r.channels+ch] = int32(a*(1.0-frac) + b*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// Rebase so the last input frame becomes frame -1 of the next chunk.
	r.position -= offset + float64(inputFrames-1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:])
	r.haveLast = true

	return outIdx * r.channels
}

// Reset clears carried state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.haveLast = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio + 0.5)
	return outputFrames * r.channels
}

// Convert resamples a complete buffer. The output keeps the input's
// duration to the nearest frame; the tail holds the last input frame.
func Convert(input []int32, inputRate, outputRate, channels int) []int32 {
	if inputRate == outputRate || len(input) < channels {
		out := make([]int32, len(input))
		copy(out, input)
		return out
	}

	r := New(inputRate, outputRate, channels)
	out := make([]int32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, out)

	last := input[len(input)/channels*channels-channels:]
	for i := n; i+channels <= len(out); i += channels {
		copy(out[i:i+channels], last)
	}
	return out
}
