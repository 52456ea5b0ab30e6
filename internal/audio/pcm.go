package audio

import (
	"fmt"
	"math"
)

// Decode reads 16-bit signed little-endian PCM into samples.
func Decode(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples, nil
}

// Encode writes samples as 16-bit signed little-endian PCM.
func Encode(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// Resample converts between sample rates with linear interpolation.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	step := float64(inputRate) / float64(outputRate)
	output := make([]int16, len(samples)*outputRate/inputRate)

	for i := range output {
		srcPos := float64(i) * step
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(math.Round(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction))
	}
	return output
}

// ApplyGain scales samples by gain, clipping at the int16 range. A gain of 1
// returns the input unchanged.
func ApplyGain(samples []int16, gain float64) []int16 {
	if gain == 1 {
		return samples
	}
	if gain < 0 {
		gain = 0
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// Convert resamples 16-bit PCM and applies gain in one pass over the bytes.
func Convert(pcm []byte, inputRate, outputRate int, gain float64) ([]byte, error) {
	samples, err := Decode(pcm)
	if err != nil {
		return nil, err
	}
	samples = Resample(samples, inputRate, outputRate)
	return Encode(ApplyGain(samples, gain)), nil
}
