package capture

import (
	"encoding/binary"
	"math"

	"go.enteract.dev/enteract/audiodev"
)

// minLevelDB is the floor for reported audio levels.
const minLevelDB = -60.0

// appendSamples decodes up to n interleaved samples from a native device
// buffer into float32 values in [-1, 1], appending to dst.
func appendSamples(dst []float32, buf audiodev.Buffer, n int) []float32 {
	switch {
	case buf.F32 != nil:
		return append(dst, buf.F32[:min(n, len(buf.F32))]...)
	case buf.I16 != nil:
		for _, s := range buf.I16[:min(n, len(buf.I16))] {
			dst = append(dst, float32(s)/32768.0)
		}
		return dst
	case buf.I32 != nil:
		for _, s := range buf.I32[:min(n, len(buf.I32))] {
			dst = append(dst, float32(float64(s)/2147483648.0))
		}
		return dst
	}
	return dst
}

// downmixMono folds interleaved frames to mono by averaging the channels of
// each frame with equal weight, appending to dst.
func downmixMono(in []float32, channels int, dst []float32) []float32 {
	if channels <= 1 {
		return append(dst, in...)
	}
	frames := len(in) / channels
	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += in[base+c]
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}

// resampleLinear converts mono samples from srcRate to dstRate using linear
// interpolation, appending to dst. Output length is
// round(len(in) * dstRate / srcRate).
func resampleLinear(in []float32, srcRate, dstRate int, dst []float32) []float32 {
	if len(in) == 0 {
		return dst
	}
	if srcRate == dstRate {
		return append(dst, in...)
	}
	outLen := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	if outLen == 0 {
		return dst
	}
	step := float64(srcRate) / float64(dstRate)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			dst = append(dst, in[len(in)-1])
			continue
		}
		frac := float32(pos - float64(j))
		dst = append(dst, in[j]+(in[j+1]-in[j])*frac)
	}
	return dst
}

// pcm16Bytes encodes samples as little-endian 16-bit PCM, clipping to [-1, 1].
func pcm16Bytes(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// rms returns the root-mean-square amplitude of the samples.
func rms(in []float32) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, s := range in {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(in)))
}

// levelDB converts an RMS amplitude to decibels, clamped at the floor so
// silence reports a finite level.
func levelDB(r float64) float64 {
	if r <= 0 {
		return minLevelDB
	}
	db := 20 * math.Log10(r)
	if db < minLevelDB {
		return minLevelDB
	}
	return db
}
