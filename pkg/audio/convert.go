package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToInt16 encodes normalised float32 samples as 16-bit signed
// little-endian PCM bytes. Values outside [-1, 1] are clamped. Rounding is
// to nearest so a decode/encode cycle reproduces the original bytes.
func Float32ToInt16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Int16ToFloat32 decodes 16-bit signed little-endian PCM bytes into
// normalised float32 samples. A trailing odd byte is ignored.
func Int16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32767
	}
	return out
}

// ResampleMono16 performs linear-interpolation resampling of 16-bit
// little-endian mono PCM from srcRate to dstRate. When the rates match the
// input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return nil
	}
	dstSamples := srcSamples * dstRate / srcRate
	out := make([]byte, dstSamples*2)
	for i := 0; i < dstSamples; i++ {
		// Position in the source expressed as sample index + fraction.
		pos := float64(i) * float64(srcRate) / float64(dstRate)
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
