// Package audio provides the core audio sample types and PCM conversion
// helpers shared by the capture, endpointing, synthesis, and transport layers.
//
// All pipeline audio is mono. Samples are normalised float32 values in the
// range [-1, 1]; the wire and file formats use 16-bit signed little-endian
// PCM. Conversions between the two are lossless enough for transport
// round-trips: Float32ToInt16 followed by Int16ToFloat32 reproduces the
// int16 payload bit-identically.
package audio

import (
	"math"
	"time"
)

// DefaultSampleRate is the pipeline-wide sample rate in Hz. Whisper-family
// recognisers expect 16 kHz mono, so capture, endpointing, and the wire
// protocol all use it.
const DefaultSampleRate = 16000

// DefaultChunkSamples is the number of samples per captured chunk
// (250 ms at 16 kHz).
const DefaultChunkSamples = 4000

// Chunk is a fixed-duration block of mono samples captured from an input
// stream. A Chunk is immutable once created; pipeline stages must not mutate
// Samples in place.
type Chunk struct {
	// Samples holds normalised mono samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Timestamp marks when the chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// RMS computes the root-mean-square energy of samples on the normalised
// [-1, 1] scale. An empty slice has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Concat joins the sample data of chunks into a single slice, preserving
// order. Used when an utterance buffer is finalised for transcription.
func Concat(chunks []Chunk) []float32 {
	var n int
	for _, c := range chunks {
		n += len(c.Samples)
	}
	out := make([]float32, 0, n)
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return out
}
