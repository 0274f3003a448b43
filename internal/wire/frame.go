// Package wire implements the duplex protocol between an edge device and the
// compute host.
//
// Upstream (edge to host) frames are binary websocket messages carrying raw
// little-endian int16 PCM, mono 16 kHz. Downstream (host to edge) frames are
// JSON text messages tagged "text" or "audio"; audio payloads are
// hex-encoded PCM with an explicit sample rate.
package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sycalabs/ava/pkg/audio"
)

// Frame types.
const (
	TypeText  = "text"
	TypeAudio = "audio"
)

// Frame is a downstream message from host to edge.
type Frame struct {
	// Type is TypeText or TypeAudio.
	Type string `json:"type"`

	// Text carries the assistant reply for TypeText frames.
	Text string `json:"text,omitempty"`

	// Data is hex-encoded little-endian int16 PCM for TypeAudio frames.
	Data string `json:"data,omitempty"`

	// SampleRate of the encoded audio in Hz.
	SampleRate int `json:"samplerate,omitempty"`
}

// TextFrame builds a reply-text frame.
func TextFrame(text string) Frame {
	return Frame{Type: TypeText, Text: text}
}

// AudioFrame builds an audio frame from normalised samples.
func AudioFrame(samples []float32, sampleRate int) Frame {
	return Frame{
		Type:       TypeAudio,
		Data:       hex.EncodeToString(audio.Float32ToInt16(samples)),
		SampleRate: sampleRate,
	}
}

// Marshal encodes the frame as JSON.
func (f Frame) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}
	return data, nil
}

// ParseFrame decodes a downstream JSON frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: parse frame: %w", err)
	}
	switch f.Type {
	case TypeText, TypeAudio:
	default:
		return Frame{}, fmt.Errorf("wire: unknown frame type %q", f.Type)
	}
	return f, nil
}

// Samples decodes the audio payload of a TypeAudio frame.
func (f Frame) Samples() ([]float32, int, error) {
	if f.Type != TypeAudio {
		return nil, 0, fmt.Errorf("wire: frame type %q carries no audio", f.Type)
	}
	pcm, err := hex.DecodeString(f.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("wire: decode audio payload: %w", err)
	}
	samples := audio.Int16ToFloat32(pcm)
	rate := f.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	return samples, rate, nil
}
