package audio

import (
	"errors"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()
	in := []float32{0, 0.5, -0.5, 1, -1}

	samples, rate, err := DecodeWAV(EncodeWAV(in, 22050))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
	if len(samples) != len(in) {
		t.Fatalf("len = %d, want %d", len(samples), len(in))
	}
	// Encoding again must reproduce the identical PCM bytes.
	if string(Float32ToInt16(samples)) != string(Float32ToInt16(in)) {
		t.Error("samples not bit-identical after round trip")
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OggS....frames..")},
		{"truncated header", []byte("RIFF")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := DecodeWAV(tc.data); !errors.Is(err, ErrNotWAV) {
				t.Errorf("err = %v, want ErrNotWAV", err)
			}
		})
	}
}

func TestDecodeWAV_StereoKeepsFirstChannel(t *testing.T) {
	t.Parallel()
	// Hand-build a stereo container: left channel rising, right zero.
	left := []float32{0.1, 0.2, 0.3}
	mono := EncodeWAV(left, 16000)

	// Rewrite as stereo by interleaving zero right-channel samples.
	interleaved := make([]float32, 0, len(left)*2)
	for _, s := range left {
		interleaved = append(interleaved, s, 0)
	}
	stereo := EncodeWAV(interleaved, 16000)
	stereo[22] = 2 // channel count
	stereo[32] = 4 // block align

	samples, _, err := DecodeWAV(stereo)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	wantSamples, _, _ := DecodeWAV(mono)
	for i := range wantSamples {
		if samples[i] != wantSamples[i] {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], wantSamples[i])
		}
	}
}
