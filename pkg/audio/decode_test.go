package audio

import (
	"math"
	"testing"
)

// TestResample_SameRate verifies pass-through when rates match.
func TestResample_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

// TestResample_Downsample verifies 2:1 downsampling halves the sample count.
func TestResample_Downsample(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 10))
	}
	out := Resample(in, 32000, 16000)
	if len(out) != 500 {
		t.Errorf("expected 500 samples, got %d", len(out))
	}
}

// TestResample_Upsample verifies 1:2 upsampling doubles the sample count and
// interpolates between neighbours.
func TestResample_Upsample(t *testing.T) {
	in := []float32{0, 1}
	out := Resample(in, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample: got %v, want 0", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("interpolated sample: got %v, want 0.5", out[1])
	}
}

// TestResample_Empty verifies empty input stays empty.
func TestResample_Empty(t *testing.T) {
	if out := Resample(nil, 44100, 16000); len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}
}

// TestDownmix_Stereo verifies channel averaging.
func TestDownmix_Stereo(t *testing.T) {
	in := []float32{0.5, -0.5, 1.0, 0.0}
	out := downmix(in, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out))
	}
	if out[0] != 0 || out[1] != 0.5 {
		t.Errorf("got %v, want [0 0.5]", out)
	}
}

// TestNormalize_16Bit verifies 16-bit scaling and clamping.
func TestNormalize_16Bit(t *testing.T) {
	out := normalize([]int{0, 16384, -32768, 32767}, 16)
	if out[0] != 0 {
		t.Errorf("zero sample: got %v", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("half scale: got %v", out[1])
	}
	if out[2] != -1 {
		t.Errorf("min sample: got %v", out[2])
	}
	if out[3] >= 1.0001 || out[3] < 0.99 {
		t.Errorf("max sample: got %v", out[3])
	}
}

// TestWAVDecoder_InvalidInput verifies garbage bytes map to ErrDecoding.
func TestWAVDecoder_InvalidInput(t *testing.T) {
	d := NewWAVDecoder()
	if _, err := d.Decode([]byte("definitely not audio")); err == nil {
		t.Fatal("expected decoding error")
	}
}
