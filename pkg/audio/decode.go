// Package audio decodes staged audio bytes into the PCM layout the local
// transcription models expect: 16 kHz mono float32 samples in [-1.0, 1.0].
package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// WhisperSampleRate is the sample rate whisper models are trained on.
const WhisperSampleRate = 16000

// ErrDecoding indicates the input bytes could not be decoded as audio.
var ErrDecoding = errors.New("audio: decoding failed")

// Decoder converts encoded audio bytes to 16 kHz mono float32 PCM.
type Decoder interface {
	Decode(data []byte) ([]float32, error)
}

// Ensure WAVDecoder implements the Decoder interface.
var _ Decoder = (*WAVDecoder)(nil)

// WAVDecoder decodes RIFF/WAV input. Multi-channel input is downmixed by
// averaging and any sample rate is resampled to 16 kHz.
type WAVDecoder struct{}

// NewWAVDecoder returns a ready-to-use WAVDecoder.
func NewWAVDecoder() *WAVDecoder { return &WAVDecoder{} }

// Decode implements Decoder.
func (d *WAVDecoder) Decode(data []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecoding)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM: %v", ErrDecoding, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: empty PCM payload", ErrDecoding)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrDecoding, channels)
	}
	rate := buf.Format.SampleRate
	if rate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecoding, rate)
	}

	pcm := normalize(buf.Data, int(dec.BitDepth))
	if channels > 1 {
		pcm = downmix(pcm, channels)
	}
	if rate != WhisperSampleRate {
		pcm = Resample(pcm, rate, WhisperSampleRate)
	}
	return pcm, nil
}

// normalize scales integer PCM samples to float32 in [-1.0, 1.0].
func normalize(data []int, bitDepth int) []float32 {
	scale := float32(int64(1) << (bitDepth - 1))
	if bitDepth <= 0 {
		scale = 1 << 15
	}
	out := make([]float32, len(data))
	for i, s := range data {
		v := float32(s) / scale
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// downmix averages interleaved channels into mono.
func downmix(pcm []float32, channels int) []float32 {
	frames := len(pcm) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += pcm[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono float32 PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func Resample(pcm []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < len(pcm) {
			s1 = pcm[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
