// Package whisper contains the transcription engine backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/sandakan/pkg/audio"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
)

// defaultLanguage is used when no language option is given.
const defaultLanguage = "en"

// Compile-time assertion that NativeEngine satisfies transcribe.Engine.
var _ transcribe.Engine = (*NativeEngine)(nil)

// NativeEngine implements transcribe.Engine using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared; whisper contexts are not thread-safe, so inference is
// serialised by a mutex and only one transcription runs at a time.
type NativeEngine struct {
	model    whisperlib.Model
	decoder  audio.Decoder
	language string

	inferMu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) NativeOption {
	return func(e *NativeEngine) { e.language = lang }
}

// WithDecoder overrides the audio decoder used to turn staged bytes into
// 16 kHz mono PCM. Defaults to the WAV decoder.
func WithDecoder(d audio.Decoder) NativeOption {
	return func(e *NativeEngine) { e.decoder = d }
}

// NewNative creates a NativeEngine that loads the whisper.cpp model from the
// given file path. The caller must call Close when the engine is no longer
// needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: modelPath must not be empty", transcribe.ErrModelLoad)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", transcribe.ErrModelLoad, modelPath, err)
	}

	e := &NativeEngine{
		model:    model,
		decoder:  audio.NewWAVDecoder(),
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe implements transcribe.Engine.
func (e *NativeEngine) Transcribe(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples, err := e.decoder.Decode(data)
	if err != nil {
		if errors.Is(err, audio.ErrDecoding) {
			return "", fmt.Errorf("%w: %v", transcribe.ErrDecoding, err)
		}
		return "", fmt.Errorf("%w: %v", transcribe.ErrUnsupportedFormat, err)
	}

	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	// Each whisper context is single-use and NOT thread-safe; the shared
	// model may be used from multiple contexts sequentially.
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: create context: %v", transcribe.ErrTranscription, err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", e.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process audio: %v", transcribe.ErrTranscription, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read segment: %v", transcribe.ErrTranscription, err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
