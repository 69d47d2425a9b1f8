// Package transcribe defines the Engine interface for speech-to-text backends
// used by the ingestion pipeline.
//
// An engine receives the raw staged bytes of an audio or video upload and is
// responsible for any decoding it requires. Implementations must be safe for
// concurrent use.
package transcribe

import (
	"context"
	"errors"
)

// Engine error kinds.
var (
	// ErrDecoding indicates the input bytes could not be decoded to PCM.
	ErrDecoding = errors.New("transcribe: decoding failed")

	// ErrTranscription indicates the model ran but produced no usable result.
	ErrTranscription = errors.New("transcribe: transcription failed")

	// ErrUnsupportedFormat indicates the engine cannot handle the container
	// or codec of the input.
	ErrUnsupportedFormat = errors.New("transcribe: unsupported format")

	// ErrModelLoad indicates a local model could not be loaded.
	ErrModelLoad = errors.New("transcribe: model load failed")

	// ErrAPIRequest indicates a remote transcription API call failed.
	ErrAPIRequest = errors.New("transcribe: api request failed")

	// ErrNotConfigured indicates no transcription provider is configured.
	ErrNotConfigured = errors.New("transcribe: no transcription provider configured")
)

// Engine is the abstraction over any transcription backend.
type Engine interface {
	// Transcribe converts encoded audio bytes to text. The engine performs
	// whatever decoding it needs; callers pass bytes exactly as staged.
	Transcribe(ctx context.Context, data []byte) (string, error)
}

// Unavailable is the Engine used when no transcription provider is
// configured. Media ingestion jobs fail with ErrNotConfigured while text and
// PDF ingestion stays functional.
type Unavailable struct{}

// Transcribe implements Engine.
func (Unavailable) Transcribe(context.Context, []byte) (string, error) {
	return "", ErrNotConfigured
}

var _ Engine = Unavailable{}
