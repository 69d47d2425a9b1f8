package domain

import "strings"

// ContentType is the closed set of document kinds the pipeline can ingest.
type ContentType string

const (
	ContentTypePdf   ContentType = "pdf"
	ContentTypeText  ContentType = "text"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
)

// IsValid reports whether c is a recognised content type.
func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypePdf, ContentTypeText, ContentTypeAudio, ContentTypeVideo:
		return true
	}
	return false
}

// IsMedia reports whether documents of this type go through the
// transcription path instead of text extraction.
func (c ContentType) IsMedia() bool {
	return c == ContentTypeAudio || c == ContentTypeVideo
}

// MIME returns the canonical MIME string for the content type.
// Audio maps to "audio/mpeg" and video to "video/mp4" as representatives
// of their wildcard families.
func (c ContentType) MIME() string {
	switch c {
	case ContentTypePdf:
		return "application/pdf"
	case ContentTypeText:
		return "text/plain"
	case ContentTypeAudio:
		return "audio/mpeg"
	case ContentTypeVideo:
		return "video/mp4"
	}
	return ""
}

// ContentTypeFromMIME maps a MIME string to a ContentType. Any "audio/*"
// MIME maps to Audio; only mp4 and quicktime are accepted for video.
// The second return is false for unknown MIME types.
func ContentTypeFromMIME(mime string) (ContentType, bool) {
	// Strip any parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case mime == "application/pdf":
		return ContentTypePdf, true
	case mime == "text/plain":
		return ContentTypeText, true
	case strings.HasPrefix(mime, "audio/"):
		return ContentTypeAudio, true
	case mime == "video/mp4" || mime == "video/quicktime":
		return ContentTypeVideo, true
	}
	return "", false
}

// Document describes one ingested file. Created once per ingestion and
// immutable thereafter.
type Document struct {
	ID          DocumentID
	Filename    string
	ContentType ContentType
	SizeBytes   int64
}

// NewDocument creates a Document with a fresh id.
func NewDocument(filename string, contentType ContentType, sizeBytes int64) Document {
	return Document{
		ID:          NewDocumentID(),
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
	}
}
