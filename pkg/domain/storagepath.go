package domain

import (
	"fmt"
	"strings"
)

// StoragePath names a staged object as "<document_id>/<filename>".
// The document id prefix namespaces uploads so two documents with the same
// filename never collide.
type StoragePath struct {
	documentID DocumentID
	filename   string
}

// NewStoragePath builds the staging path for a document.
func NewStoragePath(documentID DocumentID, filename string) StoragePath {
	return StoragePath{documentID: documentID, filename: filename}
}

// StoragePathFromRaw parses a raw "<document_id>/<filename>" string.
// Paths without exactly one separator, with an invalid uuid prefix, or with
// an empty filename are rejected.
func StoragePathFromRaw(raw string) (StoragePath, error) {
	docPart, filename, ok := strings.Cut(raw, "/")
	if !ok || filename == "" || strings.Contains(filename, "/") {
		return StoragePath{}, fmt.Errorf("domain: storage path %q is not of the form <document_id>/<filename>", raw)
	}
	docID, err := DocumentIDFromString(docPart)
	if err != nil {
		return StoragePath{}, fmt.Errorf("domain: storage path %q: %w", raw, err)
	}
	return StoragePath{documentID: docID, filename: filename}, nil
}

// DocumentID returns the owning document id.
func (p StoragePath) DocumentID() DocumentID { return p.documentID }

// Filename returns the object's filename component.
func (p StoragePath) Filename() string { return p.filename }

// String returns the raw "<document_id>/<filename>" form.
func (p StoragePath) String() string {
	return p.documentID.String() + "/" + p.filename
}
