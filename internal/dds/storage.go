package dds

import (
	"context"

	"dds-go/internal/model"
)

// TransferInstruction tells a client how to move bytes for an upload:
// an HTTP verb and a signed URL against the provider's backend. The engine
// never handles the payload itself.
type TransferInstruction struct {
	HTTPVerb string
	Host     string
	Path     string
	URL      string // Full signed URL (Host + Path + signature query)
}

// StorageGateway abstracts a backend object store. Any transport-level
// failure talking to the backend is returned as a *StorageUnavailableError;
// problems with a specific upload (missing object, size mismatch) are
// ordinary errors the caller records on the upload.
type StorageGateway interface {
	// Allocate reserves a destination for the upload and returns signed
	// transfer instructions. The upload's StorageKey must be set.
	Allocate(ctx context.Context, provider *model.StorageProvider, upload *model.Upload) (*TransferInstruction, error)

	// VerifyUpload checks that the object exists in the backend and matches
	// the upload's recorded size. A nil return means the transfer completed.
	VerifyUpload(ctx context.Context, provider *model.StorageProvider, upload *model.Upload) error

	// TemporaryURL returns a signed, time-limited read URL for the upload's
	// object, with filename URL-encoded into the response disposition.
	TemporaryURL(ctx context.Context, provider *model.StorageProvider, upload *model.Upload, filename string) (string, error)
}
