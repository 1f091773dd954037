package core

import (
	"context"
	"io"
)

// Upload is an incoming file, decoupled from the transport it came from.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// MediaStorage stores uploaded files under content-type specific folders.
type MediaStorage interface {
	// Save stores the content of r and returns the storage path of the new object.
	Save(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, paths ...string) error
	// URL returns the public URL of the object at path ("" if path is empty).
	URL(path string) string
}

// ImageFile is an encoded image ready to be stored.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte

	// dimensions of the uploaded image, before resizing
	SourceWidth  int
	SourceHeight int
}

// ImageProcessor decodes, resizes and re-encodes uploaded images.
type ImageProcessor interface {
	Process(r io.Reader, filename string) (ImageFile, error)
}
