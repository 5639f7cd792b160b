package app

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

type encoding int

const (
	rawEncoding encoding = iota
	base64Encoding
)

// Asset is a locally picked image that has not been uploaded yet.
type Asset struct {
	URI      string
	MimeType string
	Size     int64

	enc  encoding
	open func() (io.ReadCloser, error)
}

// NewAsset wraps any openable source, e.g. a multipart file header.
func NewAsset(uri, mimeType string, size int64, open func() (io.ReadCloser, error)) *Asset {
	return &Asset{URI: uri, MimeType: mimeType, Size: size, open: open}
}

// FileAsset reads the image from the local filesystem.
func FileAsset(filePath, mimeType string) *Asset {
	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}
	return NewAsset(filePath, mimeType, size, func() (io.ReadCloser, error) {
		return os.Open(filePath)
	})
}

// Base64Asset carries the image as base64 text; a data: URI prefix is accepted.
func Base64Asset(uri, mimeType, data string) *Asset {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		if mimeType == "" {
			mimeType = strings.TrimPrefix(data[:i], "data:")
		}
		data = data[i+len(";base64,"):]
	}
	a := NewAsset(uri, mimeType, int64(base64.StdEncoding.DecodedLen(len(data))), func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	})
	a.enc = base64Encoding
	return a
}

// materialize reads the whole payload into memory. Upload never streams.
func (a *Asset) materialize(maxBytes int64) ([]byte, error) {
	if a.open == nil {
		return nil, NewFailure(ErrReadFailure, "The selected image can not be read", nil)
	}
	rc, err := a.open()
	if err != nil {
		return nil, NewFailure(ErrReadFailure, "The selected image can not be read", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if a.enc == base64Encoding {
		r = base64.NewDecoder(base64.StdEncoding, stripSpaces(rc))
	}
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, NewFailure(ErrReadFailure, "The selected image can not be read", err)
	}
	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return nil, TooLarge(maxBytes, nil)
	}
	if len(payload) == 0 {
		return nil, NewFailure(ErrReadFailure, "The selected image is empty", nil)
	}
	return payload, nil
}

func stripSpaces(r io.Reader) io.Reader {
	raw, err := io.ReadAll(r)
	if err != nil {
		return &errReader{err: err}
	}
	return bytes.NewReader(bytes.Join(bytes.Fields(raw), nil))
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

// TooLarge is the validation failure of an image above maxBytes.
func TooLarge(maxBytes int64, cause error) *Failure {
	return NewFailure(ErrValidation, fmt.Sprintf("Image is larger than %d bytes", maxBytes), cause)
}
