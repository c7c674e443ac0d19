package payments

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vip-club/vip_club/internal/backend"
)

// MaxScreenshotSize is the largest accepted screenshot, 10 MiB.
const MaxScreenshotSize = 10 * 1024 * 1024

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

var (
	// ErrValidation marks screenshot problems detected before any upload.
	ErrValidation = errors.New("invalid screenshot")
	ErrNotImage   = fmt.Errorf("%w: file must be an image", ErrValidation)
	ErrTooLarge   = fmt.Errorf("%w: file must not exceed 10 MB", ErrValidation)
	ErrEmptyFile  = fmt.Errorf("%w: file is empty", ErrValidation)
)

// ValidateScreenshot checks the declared and detected type and the size of
// file. The returned File replays the inspected bytes and carries the
// detected content type.
func ValidateScreenshot(file backend.File) (backend.File, error) {
	if file.Size > MaxScreenshotSize {
		return backend.File{}, ErrTooLarge
	}
	if file.ContentType != "" && !isImage(file.ContentType) {
		return backend.File{}, ErrNotImage
	}
	if file.Body == nil {
		return backend.File{}, ErrEmptyFile
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return backend.File{}, fmt.Errorf("read screenshot: %w", err)
	}
	if n == 0 {
		return backend.File{}, ErrEmptyFile
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !isImage(detected.String()) {
		return backend.File{}, ErrNotImage
	}

	file.ContentType = detected.String()
	file.Body = io.MultiReader(bytes.NewReader(head), file.Body)
	if file.Name == "" {
		file.Name = "screenshot" + detected.Extension()
	}
	return file, nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
