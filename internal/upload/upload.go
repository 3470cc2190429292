// Package upload stores inline images sent by clients and hands back the
// URL they are served under.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmpty       = errors.New("empty upload")
	ErrTooLarge    = errors.New("upload too large")
	ErrNotImage    = errors.New("upload is not an image")
	ErrBadEncoding = errors.New("upload is not valid base64")
)

// DiskUploader writes images below Dir; they are served from BaseURL.
type DiskUploader struct {
	Dir      string
	BaseURL  string
	MaxBytes int
}

func NewDiskUploader(dir, baseURL string, maxBytes int) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

// Upload accepts a data URL ("data:image/png;base64,...") or bare base64.
// The declared media type is ignored; the content is sniffed.
func (u *DiskUploader) Upload(ctx context.Context, inline string) (string, error) {
	data, err := decodeInline(inline)
	if err != nil {
		return "", err
	}
	if u.MaxBytes > 0 && len(data) > u.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(u.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	log.Info().Str("module", "upload").Str("file", name).Str("mime", mt.String()).Int("bytes", len(data)).Msg("stored")
	return u.BaseURL + "/" + name, nil
}

func decodeInline(inline string) ([]byte, error) {
	s := strings.TrimSpace(inline)
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, ErrBadEncoding
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrEmpty
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return data, nil
}
