package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// smallest valid PNG: signature plus IHDR is enough for sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestDiskUploader_StoresImage(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "/uploads/", 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	inline := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	url, err := u.Upload(context.Background(), inline)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("unexpected url %q", url)
	}
	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(pngBytes) {
		t.Error("stored content differs")
	}
}

func TestDiskUploader_Rejects(t *testing.T) {
	u, err := NewDiskUploader(t.TempDir(), "/uploads", 16)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name   string
		inline string
		want   error
	}{
		{"empty", "data:image/png;base64,", ErrEmpty},
		{"garbage", "data:image/png;base64,***", ErrBadEncoding},
		{"not base64 data url", "data:image/png,abc", ErrBadEncoding},
		{"text", base64.StdEncoding.EncodeToString([]byte("hello")), ErrNotImage},
		{"too large", base64.StdEncoding.EncodeToString(pngBytes), ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := u.Upload(context.Background(), tc.inline); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}
