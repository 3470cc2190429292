package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Uploader hands out predictable URLs; "bad" is rejected.
type Uploader struct {
	n atomic.Int64
}

func (u *Uploader) Upload(_ context.Context, inline string) (string, error) {
	if inline == "bad" {
		return "", errors.New("not an image")
	}
	return fmt.Sprintf("/uploads/%d.png", u.n.Add(1)), nil
}
