package artifact

import (
	"context"
	"path"
	"strings"

	"github.com/tuberip/tuberip/internal/backend"
)

// Sink stores the retrieved files.
type Sink interface {
	// Store consumes the artifact body and returns where it was stored.
	Store(ctx context.Context, a *backend.Artifact) (location string, err error)
}

// safeName removes any directory component from a backend provided filename.
func safeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "download"
	}
	return name
}
