package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sidecar replays vision output saved next to each image as
// <name>.meta.json and <name>.marks.json. It serves offline reruns.
type Sidecar struct{}

// Metadata implements Extractor.
func (Sidecar) Metadata(ctx context.Context, img Image) ([]byte, error) {
	return readSidecar(ctx, img.Path, "meta")
}

// Marks implements Extractor.
func (Sidecar) Marks(ctx context.Context, img Image) ([]byte, error) {
	return readSidecar(ctx, img.Path, "marks")
}

// SidecarPath returns the file Sidecar reads for kind.
func SidecarPath(image, kind string) string {
	base := strings.TrimSuffix(image, filepath.Ext(image))
	return base + "." + kind + ".json"
}

func readSidecar(ctx context.Context, image, kind string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(SidecarPath(image, kind))
	if err != nil {
		return nil, fmt.Errorf("sidecar %s: %w", kind, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, SidecarPath(image, kind))
	}
	return b, nil
}
