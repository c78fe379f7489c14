// Package imagesrc lists and loads prediction images from a directory.
package imagesrc

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/keiba/internal/adapters/vision"
)

// extensions are the image types sent to the vision service.
var extensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Directory is a flat directory of images.
type Directory struct {
	dir string
}

// NewDirectory returns a source over dir.
func NewDirectory(dir string) *Directory {
	return &Directory{dir: dir}
}

// List returns the image paths in dir sorted by name. A missing directory is
// an error so that a mistyped path aborts the run.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := extensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			out = append(out, filepath.Join(d.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load reads one image.
func (d *Directory) Load(ctx context.Context, path string) (vision.Image, error) {
	if err := ctx.Err(); err != nil {
		return vision.Image{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return vision.Image{}, fmt.Errorf("load image: %w", err)
	}
	return vision.Image{Path: path, Data: b, MIME: mimeOf(path)}, nil
}

func mimeOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := extensions[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}
