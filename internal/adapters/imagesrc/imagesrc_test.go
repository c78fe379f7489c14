package imagesrc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/keiba/internal/adapters/imagesrc"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDirectory(t *testing.T) {
	Convey("Given a directory with images and other files", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		for _, name := range []string{"b.JPG", "a.png", "notes.txt", ".hidden.png", "a.meta.json"} {
			So(os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644), ShouldBeNil)
		}
		So(os.Mkdir(filepath.Join(dir, "sub.png"), 0o755), ShouldBeNil)
		src := imagesrc.NewDirectory(dir)

		Convey("List returns only images, sorted", func() {
			paths, err := src.List(ctx)
			So(err, ShouldBeNil)
			So(paths, ShouldResemble, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.JPG")})
		})

		Convey("Load sets the MIME type from the extension", func() {
			img, err := src.Load(ctx, filepath.Join(dir, "b.JPG"))
			So(err, ShouldBeNil)
			So(img.MIME, ShouldEqual, "image/jpeg")
			So(string(img.Data), ShouldEqual, "x")
		})

		Convey("A missing directory fails the listing", func() {
			_, err := imagesrc.NewDirectory(filepath.Join(dir, "none")).List(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
