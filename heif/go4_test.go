package heif

import (
	"bytes"
	"testing"

	go4heif "go4.org/media/heif"

	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/internal/heiftest"
)

// Check edited files with an independent HEIF reader. go4 skips base
// offsets without reading them, so the file keeps all offsets in the
// extents.
func TestEditedFileReadableByGo4(t *testing.T) {
	data, l := heiftest.HEIC(heiftest.Options{
		Exif:         heiftest.ExifItem(heiftest.TIFF("Pixel")),
		NoBaseOffset: true,
	})
	tree, err := bmff.Parse(data, quiet)
	if err != nil {
		t.Fatal(err)
	}
	nt, err := tree.AppendICCProfile(heiftest.ICCProfile("Display P3", true))
	if err != nil {
		t.Fatal(err)
	}
	out, err := nt.Build(quiet)
	if err != nil {
		t.Fatal(err)
	}

	gf := go4heif.Open(bytes.NewReader(out))
	it, err := gf.PrimaryItem()
	if err != nil {
		t.Fatal(err)
	}
	if w, h, ok := it.SpatialExtents(); !ok || w != 64 || h != 48 {
		t.Errorf("go4 spatial extents: got %d x %d (%v), want 64 x 48", w, h, ok)
	}
	if it.Location == nil || len(it.Location.Extents) != 1 {
		t.Fatalf("go4 location: got %+v", it.Location)
	}
	off := it.Location.Extents[0].Offset
	if off != uint64(len(out)-len(data)+l.DataOffset) {
		t.Errorf("go4 item offset: got %d, want %d", off, len(out)-len(data)+l.DataOffset)
	}
	if got := out[off : off+it.Location.Extents[0].Length]; !bytes.Equal(got, l.Data) {
		t.Errorf("go4 item data: got %q, want %q", got, l.Data)
	}

	mine, err := NewFile(mustReparse(t, out)).PrimaryItem()
	if err != nil {
		t.Fatal(err)
	}
	if got, err := mine.Data(); err != nil || !bytes.Equal(got, l.Data) {
		t.Errorf("item data: got %q (%v), want %q", got, err, l.Data)
	}
}

func mustReparse(t *testing.T, data []byte) *bmff.Tree {
	t.Helper()
	tree, err := bmff.Parse(data, quiet)
	if err != nil {
		t.Fatal(err)
	}
	return tree
}
