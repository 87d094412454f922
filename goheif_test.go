package goheif

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/jdeng/heiftool/heif"
	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/internal/heiftest"
)

func TestFormatRegistered(t *testing.T) {
	b, _ := heiftest.HEIC(heiftest.Options{Width: 1596, Height: 1064})

	config, dec, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("unable to decode heic config: %s", err)
	}

	if got, want := dec, "heic"; got != want {
		t.Errorf("unexpected decoder: got %s, want %s", got, want)
	}

	if w, h := config.Width, config.Height; w != 1596 || h != 1064 {
		t.Errorf("unexpected image size: got %dx%d, want 1596x1064", w, h)
	}

	if _, _, err := image.Decode(bytes.NewReader(b)); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("image.Decode: got %v, want ErrNoDecoder", err)
	}
}

func TestDecodeConfigRotated(t *testing.T) {
	b, _ := heiftest.HEIC(heiftest.Options{Width: 400, Height: 300, Rotation: 3})
	config, err := DecodeConfig(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if config.Width != 300 || config.Height != 400 {
		t.Errorf("got %dx%d, want 300x400", config.Width, config.Height)
	}
}

func TestDecodeConfigGrid(t *testing.T) {
	config, err := DecodeConfig(bytes.NewReader(heiftest.Grid()))
	if err != nil {
		t.Fatal(err)
	}
	if config.Width != 128 || config.Height != 48 {
		t.Errorf("got %dx%d, want 128x48", config.Width, config.Height)
	}
}

func TestNewGridBox(t *testing.T) {
	tests := []struct {
		data          []byte
		cols, rows    int
		width, height int
	}{
		{[]byte{0, 0, 1, 2, 0x06, 0x3c, 0x04, 0x28}, 3, 2, 1596, 1064},
		{[]byte{0, 1, 0, 0, 0, 0, 0x10, 0, 0, 0, 0x08, 0}, 1, 1, 4096, 2048},
	}
	for _, tt := range tests {
		g, err := newGridBox(tt.data)
		if err != nil {
			t.Fatal(err)
		}
		if g.columns != tt.cols || g.rows != tt.rows || g.width != tt.width || g.height != tt.height {
			t.Errorf("got %+v, want %dx%d tiles of %dx%d", *g, tt.cols, tt.rows, tt.width, tt.height)
		}
	}
	if _, err := newGridBox([]byte{0, 1, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Error("short 32-bit grid accepted")
	}
}

func TestExtractExif(t *testing.T) {
	b, _ := heiftest.HEIC(heiftest.Options{Exif: heiftest.ExifItem(heiftest.TIFF("Pixel"))})
	raw, err := ExtractExif(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("Exif\x00\x00")) {
		t.Errorf("got % x", raw[:min(len(raw), 8)])
	}

	b, _ = heiftest.HEIC(heiftest.Options{})
	if _, err := ExtractExif(bytes.NewReader(b)); !errors.Is(err, heif.ErrNoEXIF) {
		t.Errorf("got %v, want ErrNoEXIF", err)
	}
}

func TestEdits(t *testing.T) {
	b, l := heiftest.HEIC(heiftest.Options{Exif: heiftest.ExifItem(heiftest.TIFF("Pixel"))})

	out, err := Rebuild(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, b) {
		t.Error("Rebuild changed the file")
	}

	profile := heiftest.ICCProfile("Display P3", true)
	out, err = AppendICCProfile(b, profile)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(out), len(b)+8+4+len(profile)+1; got != want {
		t.Errorf("AppendICCProfile: got %d bytes, want %d", got, want)
	}
	f, err := heif.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	it, _ := f.PrimaryItem()
	if data, err := it.Data(); err != nil || !bytes.Equal(data, l.Data) {
		t.Errorf("primary item data after append: got %q (%v), want %q", data, err, l.Data)
	}

	out, err = RemoveBoxes(b, "iref", "hvcC")
	if err != nil {
		t.Fatal(err)
	}
	f, err = heif.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(f.Tree().BoxesByType(bmff.TypeIref, bmff.TypeHvcC)); n != 0 {
		t.Errorf("%d removed boxes remain", n)
	}
	if _, err := RemoveBoxes(b, "toolong"); err == nil {
		t.Error("bad box type accepted")
	}
}
