// Package goheif reads and edits HEIF files at the container level:
// image dimensions, EXIF extraction, ICC profile embedding and
// rebuilding. It does not decode image samples.
package goheif

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/jdeng/heiftool/heif"
	"github.com/jdeng/heiftool/heif/bmff"
)

// Strict makes parsing fail on malformed reserved fields and box
// length drift instead of logging a warning.
var Strict bool

// ErrNoDecoder is returned by the decoder registered with the image
// package; only image.DecodeConfig is supported.
var ErrNoDecoder = errors.New("goheif: sample decoding is not supported")

const assumedMaxSize = 5 << 40 // arbitrary

func parse(data []byte) (*bmff.Tree, error) {
	return bmff.Parse(data, bmff.WithStrict(Strict))
}

type gridBox struct {
	columns, rows int
	width, height int
}

func newGridBox(data []byte) (*gridBox, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("invalid data")
	}
	// version := data[0]
	flags := data[1]
	rows := int(data[2]) + 1
	columns := int(data[3]) + 1

	var width, height int
	if (flags & 1) != 0 {
		if len(data) < 12 {
			return nil, fmt.Errorf("invalid data")
		}

		width = int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		height = int(data[8])<<24 | int(data[9])<<16 | int(data[10])<<8 | int(data[11])
	} else {
		width = int(data[4])<<8 | int(data[5])
		height = int(data[6])<<8 | int(data[7])
	}

	return &gridBox{columns: columns, rows: rows, width: width, height: height}, nil
}

// ExtractExif returns the raw EXIF data of the HEIF file read from ra.
func ExtractExif(ra io.ReaderAt) ([]byte, error) {
	data, err := io.ReadAll(io.NewSectionReader(ra, 0, assumedMaxSize))
	if err != nil {
		return nil, err
	}
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	return heif.NewFile(t).EXIF()
}

// DecodeConfig returns the dimensions of the primary image, corrected
// for rotation. Grid images without a spatial extents property use the
// output size of the grid.
func DecodeConfig(r io.Reader) (image.Config, error) {
	var config image.Config

	data, err := io.ReadAll(r)
	if err != nil {
		return config, err
	}
	t, err := parse(data)
	if err != nil {
		return config, err
	}
	hf := heif.NewFile(t)

	it, err := hf.PrimaryItem()
	if err != nil {
		return config, err
	}

	width, height, ok := it.VisualDimensions()
	if !ok {
		if it.Type != "grid" {
			return config, fmt.Errorf("No dimension")
		}
		data, err := hf.GetItemData(it)
		if err != nil {
			return config, err
		}
		grid, err := newGridBox(data)
		if err != nil {
			return config, err
		}
		items, err := hf.Items()
		if err != nil {
			return config, err
		}
		tiles := 0
		for _, tile := range items {
			if r, ok := tile.Role(bmff.TypeDimg); ok && r.Item == it.ID {
				tiles++
			}
		}
		if tiles != grid.columns*grid.rows {
			return config, fmt.Errorf("Tiles number not matched")
		}
		width, height = grid.width, grid.height
		if it.Rotations()%2 == 1 {
			width, height = height, width
		}
	}

	config = image.Config{
		ColorModel: color.YCbCrModel,
		Width:      width,
		Height:     height,
	}
	return config, nil
}

// AppendICCProfile returns the HEIF file in data with profile added as a
// "colr" property of every item.
func AppendICCProfile(data, profile []byte) ([]byte, error) {
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	nt, err := t.AppendICCProfile(profile)
	if err != nil {
		return nil, err
	}
	return nt.Build()
}

// RemoveBoxes returns the file in data without any box of the given
// types, at any depth.
func RemoveBoxes(data []byte, types ...string) ([]byte, error) {
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	bts := make([]bmff.BoxType, 0, len(types))
	for _, s := range types {
		bt, err := bmff.ParseBoxType(s)
		if err != nil {
			return nil, err
		}
		bts = append(bts, bt)
	}
	return t.RemoveByType(bts...).Build()
}

// Rebuild parses data and serializes it again. Files the parser
// understands come back byte for byte.
func Rebuild(data []byte) ([]byte, error) {
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	return t.Build()
}

func decode(io.Reader) (image.Image, error) {
	return nil, ErrNoDecoder
}

func init() {
	// they check for "ftyp" at the 5th bytes, let's do the same...
	// https://github.com/strukturag/libheif/blob/master/libheif/heif.cc#L94
	image.RegisterFormat("heic", "????ftyp", decode, DecodeConfig)
}
