// Package heiftest builds small synthetic HEIF files for tests.
//
// The files are assembled byte by byte, independently of the bmff
// package, so they can be used to check it.
package heiftest

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// HvcC is the payload of a minimal "hvcC" box: Main profile, level 3,
// 4:2:0, 8 bit, one VPS NAL unit of 4 bytes.
var HvcC = []byte{
	0x01, 0x01, 0x60, 0x00, 0x00, 0x00,
	0x90, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x5a, 0xf0, 0x00, 0xfc, 0xfd, 0xf8, 0xf8,
	0x00, 0x00, 0x0f, 0x01,
	0xa0, 0x00, 0x01, 0x00, 0x04, 0x40, 0x01, 0x0c, 0x01,
}

// Options select what goes into the file built by HEIC.
type Options struct {
	Width, Height uint32 // ispe of the primary item; default 64x48
	Data          []byte // primary item data; default 16 bytes

	// Exif, if non-nil, adds item 2 of type "Exif" holding Exif
	// (4-byte header offset, "Exif\0\0", TIFF), described by a "cdsc"
	// reference to item 1.
	Exif []byte

	// Rotation, if non-zero, associates an "irot" with the primary item.
	Rotation uint8

	// ExtentOffsets puts file offsets in the extents and leaves the
	// base offsets 0.
	ExtentOffsets bool

	// NoBaseOffset writes an iloc with base_offset_size 0: file offsets
	// are in the extents and there is no base offset field.
	NoBaseOffset bool

	// LargeMdat writes the mdat header with a 64-bit largesize.
	LargeMdat bool

	// Brands are the compatible brands of the ftyp box; default mif1, heic.
	Brands []string
}

// Box returns a box with a 32-bit size field.
func Box(typ string, payload ...[]byte) []byte {
	n := 8
	for _, p := range payload {
		n += len(p)
	}
	b := make([]byte, 8, n)
	binary.BigEndian.PutUint32(b, uint32(n))
	copy(b[4:], typ)
	for _, p := range payload {
		b = append(b, p...)
	}
	return b
}

// FullBox returns a box whose payload starts with version and flags.
func FullBox(typ string, version uint8, flags uint32, payload ...[]byte) []byte {
	vf := U32(uint32(version)<<24 | flags&0xffffff)
	return Box(typ, append([][]byte{vf}, payload...)...)
}

func U16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func U32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func U64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Layout records where things ended up in a file built by HEIC.
type Layout struct {
	MdatOffset int    // start of the mdat box
	DataOffset int    // start of the primary item data
	ExifOffset int    // start of the Exif item data, if any
	Data       []byte // primary item data
}

// HEIC returns an HEIF file laid out as ftyp, meta, mdat:
//
//	meta: hdlr, pitm, iinf, [iref], iloc, iprp{ipco{hvcC, ispe, [irot]}, ipma}
func HEIC(o Options) ([]byte, Layout) {
	if o.Width == 0 {
		o.Width, o.Height = 64, 48
	}
	data := o.Data
	if data == nil {
		data = []byte("0123456789abcdef")
	}
	brands := o.Brands
	if brands == nil {
		brands = []string{"mif1", "heic"}
	}
	ftyp := Box("ftyp", []byte("heic"), U32(0), []byte(strings.Join(brands, "")))

	// The meta box size does not depend on the offsets, so build it
	// once to learn where mdat starts.
	meta := o.meta(data, 0)
	hdr := 8
	if o.LargeMdat {
		hdr = 16
	}
	l := Layout{MdatOffset: len(ftyp) + len(meta), Data: data}
	l.DataOffset = l.MdatOffset + hdr
	l.ExifOffset = l.DataOffset + len(data)
	meta = o.meta(data, l.DataOffset)

	payload := cat(data, o.Exif)
	var mdat []byte
	if o.LargeMdat {
		mdat = cat(U32(1), []byte("mdat"), U64(uint64(16+len(payload))), payload)
	} else {
		mdat = Box("mdat", payload)
	}
	return cat(ftyp, meta, mdat), l
}

func (o Options) meta(data []byte, dataOffset int) []byte {
	hdlr := FullBox("hdlr", 0, 0, U32(0), []byte("pict"), make([]byte, 12), []byte{0})
	pitm := FullBox("pitm", 0, 0, U16(1))

	infe := func(id uint16, typ string) []byte {
		return FullBox("infe", 2, 0, U16(id), U16(0), []byte(typ), []byte{0})
	}
	entries := [][]byte{infe(1, "hvc1")}
	if o.Exif != nil {
		entries = append(entries, infe(2, "Exif"))
	}
	iinf := FullBox("iinf", 0, 0, append([][]byte{U16(uint16(len(entries)))}, entries...)...)

	type loc struct {
		id          uint16
		off, length int
	}
	locs := []loc{{1, dataOffset, len(data)}}
	if o.Exif != nil {
		locs = append(locs, loc{2, dataOffset + len(data), len(o.Exif)})
	}
	sizes := []byte{0x44, 0x40}
	if o.NoBaseOffset {
		sizes[1] = 0
	}
	ilocBody := [][]byte{sizes, U16(uint16(len(locs)))}
	for _, l := range locs {
		if o.NoBaseOffset {
			ilocBody = append(ilocBody, U16(l.id), U16(0), U16(1), U32(uint32(l.off)), U32(uint32(l.length)))
			continue
		}
		base, ext := l.off, 0
		if o.ExtentOffsets {
			base, ext = 0, l.off
		}
		ilocBody = append(ilocBody, U16(l.id), U16(0), U32(uint32(base)), U16(1), U32(uint32(ext)), U32(uint32(l.length)))
	}
	iloc := FullBox("iloc", 0, 0, ilocBody...)

	props := [][]byte{
		Box("hvcC", HvcC),
		FullBox("ispe", 0, 0, U32(o.Width), U32(o.Height)),
	}
	assoc := []byte{0x81, 0x02}
	if o.Rotation != 0 {
		props = append(props, Box("irot", []byte{o.Rotation & 3}))
		assoc = append(assoc, 0x83)
	}
	ipco := Box("ipco", props...)
	ipma := FullBox("ipma", 0, 0, U32(1), U16(1), []byte{uint8(len(assoc))}, assoc)
	iprp := Box("iprp", ipco, ipma)

	children := [][]byte{hdlr, pitm, iinf}
	if o.Exif != nil {
		children = append(children, FullBox("iref", 0, 0, Box("cdsc", U16(2), U16(1), U16(1))))
	}
	children = append(children, iloc, iprp)
	return FullBox("meta", 0, 0, children...)
}

// GridData is the "grid" item payload of the file built by Grid:
// 1 row, 2 columns, output 128x48.
var GridData = []byte{0, 0, 0, 1, 0, 128, 0, 48}

// Grid returns a file whose primary item 1 is a grid stored in "idat"
// (iloc version 1, construction method 1), derived from items 2 and 3.
func Grid() []byte {
	infe := func(id uint16, typ string) []byte {
		return FullBox("infe", 2, 0, U16(id), U16(0), []byte(typ), []byte{0})
	}
	meta := FullBox("meta", 0, 0,
		FullBox("hdlr", 0, 0, U32(0), []byte("pict"), make([]byte, 12), []byte{0}),
		FullBox("pitm", 0, 0, U16(1)),
		FullBox("iinf", 0, 0, U16(3), infe(1, "grid"), infe(2, "hvc1"), infe(3, "hvc1")),
		FullBox("iref", 0, 0, Box("dimg", U16(1), U16(2), U16(2), U16(3))),
		FullBox("iloc", 1, 0, []byte{0x44, 0x00}, U16(1),
			U16(1), U16(1), U16(0), U16(1), U32(0), U32(uint32(len(GridData)))),
		Box("idat", GridData),
	)
	return cat(Box("ftyp", []byte("heic"), U32(0), []byte("mif1heic")), meta)
}

// TIFF returns a big-endian TIFF header with one IFD holding a single
// ASCII Model tag.
func TIFF(model string) []byte {
	val := append([]byte(model), 0)
	for len(val) < 5 {
		val = append(val, 0)
	}
	const ifdOffset = 8
	valOffset := ifdOffset + 2 + 12 + 4
	return cat(
		[]byte("MM\x00\x2a"), U32(ifdOffset),
		U16(1),
		U16(0x0110), U16(2), U32(uint32(len(val))), U32(uint32(valOffset)),
		U32(0),
		val,
	)
}

// ExifItem returns Exif item data wrapping tiff: a 4-byte offset to the
// TIFF header followed by "Exif\0\0" and tiff.
func ExifItem(tiff []byte) []byte {
	return cat(U32(6), []byte("Exif\x00\x00"), tiff)
}

// ICCProfile returns an ICC profile with a single "desc" tag holding
// desc, as a textDescriptionType, or as a multiLocalizedUnicodeType
// when v4 is set.
func ICCProfile(desc string, v4 bool) []byte {
	var tag []byte
	version := uint32(0x02100000)
	if v4 {
		version = 0x04300000
		var u []byte
		for _, c := range utf16.Encode([]rune(desc)) {
			u = append(u, U16(c)...)
		}
		tag = cat([]byte("mluc"), U32(0), U32(1), U32(12), []byte("enUS"), U32(uint32(len(u))), U32(28), u)
	} else {
		tag = cat([]byte("desc"), U32(0), U32(uint32(len(desc)+1)), []byte(desc), []byte{0})
	}
	const tagOffset = 128 + 4 + 12
	header := make([]byte, 128)
	binary.BigEndian.PutUint32(header[0:], uint32(tagOffset+len(tag)))
	copy(header[4:], "none")
	binary.BigEndian.PutUint32(header[8:], version)
	copy(header[12:], "mntrRGB XYZ ")
	copy(header[36:], "acsp")
	return cat(header, U32(1), []byte("desc"), U32(tagOffset), U32(uint32(len(tag))), tag)
}
