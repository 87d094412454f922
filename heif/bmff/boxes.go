/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bmff

import (
	"fmt"

	"github.com/jdeng/heiftool/internal/bitio"
)

func readFullBox(r *bitio.Reader, h Header) FullBox {
	fb := FullBox{Header: h}
	fb.Version, _ = r.U8()
	fb.Flags, _ = r.U24()
	return fb
}

func (fb *FullBox) putFullBox(w *bitio.Writer) {
	w.PutU8(fb.Version)
	w.PutU24(fb.Flags)
}

func versionError(h *Header, v uint8) error {
	return fmt.Errorf("%w: %s version %d at offset %d", ErrUnsupportedVersion, h.typ, v, h.offset)
}

// readVersioned reads a field that is 64 bits wide in version 1 boxes
// and 32 bits wide otherwise.
func readVersioned(r *bitio.Reader, version uint8) uint64 {
	if version == 1 {
		v, _ := r.U64()
		return v
	}
	v, _ := r.U32()
	return uint64(v)
}

func putVersioned(w *bitio.Writer, version uint8, v uint64) {
	if version == 1 {
		w.PutU64(v)
		return
	}
	w.PutU32(uint32(v))
}

// readFourCC reads a 4-byte code.
func readFourCC(r *bitio.Reader) string {
	b, _ := r.Bytes(4)
	return string(b)
}

// putFourCC writes s as a 4-byte code, padding with spaces or truncating.
func putFourCC(w *bitio.Writer, s string) {
	var b = [4]byte{' ', ' ', ' ', ' '}
	copy(b[:], s)
	w.PutBytes(b[:])
}

// rest reads everything up to the end of the box.
func rest(r *bitio.Reader) []byte {
	b, _ := r.Bytes(r.Remaining())
	return b
}

// FileTypeBox is a BMFF FileTypeBox.
type FileTypeBox struct {
	Header
	MajorBrand   string
	MinorVersion uint32
	Compatible   []string // a trailing entry shorter than 4 bytes is kept as is
}

func parseFileTypeBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ft := &FileTypeBox{Header: h}
	ft.MajorBrand = readFourCC(r)
	ft.MinorVersion, _ = r.U32()
	for r.Err() == nil && r.Remaining() > 0 {
		b, _ := r.Bytes(min(4, r.Remaining()))
		ft.Compatible = append(ft.Compatible, string(b))
	}
	return ft, r.Err()
}

func (ft *FileTypeBox) encode(b *builder, _ Box) error {
	putFourCC(b.w, ft.MajorBrand)
	b.w.PutU32(ft.MinorVersion)
	for _, c := range ft.Compatible {
		if len(c) > 4 {
			return fmt.Errorf("compatible brand %q longer than 4 bytes", c)
		}
		b.w.PutBytes([]byte(c))
	}
	return nil
}

// MovieHeaderBox is a BMFF "mvhd" box.
type MovieHeaderBox struct {
	FullBox
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Rate             uint32 // 16.16 fixed point
	Volume           uint16 // 8.8 fixed point
	Reserved1        uint16
	Reserved2        [8]byte
	Matrix           [9]int32

	PreviewTime       uint32
	PreviewDuration   uint32
	PosterTime        uint32
	SelectionTime     uint32
	SelectionDuration uint32
	CurrentTime       uint32
	NextTrackID       uint32
}

func parseMovieHeaderBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	mh := &MovieHeaderBox{FullBox: readFullBox(r, h)}
	if mh.Version > 1 {
		return nil, versionError(&mh.Header, mh.Version)
	}
	mh.CreationTime = readVersioned(r, mh.Version)
	mh.ModificationTime = readVersioned(r, mh.Version)
	mh.Timescale, _ = r.U32()
	mh.Duration = readVersioned(r, mh.Version)
	mh.Rate, _ = r.U32()
	mh.Volume, _ = r.U16()
	mh.Reserved1, _ = r.U16()
	if b, err := r.Bytes(8); err == nil {
		copy(mh.Reserved2[:], b)
	}
	for i := range mh.Matrix {
		mh.Matrix[i], _ = r.I32()
	}
	for _, f := range mh.trailer() {
		*f, _ = r.U32()
	}
	return mh, r.Err()
}

func (mh *MovieHeaderBox) trailer() []*uint32 {
	return []*uint32{
		&mh.PreviewTime, &mh.PreviewDuration, &mh.PosterTime,
		&mh.SelectionTime, &mh.SelectionDuration, &mh.CurrentTime, &mh.NextTrackID,
	}
}

func (mh *MovieHeaderBox) encode(b *builder, _ Box) error {
	if mh.Version > 1 {
		return versionError(&mh.Header, mh.Version)
	}
	w := b.w
	mh.putFullBox(w)
	putVersioned(w, mh.Version, mh.CreationTime)
	putVersioned(w, mh.Version, mh.ModificationTime)
	w.PutU32(mh.Timescale)
	putVersioned(w, mh.Version, mh.Duration)
	w.PutU32(mh.Rate)
	w.PutU16(mh.Volume)
	w.PutU16(mh.Reserved1)
	w.PutBytes(mh.Reserved2[:])
	for _, m := range mh.Matrix {
		w.PutI32(m)
	}
	for _, f := range mh.trailer() {
		w.PutU32(*f)
	}
	return nil
}

// TrackHeaderBox is a BMFF "tkhd" box.
type TrackHeaderBox struct {
	FullBox
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Reserved1        uint32
	Duration         uint64
	Reserved2        [2]uint32
	Layer            int16
	AlternateGroup   int16
	Volume           int16
	Reserved3        uint16
	Matrix           [9]int32
	Width            uint32 // 16.16 fixed point
	Height           uint32 // 16.16 fixed point
}

func parseTrackHeaderBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	th := &TrackHeaderBox{FullBox: readFullBox(r, h)}
	if th.Version > 1 {
		return nil, versionError(&th.Header, th.Version)
	}
	th.CreationTime = readVersioned(r, th.Version)
	th.ModificationTime = readVersioned(r, th.Version)
	th.TrackID, _ = r.U32()
	th.Reserved1, _ = r.U32()
	th.Duration = readVersioned(r, th.Version)
	th.Reserved2[0], _ = r.U32()
	th.Reserved2[1], _ = r.U32()
	th.Layer, _ = r.I16()
	th.AlternateGroup, _ = r.I16()
	th.Volume, _ = r.I16()
	th.Reserved3, _ = r.U16()
	for i := range th.Matrix {
		th.Matrix[i], _ = r.I32()
	}
	th.Width, _ = r.U32()
	th.Height, _ = r.U32()
	return th, r.Err()
}

func (th *TrackHeaderBox) encode(b *builder, _ Box) error {
	if th.Version > 1 {
		return versionError(&th.Header, th.Version)
	}
	w := b.w
	th.putFullBox(w)
	putVersioned(w, th.Version, th.CreationTime)
	putVersioned(w, th.Version, th.ModificationTime)
	w.PutU32(th.TrackID)
	w.PutU32(th.Reserved1)
	putVersioned(w, th.Version, th.Duration)
	w.PutU32(th.Reserved2[0])
	w.PutU32(th.Reserved2[1])
	w.PutI16(th.Layer)
	w.PutI16(th.AlternateGroup)
	w.PutI16(th.Volume)
	w.PutU16(th.Reserved3)
	for _, m := range th.Matrix {
		w.PutI32(m)
	}
	w.PutU32(th.Width)
	w.PutU32(th.Height)
	return nil
}

// HandlerBox is a "hdlr" box.
type HandlerBox struct {
	FullBox
	PreDefined  uint32 // component type in QuickTime files
	HandlerType string // always 4 bytes; e.g. "pict" for HEIF images
	Reserved    [3]uint32
	Name        string // raw bytes including any NUL terminator
}

func parseHandlerBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	hb := &HandlerBox{FullBox: readFullBox(r, h)}
	hb.PreDefined, _ = r.U32()
	hb.HandlerType = readFourCC(r)
	for i := range hb.Reserved {
		hb.Reserved[i], _ = r.U32()
	}
	hb.Name = string(rest(r))
	return hb, r.Err()
}

func (hb *HandlerBox) encode(b *builder, _ Box) error {
	w := b.w
	hb.putFullBox(w)
	w.PutU32(hb.PreDefined)
	putFourCC(w, hb.HandlerType)
	for _, v := range hb.Reserved {
		w.PutU32(v)
	}
	w.PutBytes([]byte(hb.Name))
	return nil
}

// PrimaryItemBox is the "pitm" box.
type PrimaryItemBox struct {
	FullBox
	ItemID uint32
}

func parsePrimaryItemBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	pib := &PrimaryItemBox{FullBox: readFullBox(r, h)}
	if pib.Version == 0 {
		v, _ := r.U16()
		pib.ItemID = uint32(v)
	} else {
		pib.ItemID, _ = r.U32()
	}
	return pib, r.Err()
}

func (pib *PrimaryItemBox) encode(b *builder, _ Box) error {
	pib.putFullBox(b.w)
	if pib.Version == 0 {
		b.w.PutU16(uint16(pib.ItemID))
	} else {
		b.w.PutU32(pib.ItemID)
	}
	return nil
}

// ImageSpatialExtentsProperty is the "ispe" property.
type ImageSpatialExtentsProperty struct {
	FullBox
	ImageWidth  uint32
	ImageHeight uint32
}

func parseImageSpatialExtentsProperty(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ispe := &ImageSpatialExtentsProperty{FullBox: readFullBox(r, h)}
	ispe.ImageWidth, _ = r.U32()
	ispe.ImageHeight, _ = r.U32()
	return ispe, r.Err()
}

func (ispe *ImageSpatialExtentsProperty) encode(b *builder, _ Box) error {
	ispe.putFullBox(b.w)
	b.w.PutU32(ispe.ImageWidth)
	b.w.PutU32(ispe.ImageHeight)
	return nil
}

// PixelAspectRatioBox is the "pasp" property.
type PixelAspectRatioBox struct {
	Header
	HSpacing uint32
	VSpacing uint32
}

func parsePixelAspectRatioBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	pa := &PixelAspectRatioBox{Header: h}
	pa.HSpacing, _ = r.U32()
	pa.VSpacing, _ = r.U32()
	return pa, r.Err()
}

func (pa *PixelAspectRatioBox) encode(b *builder, _ Box) error {
	b.w.PutU32(pa.HSpacing)
	b.w.PutU32(pa.VSpacing)
	return nil
}

// ColourInformationBox is the "colr" property. ColourType is "nclx",
// "rICC" or "prof"; for the latter two Data holds an ICC profile.
type ColourInformationBox struct {
	Header
	ColourType string
	Data       []byte
}

// NewColourInformationBox returns a "colr" box not backed by any source buffer.
func NewColourInformationBox(colourType string, data []byte) *ColourInformationBox {
	return &ColourInformationBox{Header: newHeader(TypeColr), ColourType: colourType, Data: data}
}

// NCLX holds the on-screen colour parameters of an "nclx" colr box.
type NCLX struct {
	ColourPrimaries         uint16
	TransferCharacteristics uint16
	MatrixCoefficients      uint16
	FullRange               bool
}

// NCLX decodes Data when ColourType is "nclx".
func (c *ColourInformationBox) NCLX() (NCLX, bool) {
	if c.ColourType != "nclx" || len(c.Data) < 7 {
		return NCLX{}, false
	}
	r := bitio.NewReader(c.Data)
	var n NCLX
	n.ColourPrimaries, _ = r.U16()
	n.TransferCharacteristics, _ = r.U16()
	n.MatrixCoefficients, _ = r.U16()
	full, _ := r.Bit()
	n.FullRange = full == 1
	return n, r.Err() == nil
}

func parseColourInformationBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	c := &ColourInformationBox{Header: h}
	c.ColourType = readFourCC(r)
	c.Data = rest(r)
	return c, r.Err()
}

func (c *ColourInformationBox) encode(b *builder, _ Box) error {
	putFourCC(b.w, c.ColourType)
	b.w.PutBytes(c.Data)
	return nil
}

// PixelInformationProperty is the "pixi" property.
type PixelInformationProperty struct {
	FullBox
	BitsPerChannel []uint8
}

func parsePixelInformationProperty(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	pi := &PixelInformationProperty{FullBox: readFullBox(r, h)}
	n, _ := r.U8()
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		v, _ := r.U8()
		pi.BitsPerChannel = append(pi.BitsPerChannel, v)
	}
	return pi, r.Err()
}

func (pi *PixelInformationProperty) encode(b *builder, _ Box) error {
	if len(pi.BitsPerChannel) > 0xff {
		return fmt.Errorf("%d channels do not fit the channel count", len(pi.BitsPerChannel))
	}
	pi.putFullBox(b.w)
	b.w.PutU8(uint8(len(pi.BitsPerChannel)))
	for _, v := range pi.BitsPerChannel {
		b.w.PutU8(v)
	}
	return nil
}

// CleanApertureBox is the "clap" property. Each pair is a fraction.
type CleanApertureBox struct {
	Header
	WidthN, WidthD       int32
	HeightN, HeightD     int32
	HorizOffN, HorizOffD int32
	VertOffN, VertOffD   int32
}

func (c *CleanApertureBox) fields() []*int32 {
	return []*int32{
		&c.WidthN, &c.WidthD, &c.HeightN, &c.HeightD,
		&c.HorizOffN, &c.HorizOffD, &c.VertOffN, &c.VertOffD,
	}
}

func parseCleanApertureBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	c := &CleanApertureBox{Header: h}
	for _, f := range c.fields() {
		*f, _ = r.I32()
	}
	return c, r.Err()
}

func (c *CleanApertureBox) encode(b *builder, _ Box) error {
	for _, f := range c.fields() {
		b.w.PutI32(*f)
	}
	return nil
}

// ImageRotation is a HEIF "irot" rotation property.
type ImageRotation struct {
	Header
	Angle    uint8 // 1 means 90 degrees counter-clockwise, 2 means 180 counter-clockwise
	reserved uint8
}

func parseImageRotation(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ir := &ImageRotation{Header: h}
	res, _ := r.Bits(6)
	ir.reserved = uint8(res)
	a, err := r.Bits(2)
	if err != nil {
		return nil, err
	}
	ir.Angle = uint8(a)
	if err := p.checkReserved(&ir.Header, "reserved", res, 0); err != nil {
		return nil, err
	}
	return ir, nil
}

func (ir *ImageRotation) encode(b *builder, _ Box) error {
	b.w.PutBits(uint64(ir.reserved), 6)
	b.w.PutBits(uint64(ir.Angle), 2)
	return nil
}

// ImageMirror is a HEIF "imir" mirror property.
const (
	MirrorVertical   uint8 = 0
	MirrorHorizontal uint8 = 1
)

type ImageMirror struct {
	Header
	Mirror   uint8
	reserved uint8
}

func parseImageMirror(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	im := &ImageMirror{Header: h}
	res, _ := r.Bits(7)
	im.reserved = uint8(res)
	m, err := r.Bit()
	if err != nil {
		return nil, err
	}
	im.Mirror = m
	if err := p.checkReserved(&im.Header, "reserved", res, 0); err != nil {
		return nil, err
	}
	return im, nil
}

func (im *ImageMirror) encode(b *builder, _ Box) error {
	b.w.PutBits(uint64(im.reserved), 7)
	b.w.PutBit(im.Mirror)
	return nil
}

// AuxiliaryTypeProperty is the "auxC" property naming the kind of an
// auxiliary image, e.g. an alpha plane or a depth map.
type AuxiliaryTypeProperty struct {
	FullBox
	AuxType    string
	AuxSubType []byte

	unterminated bool
}

func parseAuxiliaryTypeProperty(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ax := &AuxiliaryTypeProperty{FullBox: readFullBox(r, h)}
	s, ok, _ := r.CString(r.Len())
	ax.AuxType = string(s)
	ax.unterminated = !ok
	ax.AuxSubType = rest(r)
	return ax, r.Err()
}

func (ax *AuxiliaryTypeProperty) encode(b *builder, _ Box) error {
	ax.putFullBox(b.w)
	b.w.PutBytes([]byte(ax.AuxType))
	if !ax.unterminated {
		b.w.PutU8(0)
	}
	b.w.PutBytes(ax.AuxSubType)
	return nil
}

// DataEntryBox is a "url " or "urn " entry of a "dref" box.
// Flags bit 0 set means the data is in the same file.
type DataEntryBox struct {
	FullBox
	Location []byte
}

func parseDataEntryBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	de := &DataEntryBox{FullBox: readFullBox(r, h)}
	de.Location = rest(r)
	return de, r.Err()
}

func (de *DataEntryBox) encode(b *builder, _ Box) error {
	de.putFullBox(b.w)
	b.w.PutBytes(de.Location)
	return nil
}

// RawBox is a box kept as uninterpreted bytes: "mdat", "idat", "free"
// and every type without a decoder.
type RawBox struct {
	Header

	// Data, if non-nil, replaces the source payload when building.
	Data []byte

	payload []byte // aliases the source buffer
}

// NewRawBox returns a box of type t holding data.
func NewRawBox(t BoxType, data []byte) *RawBox {
	return &RawBox{Header: newHeader(t), Data: data}
}

// Payload returns the box body.
func (rb *RawBox) Payload() []byte {
	if rb.Data != nil {
		return rb.Data
	}
	return rb.payload
}

func parseRawBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	rb := &RawBox{Header: h}
	rb.payload = rest(r)
	return rb, r.Err()
}

func (rb *RawBox) encode(b *builder, _ Box) error {
	b.w.PutBytes(rb.Payload())
	return nil
}
