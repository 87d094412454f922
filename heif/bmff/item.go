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

// ContainerBox is a box whose payload is only a list of boxes,
// e.g. "moov", "trak", "dinf", "iprp" or "ipco".
type ContainerBox struct {
	Header
	Children []Box
}

func (cb *ContainerBox) ChildBoxes() []Box { return cb.Children }

func (cb *ContainerBox) withChildren(children []Box) Box {
	c := *cb
	c.Children = children
	return &c
}

func parseContainerBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	cb := &ContainerBox{Header: h}
	var err error
	cb.Children, err = p.parseBoxList(r, cb)
	return cb, err
}

func (cb *ContainerBox) encode(b *builder, _ Box) error {
	return b.buildList(cb.Children, cb)
}

// MetaBox is the "meta" box. In HEIF files it holds the item boxes.
type MetaBox struct {
	FullBox
	Children []Box
}

func (mb *MetaBox) ChildBoxes() []Box { return mb.Children }

func (mb *MetaBox) withChildren(children []Box) Box {
	c := *mb
	c.Children = children
	return &c
}

func parseMetaBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	mb := &MetaBox{FullBox: readFullBox(r, h)}
	if err := r.Err(); err != nil {
		return nil, err
	}
	var err error
	mb.Children, err = p.parseBoxList(r, mb)
	return mb, err
}

func (mb *MetaBox) encode(b *builder, _ Box) error {
	mb.putFullBox(b.w)
	return b.buildList(mb.Children, mb)
}

// DataReferenceBox is the "dref" box. Count is the declared entry count;
// the builder writes len(Children).
type DataReferenceBox struct {
	FullBox
	Count    uint32
	Children []Box
}

func (dr *DataReferenceBox) ChildBoxes() []Box { return dr.Children }

func (dr *DataReferenceBox) withChildren(children []Box) Box {
	c := *dr
	c.Children = children
	return &c
}

func parseDataReferenceBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	dr := &DataReferenceBox{FullBox: readFullBox(r, h)}
	dr.Count, _ = r.U32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	var err error
	if dr.Children, err = p.parseBoxList(r, dr); err != nil {
		return nil, err
	}
	if int(dr.Count) != len(dr.Children) {
		return nil, fmt.Errorf("%w: dref at offset %d declares %d entries, has %d", ErrCountMismatch, h.offset, dr.Count, len(dr.Children))
	}
	return dr, nil
}

func (dr *DataReferenceBox) encode(b *builder, _ Box) error {
	dr.putFullBox(b.w)
	b.w.PutU32(uint32(len(dr.Children)))
	return b.buildList(dr.Children, dr)
}

// ItemInfoBox is the "iinf" box. Count is the declared entry count;
// the builder writes len(Children).
type ItemInfoBox struct {
	FullBox
	Count    uint32
	Children []Box
}

func (ii *ItemInfoBox) ChildBoxes() []Box { return ii.Children }

func (ii *ItemInfoBox) withChildren(children []Box) Box {
	c := *ii
	c.Children = children
	return &c
}

// Entries returns the "infe" children.
func (ii *ItemInfoBox) Entries() []*ItemInfoEntry {
	var out []*ItemInfoEntry
	for _, c := range ii.Children {
		if ie, ok := c.(*ItemInfoEntry); ok {
			out = append(out, ie)
		}
	}
	return out
}

func parseItemInfoBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ii := &ItemInfoBox{FullBox: readFullBox(r, h)}
	if ii.Version == 0 {
		c, _ := r.U16()
		ii.Count = uint32(c)
	} else {
		ii.Count, _ = r.U32()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	var err error
	if ii.Children, err = p.parseBoxList(r, ii); err != nil {
		return nil, err
	}
	if int(ii.Count) != len(ii.Children) {
		return nil, fmt.Errorf("%w: iinf at offset %d declares %d entries, has %d", ErrCountMismatch, h.offset, ii.Count, len(ii.Children))
	}
	return ii, nil
}

func (ii *ItemInfoBox) encode(b *builder, _ Box) error {
	ii.putFullBox(b.w)
	n := len(ii.Children)
	if ii.Version == 0 {
		if n > 0xffff {
			return fmt.Errorf("%w: %d entries in a version 0 iinf", ErrUnsupportedFieldWidth, n)
		}
		b.w.PutU16(uint16(n))
	} else {
		b.w.PutU32(uint32(n))
	}
	return b.buildList(ii.Children, ii)
}

// ItemInfoEntry is the "infe" box.
type ItemInfoEntry struct {
	FullBox
	ItemID          uint32 // 16 bits before version 3
	ProtectionIndex uint16
	ItemType        string // version >= 2 only; e.g. "hvc1", "grid", "Exif", "mime"

	// Optional strings. For "uri " items ContentType holds the item URI type.
	Name            string
	ContentType     string
	ContentEncoding string

	nstrings     int  // how many of the strings above were present
	unterminated bool // the last present string had no NUL
}

func (ie *ItemInfoEntry) strings() []*string {
	return []*string{&ie.Name, &ie.ContentType, &ie.ContentEncoding}
}

func parseItemInfoEntry(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ie := &ItemInfoEntry{FullBox: readFullBox(r, h)}
	if ie.Version >= 3 {
		ie.ItemID, _ = r.U32()
	} else {
		id, _ := r.U16()
		ie.ItemID = uint32(id)
	}
	ie.ProtectionIndex, _ = r.U16()
	if ie.Version >= 2 {
		ie.ItemType = readFourCC(r)
	}
	for _, s := range ie.strings() {
		if r.Err() != nil || r.Remaining() == 0 {
			break
		}
		b, ok, _ := r.CString(r.Len())
		*s = string(b)
		ie.nstrings++
		if !ok {
			ie.unterminated = true
			break
		}
	}
	return ie, r.Err()
}

func (ie *ItemInfoEntry) encode(b *builder, _ Box) error {
	w := b.w
	ie.putFullBox(w)
	if ie.Version >= 3 {
		w.PutU32(ie.ItemID)
	} else {
		w.PutU16(uint16(ie.ItemID))
	}
	w.PutU16(ie.ProtectionIndex)
	if ie.Version >= 2 {
		putFourCC(w, ie.ItemType)
	}
	for i, s := range ie.strings()[:ie.nstrings] {
		w.PutBytes([]byte(*s))
		if i < ie.nstrings-1 || !ie.unterminated {
			w.PutU8(0)
		}
	}
	return nil
}

// ItemReferenceBox is the "iref" box. Its children are all
// ItemTypeReferenceBox values, whatever their type.
type ItemReferenceBox struct {
	FullBox
	Children []Box
}

func (ir *ItemReferenceBox) ChildBoxes() []Box { return ir.Children }

func (ir *ItemReferenceBox) withChildren(children []Box) Box {
	c := *ir
	c.Children = children
	return &c
}

func parseItemReferenceBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ir := &ItemReferenceBox{FullBox: readFullBox(r, h)}
	if err := r.Err(); err != nil {
		return nil, err
	}
	var err error
	ir.Children, err = p.parseBoxList(r, ir)
	return ir, err
}

func (ir *ItemReferenceBox) encode(b *builder, _ Box) error {
	ir.putFullBox(b.w)
	return b.buildList(ir.Children, ir)
}

// ItemTypeReferenceBox is one reference of an "iref" box: the box type
// names the relation ("thmb", "cdsc", "dimg", "auxl", ...) from
// FromItemID to each of ToItemIDs.
type ItemTypeReferenceBox struct {
	Header
	FromItemID uint32
	ToItemIDs  []uint32
}

// wideIDs reports whether item IDs under parent are 32 bits wide.
func wideIDs(parent Box) bool {
	ir, ok := parent.(*ItemReferenceBox)
	return ok && ir.Version >= 1
}

func parseItemTypeReferenceBox(p *parser, r *bitio.Reader, h Header, parent Box) (Box, error) {
	tr := &ItemTypeReferenceBox{Header: h}
	readID := func() uint32 {
		if wideIDs(parent) {
			v, _ := r.U32()
			return v
		}
		v, _ := r.U16()
		return uint32(v)
	}
	tr.FromItemID = readID()
	n, _ := r.U16()
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		tr.ToItemIDs = append(tr.ToItemIDs, readID())
	}
	return tr, r.Err()
}

func (tr *ItemTypeReferenceBox) encode(b *builder, parent Box) error {
	if len(tr.ToItemIDs) > 0xffff {
		return fmt.Errorf("%d references do not fit the reference count", len(tr.ToItemIDs))
	}
	putID := func(id uint32) {
		if wideIDs(parent) {
			b.w.PutU32(id)
		} else {
			b.w.PutU16(uint16(id))
		}
	}
	putID(tr.FromItemID)
	b.w.PutU16(uint16(len(tr.ToItemIDs)))
	for _, id := range tr.ToItemIDs {
		putID(id)
	}
	return nil
}

// ItemPropertyAssociation is the "ipma" box.
type ItemPropertyAssociation struct {
	FullBox
	Entries []ItemPropertyAssociationItem
}

type ItemProperty struct {
	Essential bool
	Index     uint16 // 1-based index into "ipco"; 0 means no property
}

type ItemPropertyAssociationItem struct {
	ItemID       uint32
	Associations []ItemProperty
}

// wideIndex reports whether property indices are 15 bits rather than 7.
func (ipa *ItemPropertyAssociation) wideIndex() bool { return ipa.Flags&1 != 0 }

func parseItemPropertyAssociation(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ipa := &ItemPropertyAssociation{FullBox: readFullBox(r, h)}
	indexBits := 7
	if ipa.wideIndex() {
		indexBits = 15
	}
	count, _ := r.U32()
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		var it ItemPropertyAssociationItem
		if ipa.Version < 1 {
			id, _ := r.U16()
			it.ItemID = uint32(id)
		} else {
			it.ItemID, _ = r.U32()
		}
		n, _ := r.U8()
		for j := 0; j < int(n) && r.Err() == nil; j++ {
			e, _ := r.Bit()
			idx, _ := r.Bits(indexBits)
			it.Associations = append(it.Associations, ItemProperty{Essential: e == 1, Index: uint16(idx)})
		}
		ipa.Entries = append(ipa.Entries, it)
	}
	return ipa, r.Err()
}

func (ipa *ItemPropertyAssociation) encode(b *builder, _ Box) error {
	w := b.w
	ipa.putFullBox(w)
	indexBits := 7
	if ipa.wideIndex() {
		indexBits = 15
	}
	w.PutU32(uint32(len(ipa.Entries)))
	for _, it := range ipa.Entries {
		if ipa.Version < 1 {
			w.PutU16(uint16(it.ItemID))
		} else {
			w.PutU32(it.ItemID)
		}
		if len(it.Associations) > 0xff {
			return fmt.Errorf("item %d has %d associations", it.ItemID, len(it.Associations))
		}
		w.PutU8(uint8(len(it.Associations)))
		for _, a := range it.Associations {
			if int(a.Index) >= 1<<indexBits {
				return fmt.Errorf("%w: property index %d in %d bits", ErrUnsupportedFieldWidth, a.Index, indexBits)
			}
			var e uint8
			if a.Essential {
				e = 1
			}
			w.PutBit(e)
			w.PutBits(uint64(a.Index), indexBits)
		}
	}
	return nil
}

// ItemLocationBox is the "iloc" box.
//
// For version 0 boxes IndexSize holds the reserved nibble.
type ItemLocationBox struct {
	FullBox

	OffsetSize, LengthSize, BaseOffsetSize, IndexSize uint8 // in bytes, each 0..8

	Items []ItemLocationBoxEntry
}

type ItemLocationBoxEntry struct {
	ItemID             uint32 // 16 bits before version 2
	ConstructionMethod uint8  // version >= 1; 0 file offset, 1 idat offset, 2 item offset
	DataReferenceIndex uint16
	BaseOffset         uint64
	Extents            []ItemLocationExtent

	methodReserved uint16 // upper 12 bits of the construction method field
}

type ItemLocationExtent struct {
	Index  uint64 // version >= 1 with IndexSize > 0 only
	Offset uint64
	Length uint64
}

func (il *ItemLocationBox) checkSizes() error {
	for _, s := range []uint8{il.OffsetSize, il.LengthSize, il.BaseOffsetSize} {
		if s > 8 {
			return fmt.Errorf("%w: iloc field of %d bytes at offset %d", ErrUnsupportedFieldWidth, s, il.offset)
		}
	}
	if il.Version >= 1 && il.IndexSize > 8 {
		return fmt.Errorf("%w: iloc index of %d bytes at offset %d", ErrUnsupportedFieldWidth, il.IndexSize, il.offset)
	}
	return nil
}

func parseItemLocationBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	il := &ItemLocationBox{FullBox: readFullBox(r, h)}
	if il.Version > 2 {
		return nil, versionError(&il.Header, il.Version)
	}
	var sizes [4]uint64
	for i := range sizes {
		sizes[i], _ = r.Bits(4)
	}
	il.OffsetSize, il.LengthSize, il.BaseOffsetSize, il.IndexSize = uint8(sizes[0]), uint8(sizes[1]), uint8(sizes[2]), uint8(sizes[3])
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := il.checkSizes(); err != nil {
		return nil, err
	}
	var count uint32
	if il.Version < 2 {
		c, _ := r.U16()
		count = uint32(c)
	} else {
		count, _ = r.U32()
	}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		var ent ItemLocationBoxEntry
		if il.Version < 2 {
			id, _ := r.U16()
			ent.ItemID = uint32(id)
		} else {
			ent.ItemID, _ = r.U32()
		}
		if il.Version >= 1 {
			res, _ := r.Bits(12)
			cm, _ := r.Bits(4)
			ent.methodReserved, ent.ConstructionMethod = uint16(res), uint8(cm)
		}
		ent.DataReferenceIndex, _ = r.U16()
		ent.BaseOffset, _ = r.Bits(8 * int(il.BaseOffsetSize))
		n, _ := r.U16()
		for j := 0; j < int(n) && r.Err() == nil; j++ {
			var e ItemLocationExtent
			if il.Version >= 1 {
				e.Index, _ = r.Bits(8 * int(il.IndexSize))
			}
			e.Offset, _ = r.Bits(8 * int(il.OffsetSize))
			e.Length, _ = r.Bits(8 * int(il.LengthSize))
			ent.Extents = append(ent.Extents, e)
		}
		il.Items = append(il.Items, ent)
	}
	return il, r.Err()
}

func (il *ItemLocationBox) encode(b *builder, _ Box) error {
	if il.Version > 2 {
		return versionError(&il.Header, il.Version)
	}
	if err := il.checkSizes(); err != nil {
		return err
	}
	w := b.w
	il.putFullBox(w)
	w.PutBits(uint64(il.OffsetSize), 4)
	w.PutBits(uint64(il.LengthSize), 4)
	w.PutBits(uint64(il.BaseOffsetSize), 4)
	w.PutBits(uint64(il.IndexSize), 4)
	if il.Version < 2 {
		w.PutU16(uint16(len(il.Items)))
	} else {
		w.PutU32(uint32(len(il.Items)))
	}
	for i, ent := range il.Items {
		if il.Version < 2 {
			w.PutU16(uint16(ent.ItemID))
		} else {
			w.PutU32(ent.ItemID)
		}
		if il.Version >= 1 {
			w.PutBits(uint64(ent.methodReserved), 12)
			w.PutBits(uint64(ent.ConstructionMethod), 4)
		}
		w.PutU16(ent.DataReferenceIndex)
		b.deferLinkedField(il, i, -1, int(il.BaseOffsetSize))
		w.PutBits(ent.BaseOffset, 8*int(il.BaseOffsetSize))
		w.PutU16(uint16(len(ent.Extents)))
		for j, e := range ent.Extents {
			if il.Version >= 1 {
				w.PutBits(e.Index, 8*int(il.IndexSize))
			}
			b.deferLinkedField(il, i, j, int(il.OffsetSize))
			w.PutBits(e.Offset, 8*int(il.OffsetSize))
			w.PutBits(e.Length, 8*int(il.LengthSize))
		}
	}
	return nil
}
