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

// Package heif reads the item model of HEIF containers, as found in
// Apple HEIC/HEVC images: which items a file holds, what role they play,
// where their data lives and which properties describe them.
// This package does not decode images; it only reads the metadata.
//
// A File is a view of one bmff.Tree. Trees are never modified in place;
// edits return a new tree, which needs a new File.
package heif

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/jdeng/heiftool/heif/bmff"
)

// File represents a HEIF file.
//
// Methods on File should not be called concurrently.
type File struct {
	tree *bmff.Tree

	// Populated lazily, by getMeta:
	metaErr error
	meta    *BoxMeta

	// Populated lazily, by Properties, Items and ItemBoxes:
	props     []Property
	propsErr  error
	items     map[uint32]*Item
	itemsErr  error
	itemBoxes map[uint32][]bmff.Box
}

// BoxMeta contains the low-level BMFF metadata boxes of the top-level
// "meta" box.
type BoxMeta struct {
	FileType          *bmff.FileTypeBox
	Handler           *bmff.HandlerBox
	PrimaryItem       *bmff.PrimaryItemBox
	ItemInfo          *bmff.ItemInfoBox
	PropertyContainer bmff.Container // "ipco"
	Associations      []*bmff.ItemPropertyAssociation
	ItemLocation      *bmff.ItemLocationBox
	ItemData          *bmff.RawBox
	ItemReference     *bmff.ItemReferenceBox
}

// EXIFItemID returns the item ID of the EXIF part, or 0 if not found.
func (m *BoxMeta) EXIFItemID() uint32 {
	if m.ItemInfo == nil {
		return 0
	}
	for _, ife := range m.ItemInfo.Entries() {
		if ife.ItemType == "Exif" {
			return ife.ItemID
		}
	}
	return 0
}

// Role is a reference between two items, from an "iref" child box.
type Role struct {
	Type bmff.BoxType // "thmb", "cdsc", "auxl" or "dimg"
	Item uint32       // the item at the other end of the reference
}

// Location is where an item's data lives, from its "iloc" entry.
type Location struct {
	Method    uint8 // 0 file offset, 1 idat offset, 2 item offset
	HasMethod bool  // the iloc version carries a construction method
	Reference uint16

	BaseOffset uint64
	// Offset is BaseOffset, or the first non-zero extent offset when
	// BaseOffset is 0. Length is the length of the last extent.
	Offset, Length uint64
	Extents        []bmff.ItemLocationExtent
}

// Item represents an item in a HEIF file.
type Item struct {
	f *File

	ID           uint32
	Type         string // from "infe"; empty if the item has no entry
	Info         *bmff.ItemInfoEntry
	Primary      bool
	Roles        []Role
	Location     *Location // nil if the item has no iloc entry
	Associations []bmff.ItemProperty
	Properties   []bmff.Box // associated "ipco" children, in association order
}

// Role returns the first role of type t.
func (it *Item) Role(t bmff.BoxType) (Role, bool) {
	for _, r := range it.Roles {
		if r.Type == t {
			return r, true
		}
	}
	return Role{}, false
}

// SpatialExtents returns the item's spatial extents property values, if present,
// not correcting from any camera rotation metadata.
func (it *Item) SpatialExtents() (width, height int, ok bool) {
	for _, p := range it.Properties {
		if p, ok := p.(*bmff.ImageSpatialExtentsProperty); ok {
			return int(p.ImageWidth), int(p.ImageHeight), true
		}
	}
	return
}

// HevcConfig returns the hvcC box
func (it *Item) HevcConfig() (b *bmff.ItemHevcConfigBox, ok bool) {
	for _, p := range it.Properties {
		if p, ok := p.(*bmff.ItemHevcConfigBox); ok {
			return p, true
		}
	}
	return
}

// Rotations returns the number of 90 degree rotations counter-clockwise that this
// image should be rendered at, in the range [0,3].
func (it *Item) Rotations() int {
	for _, p := range it.Properties {
		if p, ok := p.(*bmff.ImageRotation); ok {
			return int(p.Angle)
		}
	}
	return 0
}

// Mirror returns the mirroring axis: 0 = vertical, 1 = horizontal
func (it *Item) Mirror() int {
	for _, p := range it.Properties {
		if p, ok := p.(*bmff.ImageMirror); ok {
			return int(p.Mirror)
		}
	}
	return 0
}

// VisualDimensions returns the item's width and height after correcting
// for any rotations.
func (it *Item) VisualDimensions() (width, height int, ok bool) {
	width, height, ok = it.SpatialExtents()
	for i := 0; i < it.Rotations(); i++ {
		width, height = height, width
	}
	return
}

// Data returns the item's bytes. See File.GetItemData.
func (it *Item) Data() ([]byte, error) {
	return it.f.GetItemData(it)
}

// Open parses data and returns a handle to access it as a HEIF file.
func Open(data []byte, opts ...bmff.Option) (*File, error) {
	t, err := bmff.Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	return NewFile(t), nil
}

// NewFile returns a File viewing t.
func NewFile(t *bmff.Tree) *File {
	return &File{tree: t}
}

// Tree returns the box tree f was created from.
func (f *File) Tree() *bmff.Tree { return f.tree }

var (
	// ErrNoEXIF is returned by File.EXIF when a file does not contain an EXIF item.
	ErrNoEXIF = errors.New("heif: no EXIF found")

	// ErrUnknownItem is returned by File.ItemByID for unknown items.
	ErrUnknownItem = errors.New("heif: unknown item")

	// ErrNoMeta is returned when a file has no top-level "meta" box.
	ErrNoMeta = errors.New("heif: no meta box")
)

func (f *File) setMetaErr(err error) error {
	if f.metaErr == nil {
		f.metaErr = err
	}
	return err
}

// Meta returns the boxes of the top-level "meta" box.
func (f *File) Meta() (*BoxMeta, error) {
	return f.getMeta()
}

func (f *File) getMeta() (*BoxMeta, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	if f.meta != nil {
		return f.meta, nil
	}
	meta := &BoxMeta{}
	var metabox *bmff.MetaBox
	for _, b := range f.tree.Boxes {
		switch v := b.(type) {
		case *bmff.FileTypeBox:
			if meta.FileType == nil {
				meta.FileType = v
			}
		case *bmff.MetaBox:
			if metabox == nil {
				metabox = v
			}
		}
	}
	if metabox == nil {
		return nil, f.setMetaErr(ErrNoMeta)
	}

	for _, box := range metabox.Children {
		switch v := box.(type) {
		case *bmff.HandlerBox:
			meta.Handler = v
		case *bmff.PrimaryItemBox:
			if meta.PrimaryItem == nil {
				meta.PrimaryItem = v
			}
		case *bmff.ItemInfoBox:
			meta.ItemInfo = v
		case *bmff.ItemLocationBox:
			meta.ItemLocation = v
		case *bmff.ItemReferenceBox:
			meta.ItemReference = v
		case *bmff.RawBox:
			if v.Type() == bmff.TypeIdat {
				meta.ItemData = v
			}
		case *bmff.ContainerBox:
			if v.Type() != bmff.TypeIprp {
				continue
			}
			for _, c := range v.Children {
				switch c := c.(type) {
				case *bmff.ItemPropertyAssociation:
					meta.Associations = append(meta.Associations, c)
				case bmff.Container:
					if c.Type() == bmff.TypeIpco && meta.PropertyContainer == nil {
						meta.PropertyContainer = c
					}
				}
			}
		}
	}

	f.meta = meta
	return f.meta, nil
}

// Items returns every item named by an "infe", "pitm", item reference,
// "iloc" or "ipma" box anywhere in the tree, keyed by item ID.
func (f *File) Items() (map[uint32]*Item, error) {
	if f.items == nil && f.itemsErr == nil {
		f.items, f.itemsErr = f.analyzeItems()
	}
	return f.items, f.itemsErr
}

func (f *File) analyzeItems() (map[uint32]*Item, error) {
	items := make(map[uint32]*Item)
	get := func(id uint32) *Item {
		it, ok := items[id]
		if !ok {
			it = &Item{f: f, ID: id}
			items[id] = it
		}
		return it
	}

	for b := range bmff.Walk(f.tree.Boxes) {
		switch v := b.(type) {
		case *bmff.ItemInfoEntry:
			it := get(v.ItemID)
			it.Type = v.ItemType
			it.Info = v
		case *bmff.PrimaryItemBox:
			get(v.ItemID).Primary = true
		case *bmff.ItemTypeReferenceBox:
			switch v.Type() {
			case bmff.TypeThmb, bmff.TypeCdsc, bmff.TypeAuxl:
				from := get(v.FromItemID)
				for _, to := range v.ToItemIDs {
					from.Roles = append(from.Roles, Role{Type: v.Type(), Item: to})
				}
			case bmff.TypeDimg:
				for _, to := range v.ToItemIDs {
					it := get(to)
					it.Roles = append(it.Roles, Role{Type: v.Type(), Item: v.FromItemID})
				}
			}
		case *bmff.ItemLocationBox:
			for i := range v.Items {
				e := &v.Items[i]
				get(e.ItemID).Location = newLocation(v, e)
			}
		case *bmff.ItemPropertyAssociation:
			props, err := f.Properties()
			if err != nil {
				return nil, err
			}
			for _, e := range v.Entries {
				it := get(e.ItemID)
				it.Associations = e.Associations
				it.Properties = it.Properties[:0]
				for _, a := range e.Associations {
					if a.Index != 0 && int(a.Index) < len(props) {
						it.Properties = append(it.Properties, props[a.Index].Box)
					}
				}
			}
		}
	}
	return items, nil
}

func newLocation(il *bmff.ItemLocationBox, e *bmff.ItemLocationBoxEntry) *Location {
	loc := &Location{
		Method:     e.ConstructionMethod,
		HasMethod:  il.Version >= 1,
		Reference:  e.DataReferenceIndex,
		BaseOffset: e.BaseOffset,
		Offset:     e.BaseOffset,
		Extents:    e.Extents,
	}
	for _, ext := range e.Extents {
		if loc.Offset == 0 && ext.Offset != 0 {
			loc.Offset = ext.Offset
		}
		loc.Length = ext.Length
	}
	return loc
}

// ItemIDs returns the IDs of all items, in increasing order.
func (f *File) ItemIDs() ([]uint32, error) {
	items, err := f.Items()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(items)), nil
}

// ItemByID by returns the file's Item of a given ID.
// If the ID is unknown, the returned error is ErrUnknownItem.
func (f *File) ItemByID(id uint32) (*Item, error) {
	items, err := f.Items()
	if err != nil {
		return nil, err
	}
	it, ok := items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	return it, nil
}

// PrimaryItem returns the HEIF file's primary item.
func (f *File) PrimaryItem() (*Item, error) {
	meta, err := f.getMeta()
	if err != nil {
		return nil, err
	}
	if meta.PrimaryItem == nil {
		return nil, errors.New("heif: HEIF file lacks primary item box")
	}
	return f.ItemByID(meta.PrimaryItem.ItemID)
}

// BoxItemIDs returns the item IDs a box declares: the item of "infe" and
// "pitm", the referencing item of "thmb", "cdsc" and "auxl", and the
// referenced items of "dimg".
func BoxItemIDs(b bmff.Box) []uint32 {
	switch v := b.(type) {
	case *bmff.ItemInfoEntry:
		return []uint32{v.ItemID}
	case *bmff.PrimaryItemBox:
		return []uint32{v.ItemID}
	case *bmff.ItemTypeReferenceBox:
		switch v.Type() {
		case bmff.TypeThmb, bmff.TypeCdsc, bmff.TypeAuxl:
			return []uint32{v.FromItemID}
		case bmff.TypeDimg:
			return v.ToItemIDs
		}
	}
	return nil
}

// ItemBoxes returns the boxes declaring item id, in tree order.
func (f *File) ItemBoxes(id uint32) []bmff.Box {
	if f.itemBoxes == nil {
		f.itemBoxes = make(map[uint32][]bmff.Box)
		for b := range bmff.Walk(f.tree.Boxes) {
			for _, id := range BoxItemIDs(b) {
				f.itemBoxes[id] = append(f.itemBoxes[id], b)
			}
		}
	}
	return f.itemBoxes[id]
}

// AllItemBoxes returns every box declaring at least one item ID, in tree order.
func (f *File) AllItemBoxes() []bmff.Box {
	var out []bmff.Box
	for b := range bmff.Walk(f.tree.Boxes) {
		if len(BoxItemIDs(b)) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// ItemProperties returns the properties associated with item id by the
// file's single "ipma" box, in association order.
func (f *File) ItemProperties(id uint32) ([]Property, error) {
	ipmas := f.tree.BoxesByType(bmff.TypeIpma)
	if len(ipmas) != 1 {
		return nil, fmt.Errorf("heif: %d ipma boxes: %w", len(ipmas), bmff.ErrMultipleOrMissingContainer)
	}
	ipma, ok := ipmas[0].(*bmff.ItemPropertyAssociation)
	if !ok {
		return nil, fmt.Errorf("heif: ipma box at offset %d was not decoded", ipmas[0].Offset())
	}
	props, err := f.Properties()
	if err != nil {
		return nil, err
	}
	var out []Property
	for _, e := range ipma.Entries {
		if e.ItemID != id {
			continue
		}
		for _, a := range e.Associations {
			if int(a.Index) >= len(props) {
				return nil, fmt.Errorf("heif: item %d: property index %d out of range", id, a.Index)
			}
			out = append(out, props[a.Index])
		}
	}
	return out, nil
}

const maxItemSize = 200 << 20 // 200MB cap it for sanity

// GetItemData returns data specified by item's location. Extents are
// concatenated; an extent of length 0 runs to the end of its source.
func (f *File) GetItemData(it *Item) ([]byte, error) {
	loc := it.Location
	if loc == nil {
		return nil, fmt.Errorf("heif: item %d has no location", it.ID)
	}
	if loc.Reference != 0 {
		return nil, fmt.Errorf("heif: item %d: data in external file (reference %d)", it.ID, loc.Reference)
	}

	var src []byte
	switch loc.Method {
	case 0:
		src = f.tree.Source()
	case 1:
		meta, err := f.getMeta()
		if err != nil {
			return nil, err
		}
		if meta.ItemData == nil {
			return nil, fmt.Errorf("heif: no idat for item %d", it.ID)
		}
		src = meta.ItemData.Payload()
	default:
		return nil, fmt.Errorf("heif: item %d: unsupported construction method %d", it.ID, loc.Method)
	}

	var buf []byte
	for _, ext := range loc.Extents {
		start := loc.BaseOffset + ext.Offset
		if start > uint64(len(src)) {
			return nil, fmt.Errorf("heif: item %d: extent at %d out of bound", it.ID, start)
		}
		end := uint64(len(src))
		if ext.Length != 0 {
			end = start + ext.Length
		}
		if end > uint64(len(src)) {
			return nil, fmt.Errorf("heif: item %d: extent %d+%d out of bound", it.ID, start, ext.Length)
		}
		if uint64(len(buf))+end-start > maxItemSize {
			return nil, fmt.Errorf("heif: item %d: size exceeds threshold of %d bytes", it.ID, maxItemSize)
		}
		if len(loc.Extents) == 1 {
			return src[start:end], nil
		}
		buf = append(buf, src[start:end]...)
	}
	return buf, nil
}

// EXIF returns the raw EXIF data from the file: the "Exif\0\0" header
// and the TIFF structure that follows it.
// The error is ErrNoEXIF if the file did not contain EXIF.
//
// The raw EXIF data can be parsed by the
// github.com/rwcarlsen/goexif/exif package's Decode function.
func (f *File) EXIF() ([]byte, error) {
	meta, err := f.getMeta()
	if err != nil {
		return nil, err
	}
	exifID := meta.EXIFItemID()
	if exifID == 0 {
		return nil, ErrNoEXIF
	}
	it, err := f.ItemByID(exifID)
	if err != nil {
		return nil, err
	}

	data, err := f.GetItemData(it)
	if err != nil {
		return nil, err
	}
	// The item starts with the offset of the TIFF header past this
	// 4-byte field, normally 6 to skip "Exif\0\0".
	if len(data) < 4 {
		return nil, fmt.Errorf("heif: EXIF item %d is %d bytes", exifID, len(data))
	}
	return data[4:], nil
}

// ExifTags decodes the file's EXIF data.
func (f *File) ExifTags() (*exif.Exif, error) {
	raw, err := f.EXIF()
	if err != nil {
		return nil, err
	}
	return exif.Decode(bytes.NewReader(raw))
}
