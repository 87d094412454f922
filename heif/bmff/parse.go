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
	"errors"
	"fmt"
	"math"

	"github.com/jdeng/heiftool/internal/bitio"
)

// maxDepth bounds box nesting.
const maxDepth = 64

// parserFunc decodes the payload of a box. r is bounded to the end of
// the box and positioned after its header.
type parserFunc func(p *parser, r *bitio.Reader, h Header, parent Box) (Box, error)

var parsers map[BoxType]parserFunc

func init() {
	parsers = map[BoxType]parserFunc{
		TypeFtyp: parseFileTypeBox,
		TypeMvhd: parseMovieHeaderBox,
		TypeTkhd: parseTrackHeaderBox,
		TypeHdlr: parseHandlerBox,
		TypeMeta: parseMetaBox,
		TypeMoov: parseContainerBox,
		TypeTrak: parseContainerBox,
		TypeMdia: parseContainerBox,
		TypeMinf: parseContainerBox,
		TypeEdts: parseContainerBox,
		TypeDinf: parseContainerBox,
		TypeIprp: parseContainerBox,
		TypeIpco: parseContainerBox,
		TypeDref: parseDataReferenceBox,
		TypeURL:  parseDataEntryBox,
		TypeURN:  parseDataEntryBox,
		TypePitm: parsePrimaryItemBox,
		TypeIloc: parseItemLocationBox,
		TypeIinf: parseItemInfoBox,
		TypeInfe: parseItemInfoEntry,
		TypeIref: parseItemReferenceBox,
		TypeIpma: parseItemPropertyAssociation,
		TypeHvcC: parseItemHevcConfigBox,
		TypeAv1C: parseItemAv1ConfigBox,
		TypeIspe: parseImageSpatialExtentsProperty,
		TypePasp: parsePixelAspectRatioBox,
		TypeColr: parseColourInformationBox,
		TypePixi: parsePixelInformationProperty,
		TypeClap: parseCleanApertureBox,
		TypeIrot: parseImageRotation,
		TypeImir: parseImageMirror,
		TypeAuxC: parseAuxiliaryTypeProperty,
	}
}

type parser struct {
	src   []byte
	opts  options
	depth int
}

// Parse decodes data into a box tree. The tree aliases data, which must
// not be modified while the tree is in use.
func Parse(data []byte, opts ...Option) (*Tree, error) {
	p := &parser{src: data, opts: newOptions(opts)}
	r := bitio.NewReader(data)
	boxes, err := p.parseBoxList(r, nil)
	if err != nil {
		return nil, err
	}
	t := &Tree{Boxes: boxes, src: data}
	if n := r.Remaining(); n > 0 {
		pos, _ := r.Offset()
		p.opts.warnf("%d trailing bytes at offset %d are not a box", n, pos)
		t.trailer = data[pos:]
	}
	t.links = linkMediaData(boxes)
	return t, nil
}

// parseBoxList reads boxes until fewer than 8 bytes are left in r.
func (p *parser) parseBoxList(r *bitio.Reader, parent Box) ([]Box, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("bmff: boxes nested more than %d deep", maxDepth)
	}
	var boxes []Box
	for r.Remaining() >= 8 {
		b, err := p.parseBox(r, parent)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

func (p *parser) parseBox(r *bitio.Reader, parent Box) (Box, error) {
	start, _ := r.Offset()
	limit := r.Len()
	size32, _ := r.U32()
	typ, _ := r.Bytes(4)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: box header at offset %d", ErrTruncatedBox, start)
	}
	h := Header{offset: int64(start)}
	copy(h.typ[:], typ)

	switch size32 {
	case 0:
		h.form = sizeOpen
		h.size = int64(limit - start)
	case 1:
		if !p.opts.largeSize {
			h.form = sizeOpenOne
			h.size = int64(limit - start)
			break
		}
		h.form = sizeLarge
		size64, err := r.U64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s largesize at offset %d", ErrTruncatedBox, h.typ, start)
		}
		if size64 < 16 {
			return nil, fmt.Errorf("%w: %s largesize %d at offset %d", ErrInvalidBoxLength, h.typ, size64, start)
		}
		if size64 > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %s largesize %d at offset %d", ErrTruncatedBox, h.typ, size64, start)
		}
		h.size = int64(size64)
	default:
		if size32 < 8 {
			return nil, fmt.Errorf("%w: %s size %d at offset %d", ErrInvalidBoxLength, h.typ, size32, start)
		}
		h.size = int64(size32)
	}
	if h.size > int64(limit-start) {
		return nil, fmt.Errorf("%w: %s at offset %d declares %d bytes, %d available", ErrTruncatedBox, h.typ, start, h.size, limit-start)
	}
	end := start + int(h.size)
	p.opts.debugf("%*sparse %s offset %d size %d", 2*(p.depth-1), "", h.typ, start, h.size)

	payload, _ := r.Offset()
	br := bitio.NewReader(p.src[:end])
	br.Seek(payload, 0)
	b, err := p.decode(br, h, parent)
	if err != nil {
		return nil, err
	}
	if pos, bit := br.Offset(); pos != end || bit != 0 {
		err := fmt.Errorf("%w: %s at offset %d ends at %d, decoded up to %d", ErrOffsetMismatch, h.typ, start, end, pos)
		if p.opts.strict {
			return nil, err
		}
		p.opts.warnf("%v", err)
		if bit != 0 {
			pos++
		}
		if pos < end {
			b.header().extra = p.src[pos:end]
		}
	}
	r.Seek(end, 0)
	return b, nil
}

func (p *parser) decode(r *bitio.Reader, h Header, parent Box) (Box, error) {
	fn := parseRawBox
	if _, ok := parent.(*ItemReferenceBox); ok {
		fn = parseItemTypeReferenceBox
	} else if f, ok := parsers[h.typ]; ok {
		fn = f
	}
	start, _ := r.Offset()
	b, err := fn(p, r, h, parent)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, bitio.ErrShortBuffer) {
		return nil, err
	}
	err = fmt.Errorf("%w: %s at offset %d overruns its %d bytes", ErrOffsetMismatch, h.typ, h.offset, h.size)
	if p.opts.strict {
		return nil, err
	}
	p.opts.warnf("%v; keeping it uninterpreted", err)
	r.Seek(start, 0)
	return parseRawBox(p, r, h, parent)
}

// checkReserved compares a reserved field against its required value.
func (p *parser) checkReserved(h *Header, field string, got, want uint64) error {
	if got == want {
		return nil
	}
	err := fmt.Errorf("%w: %s at offset %d: %s is %#x, want %#x", ErrMalformedReservedField, h.typ, h.offset, field, got, want)
	if p.opts.strict {
		return err
	}
	p.opts.warnf("%v", err)
	return nil
}
