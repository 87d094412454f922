package bmff

import (
	"fmt"
	"math"

	"github.com/jdeng/heiftool/internal/bitio"
)

type builder struct {
	w     *bitio.Writer
	opts  options
	depth int

	links   []MediaLink
	linked  map[linkKey]int // link index by iloc field
	patches []fieldPatch
	mdatPos map[*RawBox]int
}

// fieldPatch is an iloc offset field to rewrite once the position of the
// mdat it points into is known.
type fieldPatch struct {
	link  int
	off   int
	width int
}

// Build serializes the tree. Box sizes are recomputed, and iloc offsets
// linked to an mdat box are rewritten to follow that box to its new
// position. A tree that was parsed and not modified builds to its
// source bytes. Build does not modify the tree.
func (t *Tree) Build(opts ...Option) ([]byte, error) {
	b := &builder{
		w:       bitio.NewWriter(len(t.src)),
		opts:    newOptions(opts),
		links:   t.links,
		linked:  make(map[linkKey]int, len(t.links)),
		mdatPos: make(map[*RawBox]int),
	}
	for i, l := range t.links {
		b.linked[l.key()] = i
	}
	if err := b.buildList(t.Boxes, nil); err != nil {
		return nil, err
	}
	b.w.PutBytes(t.trailer)
	if err := b.resolve(); err != nil {
		return nil, err
	}
	return b.w.Bytes(), nil
}

func (b *builder) buildList(boxes []Box, parent Box) error {
	b.depth++
	defer func() { b.depth-- }()
	for i, box := range boxes {
		if err := b.buildBox(box, parent, i == len(boxes)-1); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildBox(box Box, parent Box, last bool) error {
	h := box.header()
	w := b.w
	start := w.Len()
	switch h.form {
	case sizeLarge, sizeOpenOne:
		w.PutU32(1)
	default:
		w.PutU32(0)
	}
	w.PutBytes(h.typ[:])
	if h.form == sizeLarge {
		w.PutU64(0)
	}
	if rb, ok := box.(*RawBox); ok && h.typ == TypeMdat {
		b.mdatPos[rb] = start
	}
	if err := box.encode(b, parent); err != nil {
		return fmt.Errorf("bmff: building %s box: %w", h.typ, err)
	}
	if !w.Aligned() {
		return fmt.Errorf("bmff: building %s box: payload ends mid-byte", h.typ)
	}
	w.PutBytes(h.extra)

	size := w.Len() - start
	b.opts.debugf("%*sbuild %s offset %d size %d", 2*(b.depth-1), "", h.typ, start, size)
	switch {
	case h.form == sizeLarge:
		return w.Patch(start+8, 8, uint64(size))
	case h.IsOpenEnded() && last:
		// size 0 or 1: the box runs to the end of its container
		return nil
	case uint64(size) > math.MaxUint32:
		return fmt.Errorf("%w: %s box of %d bytes needs a largesize header", ErrUnsupportedFieldWidth, h.typ, size)
	}
	return w.Patch(start, 4, uint64(size))
}

// deferLinkedField is called just before an iloc offset field of width
// bytes is written. If the field is linked, it is queued for patching.
func (b *builder) deferLinkedField(loc *ItemLocationBox, item, extent, width int) {
	i, ok := b.linked[linkKey{loc, item, extent}]
	if !ok {
		return
	}
	b.patches = append(b.patches, fieldPatch{link: i, off: b.w.Len(), width: width})
}

func (b *builder) resolve() error {
	for _, fp := range b.patches {
		l := b.links[fp.link]
		pos, ok := b.mdatPos[l.MediaData]
		if !ok {
			// mdat no longer in the tree; the field keeps its value
			continue
		}
		switch fp.width {
		case 1, 2, 4:
		default:
			return fmt.Errorf("%w: iloc offset field of %d bytes", ErrUnsupportedFieldWidth, fp.width)
		}
		v := uint64(pos) + l.Relative
		if v >= 1<<(8*uint(fp.width)) {
			return fmt.Errorf("%w: offset %d does not fit in %d bytes", ErrUnsupportedFieldWidth, v, fp.width)
		}
		if err := b.w.Patch(fp.off, fp.width, v); err != nil {
			return err
		}
	}
	return nil
}
