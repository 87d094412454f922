package bmff

// MediaLink ties an offset field of an "iloc" item to the "mdat" box
// the offset points into, so the field can be rewritten when the mdat
// moves.
type MediaLink struct {
	Location *ItemLocationBox
	Item     int // index into Location.Items
	Extent   int // index into the item's Extents, or -1 for its BaseOffset

	MediaData *RawBox
	Relative  uint64 // offset of the data from the start of the mdat box
}

type linkKey struct {
	loc    *ItemLocationBox
	item   int
	extent int
}

func (l MediaLink) key() linkKey { return linkKey{l.Location, l.Item, l.Extent} }

// linkMediaData finds, for every iloc item stored by file offset, the mdat
// box holding its data. Each item is linked to at most one mdat. A non-zero
// base offset is linked alone; otherwise every extent offset that falls in
// the same mdat as the first one is linked.
func linkMediaData(boxes []Box) []MediaLink {
	var links []MediaLink
	type itemKey struct {
		loc  *ItemLocationBox
		item int
	}
	done := make(map[itemKey]bool)
	for x, s := range Pairs(boxes) {
		loc, ok := x.(*ItemLocationBox)
		if !ok {
			continue
		}
		mdat, ok := s.(*RawBox)
		if !ok || mdat.typ != TypeMdat {
			continue
		}
		start, end := uint64(mdat.offset), uint64(mdat.offset+mdat.size)
		inside := func(off uint64) bool { return off >= start && off < end }
		for i, it := range loc.Items {
			if it.ConstructionMethod != 0 || done[itemKey{loc, i}] {
				continue
			}
			if it.BaseOffset != 0 {
				if loc.BaseOffsetSize > 0 && inside(it.BaseOffset) {
					links = append(links, MediaLink{loc, i, -1, mdat, it.BaseOffset - start})
					done[itemKey{loc, i}] = true
				}
				continue
			}
			if len(it.Extents) == 0 || loc.OffsetSize == 0 || !inside(it.Extents[0].Offset) {
				continue
			}
			for j, e := range it.Extents {
				if inside(e.Offset) {
					links = append(links, MediaLink{loc, i, j, mdat, e.Offset - start})
				}
			}
			done[itemKey{loc, i}] = true
		}
	}
	return links
}
