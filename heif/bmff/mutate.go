package bmff

import "fmt"

// RemoveByType returns a tree without any box of the given types, at any
// depth. Boxes not on the path to a removed box are shared with t.
//
// Property indices in "ipma" are not renumbered; removing a box from
// "ipco" shifts the meaning of later indices.
func (t *Tree) RemoveByType(types ...BoxType) *Tree {
	drop := make(map[BoxType]bool, len(types))
	for _, typ := range types {
		drop[typ] = true
	}
	boxes, _ := filterBoxes(t.Boxes, drop)
	return t.derive(boxes)
}

func filterBoxes(boxes []Box, drop map[BoxType]bool) ([]Box, bool) {
	out := make([]Box, 0, len(boxes))
	changed := false
	for _, b := range boxes {
		if drop[b.Type()] {
			changed = true
			continue
		}
		if c, ok := b.(Container); ok {
			if children, ch := filterBoxes(c.ChildBoxes(), drop); ch {
				b = c.withChildren(children)
				changed = true
			}
		}
		out = append(out, b)
	}
	if !changed {
		return boxes, false
	}
	return out, true
}

// derive returns a tree over boxes that keeps the links of t whose
// boxes are still present.
func (t *Tree) derive(boxes []Box) *Tree {
	present := make(map[Box]bool)
	for b := range Walk(boxes) {
		switch b.(type) {
		case *ItemLocationBox, *RawBox:
			present[b] = true
		}
	}
	nt := &Tree{Boxes: boxes, src: t.src, trailer: t.trailer}
	for _, l := range t.links {
		if present[l.Location] && present[l.MediaData] {
			nt.links = append(nt.links, l)
		}
	}
	return nt
}

// AppendICCProfile returns a tree with a "colr" box of type "prof"
// holding profile appended to the item property container, and an
// essential association to it added to every item in "ipma".
// The tree must hold exactly one "ipco" and one "ipma".
func (t *Tree) AppendICCProfile(profile []byte) (*Tree, error) {
	ipcos := t.BoxesByType(TypeIpco)
	if len(ipcos) != 1 {
		return nil, fmt.Errorf("%w: found %d ipco boxes", ErrMultipleOrMissingContainer, len(ipcos))
	}
	ipmas := t.BoxesByType(TypeIpma)
	if len(ipmas) != 1 {
		return nil, fmt.Errorf("%w: found %d ipma boxes", ErrMultipleOrMissingContainer, len(ipmas))
	}
	ipco, ok := ipcos[0].(Container)
	if !ok {
		return nil, fmt.Errorf("bmff: ipco box is not a container")
	}
	ipma, ok := ipmas[0].(*ItemPropertyAssociation)
	if !ok {
		return nil, fmt.Errorf("bmff: ipma box was not decoded")
	}

	props := append(ipco.ChildBoxes()[:len(ipco.ChildBoxes()):len(ipco.ChildBoxes())], NewColourInformationBox("prof", profile))
	index := len(props)
	if index > 0x7fff {
		return nil, fmt.Errorf("%w: property index %d", ErrUnsupportedFieldWidth, index)
	}

	na := *ipma
	if index > 0x7f {
		na.Flags |= 1
	}
	na.Entries = make([]ItemPropertyAssociationItem, len(ipma.Entries))
	for i, e := range ipma.Entries {
		assoc := make([]ItemProperty, len(e.Associations), len(e.Associations)+1)
		copy(assoc, e.Associations)
		na.Entries[i] = ItemPropertyAssociationItem{
			ItemID:       e.ItemID,
			Associations: append(assoc, ItemProperty{Essential: true, Index: uint16(index)}),
		}
	}

	repl := map[Box]Box{
		ipcos[0]: ipco.withChildren(props),
		ipmas[0]: &na,
	}
	boxes, _ := replaceBoxes(t.Boxes, repl)
	return t.derive(boxes), nil
}

// replaceBoxes substitutes boxes found in repl, copying every container
// on the path to a substituted box.
func replaceBoxes(boxes []Box, repl map[Box]Box) ([]Box, bool) {
	out := make([]Box, len(boxes))
	changed := false
	for i, b := range boxes {
		if nb, ok := repl[b]; ok {
			out[i] = nb
			changed = true
			continue
		}
		if c, ok := b.(Container); ok {
			if children, ch := replaceBoxes(c.ChildBoxes(), repl); ch {
				b = c.withChildren(children)
				changed = true
			}
		}
		out[i] = b
	}
	if !changed {
		return boxes, false
	}
	return out, true
}
