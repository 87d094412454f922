package bmff

import "iter"

// Walk returns an iterator over boxes and all their descendants in
// pre-order. Each box is yielded with its ancestors, outermost first.
// The ancestors slice is only valid during the iteration step.
// Children are read after the box is yielded.
func Walk(boxes []Box) iter.Seq2[Box, []Box] {
	return func(yield func(Box, []Box) bool) {
		walk(boxes, nil, yield)
	}
}

func walk(boxes []Box, ancestors []Box, yield func(Box, []Box) bool) bool {
	for _, b := range boxes {
		if !yield(b, ancestors) {
			return false
		}
		if c, ok := b.(Container); ok {
			if !walk(c.ChildBoxes(), append(ancestors, b), yield) {
				return false
			}
		}
	}
	return true
}

// Pairs returns an iterator over box pairs (x, s): for every list of
// siblings S in the tree, and every s in S, x ranges over all boxes in
// S and their descendants. Pairs is used to relate boxes in different
// branches, such as an "iloc" inside "meta" and a top-level "mdat".
func Pairs(boxes []Box) iter.Seq2[Box, Box] {
	return func(yield func(Box, Box) bool) {
		pairs(boxes, yield)
	}
}

func pairs(boxes []Box, yield func(Box, Box) bool) bool {
	for _, s := range boxes {
		for x := range Walk(boxes) {
			if !yield(x, s) {
				return false
			}
		}
		if c, ok := s.(Container); ok {
			if !pairs(c.ChildBoxes(), yield) {
				return false
			}
		}
	}
	return true
}

// Find returns all boxes of the given types, in pre-order.
func Find(boxes []Box, types ...BoxType) []Box {
	var out []Box
	for b := range Walk(boxes) {
		for _, t := range types {
			if b.Type() == t {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// BoxesByType returns all boxes of the tree with one of the given types.
func (t *Tree) BoxesByType(types ...BoxType) []Box {
	return Find(t.Boxes, types...)
}
