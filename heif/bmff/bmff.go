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

// Package bmff parses ISO BMFF boxes, as used by HEIF, MP4, etc., into
// an in-memory tree and serializes that tree back to bytes.
//
// Boxes the package understands are decoded into typed structs; every
// other box is kept as an opaque byte range. Parsing followed by Build
// reproduces the input byte for byte. Between the two, the tree can be
// edited with RemoveByType and AppendICCProfile; Build then recomputes
// box sizes and relocates item data offsets recorded in "iloc" boxes.
package bmff

import (
	"errors"
	"io"
	"log"
)

type BoxType [4]byte

// Common box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeURL  = BoxType{'u', 'r', 'l', ' '}
	TypeURN  = BoxType{'u', 'r', 'n', ' '}
	TypePitm = BoxType{'p', 'i', 't', 'm'}
	TypeIloc = BoxType{'i', 'l', 'o', 'c'}
	TypeIinf = BoxType{'i', 'i', 'n', 'f'}
	TypeInfe = BoxType{'i', 'n', 'f', 'e'}
	TypeIref = BoxType{'i', 'r', 'e', 'f'}
	TypeIdat = BoxType{'i', 'd', 'a', 't'}
	TypeIprp = BoxType{'i', 'p', 'r', 'p'}
	TypeIpco = BoxType{'i', 'p', 'c', 'o'}
	TypeIpma = BoxType{'i', 'p', 'm', 'a'}
	TypeHvcC = BoxType{'h', 'v', 'c', 'C'}
	TypeAv1C = BoxType{'a', 'v', '1', 'C'}
	TypeIspe = BoxType{'i', 's', 'p', 'e'}
	TypePasp = BoxType{'p', 'a', 's', 'p'}
	TypeColr = BoxType{'c', 'o', 'l', 'r'}
	TypePixi = BoxType{'p', 'i', 'x', 'i'}
	TypeClap = BoxType{'c', 'l', 'a', 'p'}
	TypeIrot = BoxType{'i', 'r', 'o', 't'}
	TypeImir = BoxType{'i', 'm', 'i', 'r'}
	TypeAuxC = BoxType{'a', 'u', 'x', 'C'}

	// Item reference types found under "iref".
	TypeThmb = BoxType{'t', 'h', 'm', 'b'}
	TypeCdsc = BoxType{'c', 'd', 's', 'c'}
	TypeDimg = BoxType{'d', 'i', 'm', 'g'}
	TypeAuxl = BoxType{'a', 'u', 'x', 'l'}
)

func (t BoxType) String() string { return string(t[:]) }

func (t BoxType) EqualString(s string) bool {
	// Could be cleaner, but see ohttps://github.com/golang/go/issues/24765
	return len(s) == 4 && s[0] == t[0] && s[1] == t[1] && s[2] == t[2] && s[3] == t[3]
}

func boxType(s string) BoxType {
	if len(s) != 4 {
		panic("bogus boxType length")
	}
	return BoxType{s[0], s[1], s[2], s[3]}
}

// ParseBoxType converts a 4-character string into a BoxType.
func ParseBoxType(s string) (BoxType, error) {
	if len(s) != 4 {
		return BoxType{}, errors.New("bmff: box type must be 4 bytes")
	}
	return boxType(s), nil
}

// Errors returned by Parse, Build and the tree mutation functions.
// They are wrapped with box type and offset context; use errors.Is.
var (
	ErrInvalidBoxLength           = errors.New("bmff: invalid box length")
	ErrTruncatedBox               = errors.New("bmff: truncated box")
	ErrUnsupportedVersion         = errors.New("bmff: unsupported box version")
	ErrMalformedReservedField     = errors.New("bmff: malformed reserved field")
	ErrOffsetMismatch             = errors.New("bmff: box end offset mismatch")
	ErrCountMismatch              = errors.New("bmff: entry count mismatch")
	ErrMultipleOrMissingContainer = errors.New("bmff: expected exactly one container box")
	ErrUnsupportedFieldWidth      = errors.New("bmff: unsupported field width")
)

type sizeForm uint8

const (
	sizeCompact sizeForm = iota // 32-bit size field
	sizeLarge                   // size field is 1, 64-bit size follows the type
	sizeOpen                    // size field is 0, box runs to the end of its container
	sizeOpenOne                 // size field is 1 read as open-ended
)

// Header holds the fields every box has.
type Header struct {
	typ    BoxType
	offset int64 // of the size field in the source buffer; -1 for synthesized boxes
	size   int64 // including the header
	form   sizeForm

	// Payload bytes left unread by a lenient parse, re-emitted on build.
	extra []byte
}

func newHeader(t BoxType) Header { return Header{typ: t, offset: -1} }

func (h *Header) Type() BoxType   { return h.typ }
func (h *Header) Offset() int64   { return h.offset }
func (h *Header) Size() int64     { return h.size }
func (h *Header) header() *Header { return h }
func (h *Header) End() int64      { return h.offset + h.size }

// IsOpenEnded reports whether the box was declared to run to the end of
// its container. Its Size is the resolved length.
func (h *Header) IsOpenEnded() bool { return h.form == sizeOpen || h.form == sizeOpenOne }

// HeaderSize returns the number of bytes taken by the size and type fields.
func (h *Header) HeaderSize() int64 {
	if h.form == sizeLarge {
		return 16
	}
	return 8
}

// Box represents a BMFF box. The set of implementations is closed: one
// struct per understood box type, ContainerBox for plain containers and
// RawBox for everything else.
type Box interface {
	Type() BoxType
	Offset() int64 // -1 if the box was not parsed from a buffer
	Size() int64   // as parsed; not updated by edits

	header() *Header
	encode(b *builder, parent Box) error
}

// Container is a Box holding an ordered list of child boxes.
type Container interface {
	Box
	ChildBoxes() []Box

	// withChildren returns a shallow copy of the box holding children.
	withChildren(children []Box) Box
}

// FullBox is the header extension of boxes carrying version and flags.
type FullBox struct {
	Header
	Version uint8
	Flags   uint32 // 24 bits
}

// Tree is a parsed box stream.
//
// A Tree is treated as immutable: RemoveByType and AppendICCProfile
// return new trees that share the untouched boxes with the original.
// Methods on Tree should not be called concurrently with edits to the
// boxes it holds.
type Tree struct {
	Boxes []Box

	src     []byte
	trailer []byte // fewer than 8 bytes after the last top-level box
	links   []MediaLink
}

// Source returns the buffer the tree was parsed from.
func (t *Tree) Source() []byte { return t.src }

// Links returns the item-to-mdat linkage recorded when the tree was parsed.
func (t *Tree) Links() []MediaLink { return t.links }

type options struct {
	strict    bool
	debug     bool
	largeSize bool
	logger    *log.Logger
}

// Option configures Parse and Build.
type Option func(*options)

// WithStrict turns reserved field and offset mismatches into errors
// instead of logged warnings.
func WithStrict(b bool) Option {
	return func(o *options) {
		o.strict = b
	}
}

// WithDebug logs one line per box parsed or built.
func WithDebug(b bool) Option {
	return func(o *options) {
		o.debug = b
	}
}

// WithLargeSize reads a size field of 1 as a 64-bit largesize following
// the box type, as ISO/IEC 14496-12 does. By default sizes 0 and 1 both
// mean that the box runs to the end of its container.
func WithLargeSize(b bool) Option {
	return func(o *options) {
		o.largeSize = b
	}
}

// WithLogger sets the destination of warnings and debug output.
// The default is the standard logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	return o
}

func (o *options) warnf(format string, args ...interface{}) {
	o.logger.Printf("bmff: warning: "+format, args...)
}

func (o *options) debugf(format string, args ...interface{}) {
	if o.debug {
		o.logger.Printf("bmff: debug: "+format, args...)
	}
}
