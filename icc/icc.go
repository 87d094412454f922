// Package icc reads the header, tag table and description text of ICC
// colour profiles, as embedded in HEIF "colr" boxes.
package icc

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/jdeng/heiftool/internal/bitio"
)

var (
	ErrInvalidProfile = errors.New("icc: invalid profile")
	ErrNoDescription  = errors.New("icc: no profile description")
)

const (
	headerSize  = 128
	maxTagCount = 1024
)

// Header is the fixed 128-byte profile header.
type Header struct {
	Size         uint32
	CMM          string
	Version      uint32 // major in the top byte, minor and bugfix nibbles in the next
	Class        string // e.g. "mntr", "scnr", "prtr"
	ColourSpace  string // e.g. "RGB ", "GRAY"
	PCS          string // "XYZ " or "Lab "
	Platform     string
	Flags        uint32
	Manufacturer string
	Model        string
	Intent       uint32
	Creator      string
}

// VersionString formats Version as major.minor.bugfix.
func (h Header) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", h.Version>>24, (h.Version>>20)&0xf, (h.Version>>16)&0xf)
}

type TagHeader struct {
	Signature string // e.g. "desc", "rXYZ", "A2B0"
	Offset    uint32 // from the start of the profile
	Size      uint32
}

// Profile is a parsed ICC profile. Tag data is read from the buffer
// passed to Parse.
type Profile struct {
	Header Header
	Tags   []TagHeader

	data []byte
}

func sig(r *bitio.Reader) string {
	b, _ := r.Bytes(4)
	return string(b)
}

// Parse reads the header and tag table of the profile in data.
func Parse(data []byte) (*Profile, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidProfile, len(data))
	}
	r := bitio.NewReader(data)
	p := &Profile{data: data}
	h := &p.Header
	h.Size, _ = r.U32()
	h.CMM = sig(r)
	h.Version, _ = r.U32()
	h.Class = sig(r)
	h.ColourSpace = sig(r)
	h.PCS = sig(r)
	r.Seek(36, 0)
	if s := sig(r); s != "acsp" {
		return nil, fmt.Errorf("%w: signature %q", ErrInvalidProfile, s)
	}
	h.Platform = sig(r)
	h.Flags, _ = r.U32()
	h.Manufacturer = sig(r)
	h.Model = sig(r)
	r.Seek(64, 0)
	h.Intent, _ = r.U32()
	r.Seek(80, 0)
	h.Creator = sig(r)
	if int(h.Size) > len(data) {
		return nil, fmt.Errorf("%w: declared size %d, have %d bytes", ErrInvalidProfile, h.Size, len(data))
	}

	r.Seek(headerSize, 0)
	count, _ := r.U32()
	if count > maxTagCount {
		return nil, fmt.Errorf("%w: tag count %d exceeds max allowed (%d)", ErrInvalidProfile, count, maxTagCount)
	}
	for i := uint32(0); i < count; i++ {
		var th TagHeader
		th.Signature = sig(r)
		th.Offset, _ = r.U32()
		th.Size, _ = r.U32()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: tag table: %v", ErrInvalidProfile, err)
		}
		if uint64(th.Offset)+uint64(th.Size) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: tag %q at %d+%d outside profile", ErrInvalidProfile, th.Signature, th.Offset, th.Size)
		}
		p.Tags = append(p.Tags, th)
	}
	return p, nil
}

// Tag returns the data of the first tag with signature s.
func (p *Profile) Tag(s string) ([]byte, bool) {
	for _, th := range p.Tags {
		if th.Signature == s {
			return p.data[th.Offset : th.Offset+th.Size], true
		}
	}
	return nil, false
}

// Description returns the text of the "desc" tag, which is either a
// textDescriptionType (ICC v2) or the first record of a
// multiLocalizedUnicodeType (ICC v4).
func (p *Profile) Description() (string, error) {
	tag, ok := p.Tag("desc")
	if !ok || len(tag) < 12 {
		return "", ErrNoDescription
	}
	r := bitio.NewReader(tag)
	typ := sig(r)
	r.Seek(8, 0)
	switch typ {
	case "desc":
		n, _ := r.U32()
		b, err := r.Bytes(int(min(n, uint32(r.Remaining()))))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoDescription, err)
		}
		s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(s), "\x00"), nil
	case "mluc":
		count, _ := r.U32()
		recSize, _ := r.U32()
		if count == 0 || recSize < 12 {
			return "", ErrNoDescription
		}
		r.Seek(16+4, 0) // skip language and country of the first record
		length, _ := r.U32()
		offset, _ := r.U32()
		if err := r.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoDescription, err)
		}
		if uint64(offset)+uint64(length) > uint64(len(tag)) {
			return "", fmt.Errorf("%w: mluc record outside tag", ErrNoDescription)
		}
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		s, err := dec.Bytes(tag[offset : offset+length])
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(s), "\x00"), nil
	}
	return "", fmt.Errorf("%w: desc tag of type %q", ErrNoDescription, typ)
}

// Description parses data and returns its description text.
func Description(data []byte) (string, error) {
	p, err := Parse(data)
	if err != nil {
		return "", err
	}
	return p.Description()
}
