package bmff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/jdeng/heiftool/internal/heiftest"
)

var quiet = WithLogger(log.New(io.Discard, "", 0))

func mustParse(t *testing.T, data []byte, opts ...Option) *Tree {
	t.Helper()
	tree, err := Parse(data, append([]Option{quiet}, opts...)...)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func mustBuild(t *testing.T, tree *Tree) []byte {
	t.Helper()
	out, err := tree.Build(quiet)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return out
}

// itemData follows the iloc entry of item id in data.
func itemData(t *testing.T, data []byte, id uint32) []byte {
	t.Helper()
	tree := mustParse(t, data)
	for _, b := range tree.BoxesByType(TypeIloc) {
		for _, it := range b.(*ItemLocationBox).Items {
			if it.ItemID != id {
				continue
			}
			e := it.Extents[0]
			off := it.BaseOffset + e.Offset
			if off+e.Length > uint64(len(data)) {
				t.Fatalf("item %d extent [%d,+%d) outside file of %d bytes", id, off, e.Length, len(data))
			}
			return data[off : off+e.Length]
		}
	}
	t.Fatalf("no iloc entry for item %d", id)
	return nil
}

type fixture struct {
	data []byte
	opts []Option // for Parse
}

func fixtures() map[string]fixture {
	m := make(map[string]fixture)
	add := func(name string, o heiftest.Options, opts ...Option) {
		data, _ := heiftest.HEIC(o)
		m[name] = fixture{data, opts}
	}
	add("minimal", heiftest.Options{})
	add("exif", heiftest.Options{Exif: heiftest.ExifItem(heiftest.TIFF("Pixel"))})
	add("extents", heiftest.Options{ExtentOffsets: true})
	add("no base offset", heiftest.Options{NoBaseOffset: true})
	add("largesize", heiftest.Options{LargeMdat: true}, WithLargeSize(true))
	add("rotation", heiftest.Options{Rotation: 1})
	add("single brand", heiftest.Options{Brands: []string{"mif1"}})
	return m
}

func TestRoundTrip(t *testing.T) {
	for name, fx := range fixtures() {
		t.Run(name, func(t *testing.T) {
			got := mustBuild(t, mustParse(t, fx.data, fx.opts...))
			if !bytes.Equal(got, fx.data) {
				t.Errorf("rebuilt file differs from source:\n got % x\nwant % x", got, fx.data)
			}
		})
	}
}

// checkSpans checks that boxes tile [start, end) with no gaps.
func checkSpans(t *testing.T, where string, boxes []Box, start, end int64) {
	t.Helper()
	pos := start
	for _, b := range boxes {
		if b.Offset() != pos {
			t.Errorf("%s: %s at offset %d, previous box ends at %d", where, b.Type(), b.Offset(), pos)
		}
		if b.Size() != b.header().End()-b.Offset() || b.header().End() > end {
			t.Errorf("%s: %s [%d,+%d) outside [%d,%d)", where, b.Type(), b.Offset(), b.Size(), start, end)
		}
		pos = b.header().End()
	}
	if pos != end {
		t.Errorf("%s: boxes end at %d, want %d", where, pos, end)
	}
}

func TestLengthConsistency(t *testing.T) {
	cases := fixtures()
	for _, size := range []uint32{0, 1} {
		data, layout := heiftest.HEIC(heiftest.Options{})
		binary.BigEndian.PutUint32(data[layout.MdatOffset:], size)
		cases[fmt.Sprint("open size ", size)] = fixture{data: data}
	}
	for name, fx := range cases {
		t.Run(name, func(t *testing.T) {
			tree := mustParse(t, fx.data, fx.opts...)
			checkSpans(t, "top level", tree.Boxes, 0, int64(len(fx.data)))
			for b := range Walk(tree.Boxes) {
				c, ok := b.(Container)
				if !ok || len(c.ChildBoxes()) == 0 {
					continue
				}
				first := c.ChildBoxes()[0].Offset()
				if first < c.Offset()+c.header().HeaderSize() {
					t.Errorf("%s: first child at %d inside the header", c.Type(), first)
				}
				checkSpans(t, c.Type().String(), c.ChildBoxes(), first, c.header().End())
			}
			last := tree.Boxes[len(tree.Boxes)-1]
			if last.header().IsOpenEnded() && last.Size() != int64(len(fx.data))-last.Offset() {
				t.Errorf("open-ended %s: size %d, span %d", last.Type(), last.Size(), int64(len(fx.data))-last.Offset())
			}
		})
	}
}

func TestParseMinimal(t *testing.T) {
	data, layout := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data, WithStrict(true))

	var types []string
	for _, b := range tree.Boxes {
		types = append(types, b.Type().String())
	}
	if got, want := strings.Join(types, ","), "ftyp,meta,mdat"; got != want {
		t.Errorf("top-level boxes: got %s, want %s", got, want)
	}
	ft := tree.Boxes[0].(*FileTypeBox)
	if ft.MajorBrand != "heic" || !reflect.DeepEqual(ft.Compatible, []string{"mif1", "heic"}) {
		t.Errorf("ftyp: got %q %q", ft.MajorBrand, ft.Compatible)
	}
	pitm := tree.BoxesByType(TypePitm)[0].(*PrimaryItemBox)
	if pitm.ItemID != 1 {
		t.Errorf("pitm: got item %d, want 1", pitm.ItemID)
	}
	infe := tree.BoxesByType(TypeInfe)[0].(*ItemInfoEntry)
	if infe.ItemID != 1 || infe.ItemType != "hvc1" {
		t.Errorf("infe: got id %d type %q", infe.ItemID, infe.ItemType)
	}
	hc := tree.BoxesByType(TypeHvcC)[0].(*ItemHevcConfigBox)
	if hc.GeneralProfileIdc != 1 || hc.ChromaFormat != 1 || hc.LengthSizeMinusOne != 3 {
		t.Errorf("hvcC: profile %d chroma %d lengthSize %d", hc.GeneralProfileIdc, hc.ChromaFormat, hc.LengthSizeMinusOne+1)
	}
	if len(hc.NalArrays) != 1 || hc.NalArrays[0].NalUnitType != 32 || !bytes.Equal(hc.NalArrays[0].Units[0], []byte{0x40, 0x01, 0x0c, 0x01}) {
		t.Errorf("hvcC NAL arrays: %+v", hc.NalArrays)
	}
	if got, want := hc.AsHeader(), []byte{0, 0, 0, 4, 0x40, 0x01, 0x0c, 0x01}; !bytes.Equal(got, want) {
		t.Errorf("AsHeader: got % x, want % x", got, want)
	}
	ipma := tree.BoxesByType(TypeIpma)[0].(*ItemPropertyAssociation)
	want := []ItemProperty{{Essential: true, Index: 1}, {Essential: false, Index: 2}}
	if !reflect.DeepEqual(ipma.Entries[0].Associations, want) {
		t.Errorf("ipma: got %+v, want %+v", ipma.Entries[0].Associations, want)
	}

	links := tree.Links()
	if len(links) != 1 {
		t.Fatalf("links: got %d, want 1", len(links))
	}
	if l := links[0]; l.Extent != -1 || l.MediaData != tree.Boxes[2] || l.Relative != 8 {
		t.Errorf("link: got extent %d relative %d", l.Extent, l.Relative)
	}
	if got := itemData(t, data, 1); !bytes.Equal(got, layout.Data) {
		t.Errorf("item data: got %q, want %q", got, layout.Data)
	}
}

func TestExtentOffsetLink(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{ExtentOffsets: true})
	tree := mustParse(t, data)
	if len(tree.Links()) != 1 || tree.Links()[0].Extent != 0 {
		t.Fatalf("links: %+v", tree.Links())
	}
}

func TestAppendICCProfile(t *testing.T) {
	profile := bytes.Repeat([]byte{0xab}, 100)
	for name, fx := range fixtures() {
		data := fx.data
		t.Run(name, func(t *testing.T) {
			tree := mustParse(t, data, fx.opts...)
			nt, err := tree.AppendICCProfile(profile)
			if err != nil {
				t.Fatal(err)
			}
			out := mustBuild(t, nt)
			// colr header, colour type, profile, one association byte
			if want := len(data) + 8 + 4 + len(profile) + 1; len(out) != want {
				t.Errorf("rebuilt size: got %d, want %d", len(out), want)
			}
			if got, want := itemData(t, out, 1), itemData(t, data, 1); !bytes.Equal(got, want) {
				t.Errorf("item 1 data after insertion: got %q, want %q", got, want)
			}

			re := mustParse(t, out, WithStrict(true))
			ipco := re.BoxesByType(TypeIpco)[0].(*ContainerBox)
			colr, ok := ipco.Children[len(ipco.Children)-1].(*ColourInformationBox)
			if !ok || colr.ColourType != "prof" || !bytes.Equal(colr.Data, profile) {
				t.Fatalf("last ipco child: %#v", ipco.Children[len(ipco.Children)-1])
			}
			ipma := re.BoxesByType(TypeIpma)[0].(*ItemPropertyAssociation)
			for _, e := range ipma.Entries {
				last := e.Associations[len(e.Associations)-1]
				if !last.Essential || int(last.Index) != len(ipco.Children) {
					t.Errorf("item %d: last association %+v, want essential index %d", e.ItemID, last, len(ipco.Children))
				}
			}

			// The source tree is untouched.
			if got := mustBuild(t, tree); !bytes.Equal(got, data) {
				t.Errorf("source tree changed by AppendICCProfile")
			}
		})
	}
}

func TestAppendICCProfileWideIndex(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data)
	var err error
	for i := 0; i < 126; i++ {
		if tree, err = tree.AppendICCProfile([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	out := mustBuild(t, tree)
	re := mustParse(t, out, WithStrict(true))
	ipma := re.BoxesByType(TypeIpma)[0].(*ItemPropertyAssociation)
	if ipma.Flags&1 != 1 {
		t.Errorf("ipma flags: got %d, want 15-bit indices", ipma.Flags)
	}
	as := ipma.Entries[0].Associations
	if len(as) != 128 || as[0].Index != 1 || as[1].Index != 2 || as[127].Index != 128 {
		t.Errorf("associations: got %d, first %+v last %+v", len(as), as[0], as[len(as)-1])
	}
	if got := itemData(t, out, 1); string(got) != "0123456789abcdef" {
		t.Errorf("item data: got %q", got)
	}
}

func TestAppendICCProfileContainers(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data).RemoveByType(TypeIpma)
	if _, err := tree.AppendICCProfile([]byte{1}); !errors.Is(err, ErrMultipleOrMissingContainer) {
		t.Errorf("without ipma: got %v, want ErrMultipleOrMissingContainer", err)
	}

	meta := heiftest.FullBox("meta", 0, 0,
		heiftest.Box("iprp", heiftest.Box("ipco"), heiftest.FullBox("ipma", 0, 0, heiftest.U32(0))),
		heiftest.Box("iprp", heiftest.Box("ipco"), heiftest.FullBox("ipma", 0, 0, heiftest.U32(0))),
	)
	if _, err := mustParse(t, meta).AppendICCProfile([]byte{1}); !errors.Is(err, ErrMultipleOrMissingContainer) {
		t.Errorf("two ipco: got %v, want ErrMultipleOrMissingContainer", err)
	}
}

func TestRemoveByType(t *testing.T) {
	data, layout := heiftest.HEIC(heiftest.Options{Exif: heiftest.ExifItem(heiftest.TIFF("Pixel"))})
	tree := mustParse(t, data)

	nt := tree.RemoveByType(TypeHvcC, TypeIref)
	if n := len(nt.BoxesByType(TypeHvcC, TypeIref, TypeCdsc)); n != 0 {
		t.Errorf("%d removed boxes still in tree", n)
	}
	if len(nt.Links()) != 2 {
		t.Errorf("links: got %d, want 2", len(nt.Links()))
	}
	out := mustBuild(t, nt)
	if want := len(data) - (8 + len(heiftest.HvcC)) - 26; len(out) != want {
		t.Errorf("size: got %d, want %d", len(out), want)
	}
	if got := itemData(t, out, 1); !bytes.Equal(got, layout.Data) {
		t.Errorf("item 1 data: got %q, want %q", got, layout.Data)
	}
	if got := itemData(t, out, 2); !bytes.Equal(got, itemData(t, data, 2)) {
		t.Errorf("item 2 data: got %q", got)
	}
	if len(tree.BoxesByType(TypeHvcC)) != 1 {
		t.Errorf("source tree lost its hvcC")
	}
}

func TestRemoveByTypeIdempotent(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data)
	nt := tree.RemoveByType(boxType("zzzz"))
	if !reflect.DeepEqual(tree, nt) {
		t.Errorf("removing an absent type changed the tree")
	}
	once := tree.RemoveByType(TypeIspe)
	twice := once.RemoveByType(TypeIspe)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second removal changed the tree")
	}
}

func TestRemoveMdat(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data).RemoveByType(TypeMdat)
	if len(tree.Links()) != 0 {
		t.Errorf("links to a removed mdat kept: %d", len(tree.Links()))
	}
	if _, err := tree.Build(quiet); err != nil {
		t.Errorf("Build: %v", err)
	}
}

func TestOpenEndedMdat(t *testing.T) {
	for _, size := range []uint32{0, 1} {
		t.Run(fmt.Sprint("size ", size), func(t *testing.T) {
			data, layout := heiftest.HEIC(heiftest.Options{})
			binary.BigEndian.PutUint32(data[layout.MdatOffset:], size)

			tree := mustParse(t, data)
			mdat := tree.Boxes[2]
			if !mdat.(*RawBox).IsOpenEnded() || mdat.Size() != int64(len(data)-layout.MdatOffset) {
				t.Fatalf("mdat: open %v size %d", mdat.(*RawBox).IsOpenEnded(), mdat.Size())
			}
			if got := mustBuild(t, tree); !bytes.Equal(got, data) {
				t.Errorf("round trip of open-ended mdat differs")
			}

			nt, err := tree.AppendICCProfile([]byte("icc"))
			if err != nil {
				t.Fatal(err)
			}
			out := mustBuild(t, nt)
			re := mustParse(t, out)
			if got := binary.BigEndian.Uint32(out[re.Boxes[2].Offset():]); got != size {
				t.Errorf("rebuilt mdat size field: got %d, want %d", got, size)
			}
			if got := itemData(t, out, 1); !bytes.Equal(got, layout.Data) {
				t.Errorf("item data: got %q", got)
			}
		})
	}
}

func TestSizeOneIsOpenEnded(t *testing.T) {
	ftyp := heiftest.Box("ftyp", []byte("mif1"), heiftest.U32(0), []byte("mif1"))
	payload := []byte("0123456789abcdef")
	data := append(append(ftyp, 0, 0, 0, 1, 'm', 'd', 'a', 't'), payload...)

	tree := mustParse(t, data, WithStrict(true))
	if len(tree.Boxes) != 2 {
		t.Fatalf("got %d top-level boxes, want 2", len(tree.Boxes))
	}
	mdat := tree.Boxes[1].(*RawBox)
	if !mdat.IsOpenEnded() || mdat.Size() != int64(8+len(payload)) || !bytes.Equal(mdat.Payload(), payload) {
		t.Errorf("mdat: open %v size %d payload %q", mdat.IsOpenEnded(), mdat.Size(), mdat.Payload())
	}
	if got := mustBuild(t, tree); !bytes.Equal(got, data) {
		t.Errorf("round trip: got % x, want % x", got, data)
	}

	// Not the last box any more: the size is written out.
	nt := &Tree{Boxes: []Box{tree.Boxes[1], tree.Boxes[0]}}
	out := mustBuild(t, nt)
	if got := binary.BigEndian.Uint32(out); got != uint32(8+len(payload)) {
		t.Errorf("moved mdat size field: got %d, want %d", got, 8+len(payload))
	}

	if _, err := Parse(data, quiet, WithLargeSize(true)); !errors.Is(err, ErrTruncatedBox) {
		t.Errorf("largesize reading: got %v, want ErrTruncatedBox", err)
	}
}

func TestTrailingBytes(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	data = append(data, 1, 2, 3)
	if got := mustBuild(t, mustParse(t, data)); !bytes.Equal(got, data) {
		t.Errorf("trailing bytes lost")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts []Option
		want error
	}{
		{"size 4", []byte{0, 0, 0, 4, 'f', 'r', 'e', 'e'}, nil, ErrInvalidBoxLength},
		{"largesize 12", append([]byte{0, 0, 0, 1, 'f', 'r', 'e', 'e'}, heiftest.U64(12)...), []Option{WithLargeSize(true)}, ErrInvalidBoxLength},
		{"truncated", append(heiftest.U32(100), []byte("free0123456789")...), nil, ErrTruncatedBox},
		{"child overruns parent", heiftest.Box("moov", heiftest.U32(64), []byte("free"), make([]byte, 8)), nil, ErrTruncatedBox},
		{
			"dref count",
			heiftest.Box("dinf", heiftest.FullBox("dref", 0, 0, heiftest.U32(2), heiftest.FullBox("url ", 0, 1))),
			nil, ErrCountMismatch,
		},
		{
			"iinf count",
			heiftest.FullBox("iinf", 0, 0, heiftest.U16(3), heiftest.FullBox("infe", 2, 0, heiftest.U16(1), heiftest.U16(0), []byte("hvc1"), []byte{0})),
			nil, ErrCountMismatch,
		},
		{"mvhd version 2", heiftest.FullBox("mvhd", 2, 0, make([]byte, 96)), nil, ErrUnsupportedVersion},
		{"iloc field width", heiftest.FullBox("iloc", 0, 0, []byte{0x94, 0x00}, heiftest.U16(0)), nil, ErrUnsupportedFieldWidth},
		{
			"strict overrun",
			heiftest.FullBox("ispe", 0, 0, heiftest.U32(1)),
			[]Option{WithStrict(true)}, ErrOffsetMismatch,
		},
		{
			"strict leftover",
			heiftest.FullBox("ispe", 0, 0, heiftest.U32(1), heiftest.U32(2), heiftest.U32(3)),
			[]Option{WithStrict(true)}, ErrOffsetMismatch,
		},
		{"strict irot", heiftest.Box("irot", []byte{0x81}), []Option{WithStrict(true)}, ErrMalformedReservedField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, append([]Option{quiet}, tt.opts...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLenientRecovery(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"overrun", heiftest.FullBox("ispe", 0, 0, heiftest.U32(1))},
		{"leftover", heiftest.FullBox("ispe", 0, 0, heiftest.U32(1), heiftest.U32(2), heiftest.U32(3))},
		{"irot reserved", heiftest.Box("irot", []byte{0x81})},
		{"container leftover", heiftest.Box("ipco", heiftest.Box("free"), []byte{1, 2, 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logbuf bytes.Buffer
			tree, err := Parse(tt.data, WithLogger(log.New(&logbuf, "", 0)))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(logbuf.String(), "warning") {
				t.Errorf("no warning logged")
			}
			if got := mustBuild(t, tree); !bytes.Equal(got, tt.data) {
				t.Errorf("round trip: got % x, want % x", got, tt.data)
			}
		})
	}
}

func TestHevcReservedBits(t *testing.T) {
	hvcc := append([]byte(nil), heiftest.HvcC...)
	hvcc[13] = 0x00 // reserved run before min_spatial_segmentation_idc
	data := heiftest.Box("hvcC", hvcc)

	if _, err := Parse(data, quiet, WithStrict(true)); !errors.Is(err, ErrMalformedReservedField) {
		t.Errorf("strict: got %v, want ErrMalformedReservedField", err)
	}
	tree := mustParse(t, data)
	if got := mustBuild(t, tree); !bytes.Equal(got, data) {
		t.Errorf("observed reserved bits not preserved:\n got % x\nwant % x", got, data)
	}
}

func TestMovieHeader(t *testing.T) {
	payload := append(heiftest.U32(1), heiftest.U32(2)...) // creation, modification
	payload = append(payload, heiftest.U32(600)...)        // timescale
	payload = append(payload, heiftest.U32(1200)...)       // duration
	payload = append(payload, heiftest.U32(0x00010000)...)
	payload = append(payload, 0x01, 0x00, 0, 0)
	payload = append(payload, make([]byte, 8)...)
	for _, m := range []int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000} {
		payload = append(payload, heiftest.U32(uint32(m))...)
	}
	payload = append(payload, make([]byte, 24)...)
	payload = append(payload, heiftest.U32(2)...) // next track
	data := heiftest.Box("moov", heiftest.FullBox("mvhd", 0, 0, payload))

	tree := mustParse(t, data, WithStrict(true))
	mh := tree.BoxesByType(TypeMvhd)[0].(*MovieHeaderBox)
	if mh.Timescale != 600 || mh.Duration != 1200 || mh.NextTrackID != 2 || mh.Matrix[8] != 0x40000000 {
		t.Errorf("mvhd: %+v", mh)
	}
	if got := mustBuild(t, tree); !bytes.Equal(got, data) {
		t.Errorf("mvhd round trip differs")
	}
}

func TestItemReferenceWideIDs(t *testing.T) {
	data := heiftest.FullBox("iref", 1, 0,
		heiftest.Box("dimg", heiftest.U32(0x10000), heiftest.U16(2), heiftest.U32(1), heiftest.U32(2)),
		heiftest.Box("iloc", heiftest.U32(3), heiftest.U16(0)),
	)
	tree := mustParse(t, data, WithStrict(true))
	refs := tree.Boxes[0].(*ItemReferenceBox).Children
	dimg := refs[0].(*ItemTypeReferenceBox)
	if dimg.FromItemID != 0x10000 || !reflect.DeepEqual(dimg.ToItemIDs, []uint32{1, 2}) {
		t.Errorf("dimg: %+v", dimg)
	}
	if _, ok := refs[1].(*ItemTypeReferenceBox); !ok {
		t.Errorf("iloc under iref: got %T, want *ItemTypeReferenceBox", refs[1])
	}
	if got := mustBuild(t, tree); !bytes.Equal(got, data) {
		t.Errorf("round trip differs")
	}
}

func TestUnsupportedPatchWidth(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data)
	tree.BoxesByType(TypeIloc)[0].(*ItemLocationBox).BaseOffsetSize = 8
	if _, err := tree.Build(quiet); !errors.Is(err, ErrUnsupportedFieldWidth) {
		t.Errorf("got %v, want ErrUnsupportedFieldWidth", err)
	}
}

func TestWalk(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data)

	var got []string
	for b, ancestors := range Walk(tree.Boxes) {
		got = append(got, strings.Repeat(">", len(ancestors))+b.Type().String())
	}
	want := []string{
		"ftyp", "meta", ">hdlr", ">pitm", ">iinf", ">>infe", ">iloc",
		">iprp", ">>ipco", ">>>hvcC", ">>>ispe", ">>ipma", "mdat",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("walk order:\n got %v\nwant %v", got, want)
	}

	n := 0
	for range Walk(tree.Boxes) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("early stop: visited %d", n)
	}

	found := false
	for x, s := range Pairs(tree.Boxes) {
		if x.Type() == TypeIloc && s.Type() == TypeMdat {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Pairs did not relate iloc and mdat")
	}
}

func TestDump(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{})
	tree := mustParse(t, data)

	var buf bytes.Buffer
	if err := Dump(&buf, tree, DumpOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"type:ftyp(offset:0 len:24): File Type and compatibility",
		"major:heic minor:0  alt:mif1, heic",
		"width:64 height:48",
		"profileIdc:1(Main profile)",
		"chromaFormat:1(YUV420)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := Dump(&buf, tree, DumpOptions{TypeOnly: true}); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 13 {
		t.Errorf("type-only dump: got %d lines, want 13", n)
	}

	buf.Reset()
	if err := Dump(&buf, tree, DumpOptions{HexDump: true, HexLimit: 16}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "00000000  00 00 00 18 66 74 79 70") {
		t.Errorf("hex dump missing ftyp header:\n%s", buf.String())
	}
}
