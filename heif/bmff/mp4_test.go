package bmff

import (
	"bytes"
	"testing"

	"github.com/abema/go-mp4"

	"github.com/jdeng/heiftool/internal/heiftest"
)

// Check rebuilt files with an independent box reader.
func TestBuildReadableByGoMP4(t *testing.T) {
	data, _ := heiftest.HEIC(heiftest.Options{Exif: heiftest.ExifItem(heiftest.TIFF("Pixel"))})
	nt, err := mustParse(t, data).AppendICCProfile(make([]byte, 300))
	if err != nil {
		t.Fatal(err)
	}
	out := mustBuild(t, nt)

	var infos []mp4.BoxInfo
	_, err = mp4.ReadBoxStructure(bytes.NewReader(out), func(h *mp4.ReadHandle) (interface{}, error) {
		infos = append(infos, h.BoxInfo)
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d top-level boxes, want 3", len(infos))
	}
	var total uint64
	for _, bi := range infos {
		total += bi.Size
	}
	if total != uint64(len(out)) {
		t.Errorf("box sizes add up to %d, file has %d bytes", total, len(out))
	}
	mdat := infos[2]
	if mdat.Type != mp4.BoxTypeMdat() {
		t.Fatalf("third box: got %s, want mdat", mdat.Type)
	}

	iloc := mustParse(t, out).BoxesByType(TypeIloc)[0].(*ItemLocationBox)
	if got, want := iloc.Items[0].BaseOffset, mdat.Offset+mdat.HeaderSize; got != want {
		t.Errorf("item 1 base offset: got %d, want %d", got, want)
	}
}
