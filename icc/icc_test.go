package icc

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/jdeng/heiftool/internal/heiftest"
)

func TestParseHeader(t *testing.T) {
	p, err := Parse(heiftest.ICCProfile("sRGB IEC61966-2.1", false))
	if err != nil {
		t.Fatal(err)
	}
	h := p.Header
	if h.Class != "mntr" || h.ColourSpace != "RGB " || h.PCS != "XYZ " {
		t.Errorf("header: got %q %q %q", h.Class, h.ColourSpace, h.PCS)
	}
	if got, want := h.VersionString(), "2.1.0"; got != want {
		t.Errorf("version: got %s, want %s", got, want)
	}
	if len(p.Tags) != 1 || p.Tags[0].Signature != "desc" {
		t.Errorf("tags: %+v", p.Tags)
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		desc string
		v4   bool
	}{
		{"sRGB IEC61966-2.1", false},
		{"Display P3", true},
		{"Écran", true},
	}
	for _, tt := range tests {
		got, err := Description(heiftest.ICCProfile(tt.desc, tt.v4))
		if err != nil {
			t.Errorf("%q: %v", tt.desc, err)
			continue
		}
		if got != tt.desc {
			t.Errorf("got %q, want %q", got, tt.desc)
		}
	}
}

func TestInvalidProfiles(t *testing.T) {
	good := heiftest.ICCProfile("x", false)

	if _, err := Parse(good[:100]); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("short: got %v", err)
	}

	bad := append([]byte(nil), good...)
	copy(bad[36:], "xxxx")
	if _, err := Parse(bad); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("signature: got %v", err)
	}

	bad = append([]byte(nil), good...)
	binary.BigEndian.PutUint32(bad[128:], 5000)
	if _, err := Parse(bad); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("tag count: got %v", err)
	}

	bad = append([]byte(nil), good...)
	binary.BigEndian.PutUint32(bad[128+4+8:], 1<<20)
	if _, err := Parse(bad); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("tag size: got %v", err)
	}

	bad = append([]byte(nil), good...)
	copy(bad[128+4:], "cprt")
	if _, err := Description(bad); !errors.Is(err, ErrNoDescription) {
		t.Errorf("no desc tag: got %v", err)
	}
}
