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

package heif

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/hashicorp/golang-lru/arc/v2"

	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/icc"
)

// Property is one child of the "ipco" box. Index is its 1-based
// position, the number "ipma" associations refer to.
type Property struct {
	Index int
	Box   bmff.Box // nil for index 0
	Value any      // one of the value types below, or nil for other boxes
}

// Colour is the value of a "colr" property.
type Colour struct {
	Type        string     // "nclx", "prof" or "rICC"
	Profile     []byte     // ICC profile, for "prof" and "rICC"
	Description string     // profile description, for "prof" and "rICC"
	NCLX        *bmff.NCLX // for "nclx"
}

// SpatialExtent is the value of an "ispe" property.
type SpatialExtent struct {
	Width, Height int
}

// PixelInfo is the value of a "pixi" property.
type PixelInfo struct {
	BitsPerChannel []uint8
}

// Rotation is the value of an "irot" property, in 90 degree steps
// counter-clockwise.
type Rotation struct {
	Angle int
}

// Mirror is the value of an "imir" property: 0 = vertical, 1 = horizontal.
type Mirror struct {
	Axis int
}

// HevcConfig summarizes an "hvcC" property.
type HevcConfig struct {
	Profile        uint8
	Level          uint8
	Chroma         uint8
	Compatibility  uint32
	Constraint     uint64
	BitDepthLuma   int
	BitDepthChroma int
	NalArrays      []bmff.HevcNalArray
}

// AuxType is the value of an "auxC" property.
type AuxType struct {
	Type    string
	SubType []byte
}

type Fraction struct {
	N, D int32
}

// CleanAperture is the value of a "clap" property.
type CleanAperture struct {
	Width, Height     Fraction
	HorizOff, VertOff Fraction
}

// PixelAspect is the value of a "pasp" property.
type PixelAspect struct {
	HSpacing, VSpacing uint32
}

// IllegalProfile is the description of ICC profiles that fail to parse.
const IllegalProfile = "illegal icc profile"

const descCacheSize = 64

// descriptions memoizes ICC profile descriptions by profile digest.
// Files from one camera tend to share a profile.
var descriptions = func() *arc.ARCCache[[sha256.Size]byte, string] {
	c, err := arc.NewARC[[sha256.Size]byte, string](descCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

// profileDescription returns the description text of an ICC profile,
// "" if it has none, or IllegalProfile if it cannot be parsed.
func profileDescription(data []byte) string {
	key := sha256.Sum256(data)
	if d, ok := descriptions.Get(key); ok {
		return d
	}
	d, err := icc.Description(data)
	switch {
	case errors.Is(err, icc.ErrNoDescription):
		d = ""
	case err != nil:
		d = IllegalProfile
	}
	descriptions.Add(key, d)
	return d
}

// Properties returns the property table of the file's single "ipco"
// box. Element 0 is empty, so the table can be indexed by association
// index directly.
func (f *File) Properties() ([]Property, error) {
	if f.props != nil || f.propsErr != nil {
		return f.props, f.propsErr
	}
	ipcos := f.tree.BoxesByType(bmff.TypeIpco)
	if len(ipcos) != 1 {
		f.propsErr = fmt.Errorf("heif: %d ipco boxes: %w", len(ipcos), bmff.ErrMultipleOrMissingContainer)
		return nil, f.propsErr
	}
	ipco, ok := ipcos[0].(bmff.Container)
	if !ok {
		f.propsErr = fmt.Errorf("heif: ipco at %d is not a container", ipcos[0].Offset())
		return nil, f.propsErr
	}
	children := ipco.ChildBoxes()
	props := make([]Property, 1, len(children)+1)
	for i, b := range children {
		props = append(props, Property{Index: i + 1, Box: b, Value: propertyValue(b)})
	}
	f.props = props
	return f.props, nil
}

func propertyValue(b bmff.Box) any {
	switch v := b.(type) {
	case *bmff.ColourInformationBox:
		c := Colour{Type: v.ColourType}
		switch v.ColourType {
		case "prof", "rICC":
			c.Profile = v.Data
			c.Description = profileDescription(v.Data)
		case "nclx":
			if n, ok := v.NCLX(); ok {
				c.NCLX = &n
			}
		}
		return c
	case *bmff.ImageSpatialExtentsProperty:
		return SpatialExtent{Width: int(v.ImageWidth), Height: int(v.ImageHeight)}
	case *bmff.PixelInformationProperty:
		return PixelInfo{BitsPerChannel: v.BitsPerChannel}
	case *bmff.ImageRotation:
		return Rotation{Angle: int(v.Angle)}
	case *bmff.ImageMirror:
		return Mirror{Axis: int(v.Mirror)}
	case *bmff.ItemHevcConfigBox:
		return HevcConfig{
			Profile:        v.GeneralProfileIdc,
			Level:          v.GeneralLevelIdc,
			Chroma:         v.ChromaFormat,
			Compatibility:  v.GeneralProfileCompatibilityFlags,
			Constraint:     v.GeneralConstraintIndicatorFlags,
			BitDepthLuma:   int(v.BitDepthLumaMinus8) + 8,
			BitDepthChroma: int(v.BitDepthChromaMinus8) + 8,
			NalArrays:      v.NalArrays,
		}
	case *bmff.AuxiliaryTypeProperty:
		return AuxType{Type: v.AuxType, SubType: v.AuxSubType}
	case *bmff.CleanApertureBox:
		return CleanAperture{
			Width:    Fraction{v.WidthN, v.WidthD},
			Height:   Fraction{v.HeightN, v.HeightD},
			HorizOff: Fraction{v.HorizOffN, v.HorizOffD},
			VertOff:  Fraction{v.VertOffN, v.VertOffD},
		}
	case *bmff.PixelAspectRatioBox:
		return PixelAspect{HSpacing: v.HSpacing, VSpacing: v.VSpacing}
	}
	return nil
}
