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

package bmff

import (
	"fmt"

	"github.com/jdeng/heiftool/internal/bitio"
)

// ItemHevcConfigBox is a HEIF "hvcC" property: the HEVC decoder
// configuration record.
type ItemHevcConfigBox struct {
	Header

	ConfigurationVersion             uint8
	GeneralProfileSpace              uint8 // 2 bits
	GeneralTierFlag                  uint8 // 1 bit
	GeneralProfileIdc                uint8 // 5 bits
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64 // 48 bits
	GeneralLevelIdc                  uint8
	MinSpatialSegmentationIdc        uint16 // 12 bits
	ParallelismType                  uint8  // 2 bits
	ChromaFormat                     uint8  // 2 bits
	BitDepthLumaMinus8               uint8  // 3 bits
	BitDepthChromaMinus8             uint8  // 3 bits
	AvgFrameRate                     uint16
	ConstantFrameRate                uint8 // 2 bits
	NumTemporalLayers                uint8 // 3 bits
	TemporalIDNested                 uint8 // 1 bit
	LengthSizeMinusOne               uint8 // 2 bits

	NalArrays []HevcNalArray

	reserved [5]uint8 // as read, written back unchanged
}

type HevcNalArray struct {
	Completeness uint8 // 1 bit
	NalUnitType  uint8 // 6 bits
	Units        [][]byte

	reserved uint8
}

// reserved bit runs of the record, in order of appearance.
var hevcReserved = [5]struct {
	name string
	bits int
	want uint64
}{
	{"reserved before min_spatial_segmentation_idc", 4, 0xf},
	{"reserved before parallelismType", 6, 0x3f},
	{"reserved before chromaFormat", 6, 0x3f},
	{"reserved before bitDepthLumaMinus8", 5, 0x1f},
	{"reserved before bitDepthChromaMinus8", 5, 0x1f},
}

// AsHeader returns the parameter set NAL units, each preceded by its
// 4-byte big-endian length, as expected ahead of the first slice.
func (hc *ItemHevcConfigBox) AsHeader() []byte {
	var out []byte
	for _, na := range hc.NalArrays {
		for _, unit := range na.Units {
			n := len(unit)
			out = append(out, byte((n>>24)&0xff))
			out = append(out, byte((n>>16)&0xff))
			out = append(out, byte((n>>8)&0xff))
			out = append(out, byte((n>>0)&0xff))
			out = append(out, unit...)
		}
	}

	return out
}

func parseItemHevcConfigBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	hc := &ItemHevcConfigBox{Header: h}
	bits := func(n int) uint64 {
		v, _ := r.Bits(n)
		return v
	}
	// reserved reads a reserved run, keeping what was seen.
	var resErr error
	reserved := func(i int) {
		rs := hevcReserved[i]
		v := bits(rs.bits)
		hc.reserved[i] = uint8(v)
		if r.Err() == nil && resErr == nil {
			resErr = p.checkReserved(&hc.Header, rs.name, v, rs.want)
		}
	}

	hc.ConfigurationVersion = uint8(bits(8))
	hc.GeneralProfileSpace = uint8(bits(2))
	hc.GeneralTierFlag = uint8(bits(1))
	hc.GeneralProfileIdc = uint8(bits(5))
	hc.GeneralProfileCompatibilityFlags = uint32(bits(32))
	hc.GeneralConstraintIndicatorFlags = bits(48)
	hc.GeneralLevelIdc = uint8(bits(8))
	reserved(0)
	hc.MinSpatialSegmentationIdc = uint16(bits(12))
	reserved(1)
	hc.ParallelismType = uint8(bits(2))
	reserved(2)
	hc.ChromaFormat = uint8(bits(2))
	reserved(3)
	hc.BitDepthLumaMinus8 = uint8(bits(3))
	reserved(4)
	hc.BitDepthChromaMinus8 = uint8(bits(3))
	hc.AvgFrameRate = uint16(bits(16))
	hc.ConstantFrameRate = uint8(bits(2))
	hc.NumTemporalLayers = uint8(bits(3))
	hc.TemporalIDNested = uint8(bits(1))
	hc.LengthSizeMinusOne = uint8(bits(2))
	if resErr != nil {
		return nil, resErr
	}

	numArrays := int(bits(8))
	for i := 0; i < numArrays && r.Err() == nil; i++ {
		var na HevcNalArray
		na.Completeness = uint8(bits(1))
		na.reserved = uint8(bits(1))
		na.NalUnitType = uint8(bits(6))
		if r.Err() == nil {
			if err := p.checkReserved(&hc.Header, "reserved NAL array bit", uint64(na.reserved), 0); err != nil {
				return nil, err
			}
		}
		numNalus := int(bits(16))
		for j := 0; j < numNalus && r.Err() == nil; j++ {
			size := int(bits(16))
			unit, _ := r.Bytes(size)
			na.Units = append(na.Units, unit)
		}
		hc.NalArrays = append(hc.NalArrays, na)
	}
	return hc, r.Err()
}

func (hc *ItemHevcConfigBox) encode(b *builder, _ Box) error {
	w := b.w
	w.PutU8(hc.ConfigurationVersion)
	w.PutBits(uint64(hc.GeneralProfileSpace), 2)
	w.PutBits(uint64(hc.GeneralTierFlag), 1)
	w.PutBits(uint64(hc.GeneralProfileIdc), 5)
	w.PutU32(hc.GeneralProfileCompatibilityFlags)
	w.PutBits(hc.GeneralConstraintIndicatorFlags, 48)
	w.PutU8(hc.GeneralLevelIdc)
	res := func(i int) { w.PutBits(uint64(hc.reserved[i]), hevcReserved[i].bits) }
	res(0)
	w.PutBits(uint64(hc.MinSpatialSegmentationIdc), 12)
	res(1)
	w.PutBits(uint64(hc.ParallelismType), 2)
	res(2)
	w.PutBits(uint64(hc.ChromaFormat), 2)
	res(3)
	w.PutBits(uint64(hc.BitDepthLumaMinus8), 3)
	res(4)
	w.PutBits(uint64(hc.BitDepthChromaMinus8), 3)
	w.PutU16(hc.AvgFrameRate)
	w.PutBits(uint64(hc.ConstantFrameRate), 2)
	w.PutBits(uint64(hc.NumTemporalLayers), 3)
	w.PutBits(uint64(hc.TemporalIDNested), 1)
	w.PutBits(uint64(hc.LengthSizeMinusOne), 2)
	if len(hc.NalArrays) > 0xff {
		return fmt.Errorf("%d NAL unit arrays", len(hc.NalArrays))
	}
	w.PutU8(uint8(len(hc.NalArrays)))
	for _, na := range hc.NalArrays {
		w.PutBits(uint64(na.Completeness), 1)
		w.PutBits(uint64(na.reserved), 1)
		w.PutBits(uint64(na.NalUnitType), 6)
		w.PutU16(uint16(len(na.Units)))
		for _, u := range na.Units {
			if len(u) > 0xffff {
				return fmt.Errorf("NAL unit of %d bytes", len(u))
			}
			w.PutU16(uint16(len(u)))
			w.PutBytes(u)
		}
	}
	return nil
}

// ItemAv1ConfigBox is a HEIF "av1C" property.
type ItemAv1ConfigBox struct {
	Header

	Marker                           uint8 // 1 bit, must be 1
	Version                          uint8 // 7 bits, must be 1
	SeqProfile                       uint8 // 3 bits
	SeqLevelIdx0                     uint8 // 5 bits
	SeqTier0                         uint8 // 1 bit
	HighBitdepth                     uint8 // 1 bit
	TwelveBit                        uint8 // 1 bit
	Monochrome                       uint8 // 1 bit
	ChromaSubsamplingX               uint8 // 1 bit
	ChromaSubsamplingY               uint8 // 1 bit
	ChromaSamplePosition             uint8 // 2 bits
	InitialPresentationDelayPresent  uint8 // 1 bit
	InitialPresentationDelayMinusOne uint8 // 4 bits, reserved when not present
	ConfigOBUs                       []byte

	reserved uint8 // 3 bits
}

func parseItemAv1ConfigBox(p *parser, r *bitio.Reader, h Header, _ Box) (Box, error) {
	ac := &ItemAv1ConfigBox{Header: h}
	fields := []struct {
		dst  *uint8
		bits int
	}{
		{&ac.Marker, 1}, {&ac.Version, 7},
		{&ac.SeqProfile, 3}, {&ac.SeqLevelIdx0, 5},
		{&ac.SeqTier0, 1}, {&ac.HighBitdepth, 1}, {&ac.TwelveBit, 1}, {&ac.Monochrome, 1},
		{&ac.ChromaSubsamplingX, 1}, {&ac.ChromaSubsamplingY, 1}, {&ac.ChromaSamplePosition, 2},
		{&ac.reserved, 3}, {&ac.InitialPresentationDelayPresent, 1}, {&ac.InitialPresentationDelayMinusOne, 4},
	}
	for _, f := range fields {
		v, _ := r.Bits(f.bits)
		*f.dst = uint8(v)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if ac.Marker != 1 {
		if err := p.checkReserved(&ac.Header, "marker", uint64(ac.Marker), 1); err != nil {
			return nil, err
		}
	}
	ac.ConfigOBUs = rest(r)
	return ac, r.Err()
}

func (ac *ItemAv1ConfigBox) encode(b *builder, _ Box) error {
	w := b.w
	w.PutBits(uint64(ac.Marker), 1)
	w.PutBits(uint64(ac.Version), 7)
	w.PutBits(uint64(ac.SeqProfile), 3)
	w.PutBits(uint64(ac.SeqLevelIdx0), 5)
	for _, v := range []uint8{ac.SeqTier0, ac.HighBitdepth, ac.TwelveBit, ac.Monochrome, ac.ChromaSubsamplingX, ac.ChromaSubsamplingY} {
		w.PutBits(uint64(v), 1)
	}
	w.PutBits(uint64(ac.ChromaSamplePosition), 2)
	w.PutBits(uint64(ac.reserved), 3)
	w.PutBits(uint64(ac.InitialPresentationDelayPresent), 1)
	w.PutBits(uint64(ac.InitialPresentationDelayMinusOne), 4)
	w.PutBytes(ac.ConfigOBUs)
	return nil
}
