package bmff

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

var typeDescriptions = map[BoxType]string{
	TypeFtyp: "File Type and compatibility",
	TypeMeta: "Information about items",
	TypeMdat: "Media Data",
	TypeMoov: "Movie Box",
	TypeMvhd: "Movie Header",
	TypeTrak: "Track Box",
	TypeTkhd: "Track Header",
	TypeMdia: "Media Box",
	TypeMinf: "Media Information",
	TypeHdlr: "Handler reference",
	TypePitm: "Primary Item reference",
	TypeIloc: "Item Location",
	TypeIinf: "Item Information",
	TypeInfe: "Item Information Entry",
	TypeIdat: "Item Data",
	TypeDinf: "Data Information Box",
	TypeDref: "Data Reference Box",
	TypeURL:  "Data Entry Url Box",
	TypeURN:  "Data Entry Urn Box",
	TypeIref: "Item Reference Box",
	TypeDimg: "Derived Image",
	TypeThmb: "Thumbnail",
	TypeAuxl: "Auxiliary image",
	TypeCdsc: "Content Description",
	TypeIprp: "Item Properties",
	TypeIpco: "Item Property Container",
	TypePasp: "Pixel Aspect Ratio",
	TypeHvcC: "HEVC Decoder Conf",
	TypeAv1C: "AV1 Decoder Conf",
	TypeIspe: "Image Spatial Extents",
	TypeColr: "Colour Information",
	TypePixi: "Pixel Information",
	TypeClap: "Clean Aperture",
	TypeIrot: "Image Rotation",
	TypeImir: "Image Mirror",
	TypeAuxC: "Auxiliary Type",
	TypeIpma: "Item Properties Association",
}

// TypeDescription returns a human readable name for t, or "".
func TypeDescription(t BoxType) string { return typeDescriptions[t] }

var chromaFormats = []string{"Grayscale", "YUV420", "YUV422", "YUV444"}

// ChromaFormatDescription names an hvcC chroma format.
func ChromaFormatDescription(f uint8) string {
	if int(f) < len(chromaFormats) {
		return chromaFormats[f]
	}
	return "Unknown Chroma Format"
}

// ProfileIdcDescription names an HEVC general_profile_idc.
func ProfileIdcDescription(idc uint8) string {
	switch idc {
	case 1:
		return "Main profile"
	case 2:
		return "Main 10 profile"
	case 3:
		return "Main Still Picture profile"
	}
	return "Unknown Profile"
}

type DumpOptions struct {
	TypeOnly bool // one line per box: type, version and flags
	HexDump  bool // hex dump of each box's source bytes
	HexLimit int  // maximum bytes hex dumped per box, 0 for no limit
}

// Dump writes an indented description of the tree to w.
func Dump(w io.Writer, t *Tree, opts DumpOptions) error {
	bw := bufio.NewWriter(w)
	d := &dumper{w: bw, src: t.src, opts: opts}
	for b, ancestors := range Walk(t.Boxes) {
		d.box(b, len(ancestors))
	}
	return bw.Flush()
}

// DumpBox writes the description of b alone, without its children.
func DumpBox(w io.Writer, t *Tree, b Box, opts DumpOptions) error {
	bw := bufio.NewWriter(w)
	d := &dumper{w: bw, src: t.src, opts: opts}
	d.box(b, 0)
	return bw.Flush()
}

type dumper struct {
	w    *bufio.Writer
	src  []byte
	opts DumpOptions
}

func (d *dumper) box(b Box, depth int) {
	indent := strings.Repeat("    ", depth)
	h := b.header()
	var vf string
	if fb, ok := fullBoxOf(b); ok {
		vf = fmt.Sprintf(" version:%d flags:%d", fb.Version, fb.Flags)
	}
	if d.opts.TypeOnly {
		fmt.Fprintf(d.w, "%stype:%s%s\n", indent, h.typ, vf)
		return
	}
	fmt.Fprintf(d.w, "%stype:%s(offset:%d len:%d)%s", indent, h.typ, h.offset, h.size, vf)
	if desc := TypeDescription(h.typ); desc != "" {
		fmt.Fprintf(d.w, ": %s", desc)
	}
	fmt.Fprintln(d.w)
	d.details(b, indent+"  ")
	if len(h.extra) > 0 {
		fmt.Fprintf(d.w, "%s  (%d unparsed trailing bytes)\n", indent, len(h.extra))
	}
	if d.opts.HexDump && h.offset >= 0 {
		d.hex(indent+"  ", d.src[h.offset:h.offset+h.size])
	}
}

func (d *dumper) hex(indent string, data []byte) {
	truncated := 0
	if d.opts.HexLimit > 0 && len(data) > d.opts.HexLimit {
		truncated = len(data) - d.opts.HexLimit
		data = data[:d.opts.HexLimit]
	}
	for _, line := range strings.Split(strings.TrimSuffix(hex.Dump(data), "\n"), "\n") {
		fmt.Fprintf(d.w, "%s%s\n", indent, line)
	}
	if truncated > 0 {
		fmt.Fprintf(d.w, "%s... %d more bytes\n", indent, truncated)
	}
}

func fullBoxOf(b Box) (*FullBox, bool) {
	switch v := b.(type) {
	case *MovieHeaderBox:
		return &v.FullBox, true
	case *TrackHeaderBox:
		return &v.FullBox, true
	case *HandlerBox:
		return &v.FullBox, true
	case *PrimaryItemBox:
		return &v.FullBox, true
	case *ImageSpatialExtentsProperty:
		return &v.FullBox, true
	case *PixelInformationProperty:
		return &v.FullBox, true
	case *AuxiliaryTypeProperty:
		return &v.FullBox, true
	case *DataEntryBox:
		return &v.FullBox, true
	case *MetaBox:
		return &v.FullBox, true
	case *DataReferenceBox:
		return &v.FullBox, true
	case *ItemInfoBox:
		return &v.FullBox, true
	case *ItemInfoEntry:
		return &v.FullBox, true
	case *ItemReferenceBox:
		return &v.FullBox, true
	case *ItemPropertyAssociation:
		return &v.FullBox, true
	case *ItemLocationBox:
		return &v.FullBox, true
	}
	return nil, false
}

func (d *dumper) details(b Box, in string) {
	w := d.w
	switch v := b.(type) {
	case *FileTypeBox:
		fmt.Fprintf(w, "%smajor:%s minor:%d  alt:%s\n", in, v.MajorBrand, v.MinorVersion, strings.Join(v.Compatible, ", "))
	case *MovieHeaderBox:
		fmt.Fprintf(w, "%screationTime:%d modificationTime:%d timeScale:%d duration:%d\n", in, v.CreationTime, v.ModificationTime, v.Timescale, v.Duration)
		fmt.Fprintf(w, "%srate:%d volume:%d nextTrackID:%d\n", in, v.Rate, v.Volume, v.NextTrackID)
		fmt.Fprintf(w, "%smatrix:%v\n", in, v.Matrix)
	case *TrackHeaderBox:
		fmt.Fprintf(w, "%screationTime:%d modificationTime:%d trackID:%d duration:%d\n", in, v.CreationTime, v.ModificationTime, v.TrackID, v.Duration)
		fmt.Fprintf(w, "%slayer:%d alternateGroup:%d volume:%d width:%d height:%d\n", in, v.Layer, v.AlternateGroup, v.Volume, v.Width>>16, v.Height>>16)
		fmt.Fprintf(w, "%smatrix:%v\n", in, v.Matrix)
	case *HandlerBox:
		fmt.Fprintf(w, "%shandlerType:%s name:%q\n", in, v.HandlerType, strings.TrimRight(v.Name, "\x00"))
	case *PrimaryItemBox:
		fmt.Fprintf(w, "%sitemID:%d\n", in, v.ItemID)
	case *ItemLocationBox:
		fmt.Fprintf(w, "%soffsetSize:%d lengthSize:%d baseOffsetSize:%d", in, v.OffsetSize, v.LengthSize, v.BaseOffsetSize)
		if v.Version >= 1 {
			fmt.Fprintf(w, " indexSize:%d", v.IndexSize)
		}
		fmt.Fprintf(w, " itemCount:%d\n", len(v.Items))
		for _, it := range v.Items {
			fmt.Fprintf(w, "%s  itemID:%d", in, it.ItemID)
			if v.Version >= 1 {
				fmt.Fprintf(w, " constructionMethod:%d", it.ConstructionMethod)
			}
			fmt.Fprintf(w, " dataReferenceIndex:%d baseOffset:%d extentCount:%d\n", it.DataReferenceIndex, it.BaseOffset, len(it.Extents))
			for _, e := range it.Extents {
				fmt.Fprintf(w, "%s    extentOffset:%d extentLength:%d", in, e.Offset, e.Length)
				if v.Version >= 1 && v.IndexSize > 0 {
					fmt.Fprintf(w, " extentIndex:%d", e.Index)
				}
				fmt.Fprintln(w)
			}
		}
	case *ItemInfoBox:
		fmt.Fprintf(w, "%sentryCount:%d\n", in, v.Count)
	case *ItemInfoEntry:
		fmt.Fprintf(w, "%sitemID:%d itemProtectionIndex:%d", in, v.ItemID, v.ProtectionIndex)
		if v.Version >= 2 {
			fmt.Fprintf(w, " itemType:%s", v.ItemType)
		}
		fmt.Fprintln(w)
		if v.Name != "" {
			fmt.Fprintf(w, "%sitemName:%q\n", in, v.Name)
		}
		if v.ContentType != "" {
			fmt.Fprintf(w, "%scontentType:%q\n", in, v.ContentType)
		}
		if v.ContentEncoding != "" {
			fmt.Fprintf(w, "%scontentEncoding:%q\n", in, v.ContentEncoding)
		}
	case *DataReferenceBox:
		fmt.Fprintf(w, "%sentryCount:%d\n", in, v.Count)
	case *DataEntryBox:
		if len(v.Location) > 0 {
			fmt.Fprintf(w, "%slocation:%q\n", in, v.Location)
		}
	case *ItemTypeReferenceBox:
		fmt.Fprintf(w, "%sfromItemID:%d\n", in, v.FromItemID)
		fmt.Fprintf(w, "%sitemCount:%d\n", in, len(v.ToItemIDs))
		for _, id := range v.ToItemIDs {
			fmt.Fprintf(w, "%s  itemID:%d\n", in, id)
		}
	case *ItemPropertyAssociation:
		fmt.Fprintf(w, "%sentryCount:%d\n", in, len(v.Entries))
		for _, e := range v.Entries {
			fmt.Fprintf(w, "%s  itemID:%d associationCount:%d\n", in, e.ItemID, len(e.Associations))
			for _, a := range e.Associations {
				ess := 0
				if a.Essential {
					ess = 1
				}
				fmt.Fprintf(w, "%s    essential:%d propertyIndex:%d\n", in, ess, a.Index)
			}
		}
	case *ItemHevcConfigBox:
		fmt.Fprintf(w, "%sversion:%d profileSpace:%d tierFlag:%d profileIdc:%d(%s)\n", in,
			v.ConfigurationVersion, v.GeneralProfileSpace, v.GeneralTierFlag, v.GeneralProfileIdc, ProfileIdcDescription(v.GeneralProfileIdc))
		fmt.Fprintf(w, "%sprofileCompatibilityFlags:0x%08X constraintIndicatorFlags:0x%012X levelIdc:%d\n", in,
			v.GeneralProfileCompatibilityFlags, v.GeneralConstraintIndicatorFlags, v.GeneralLevelIdc)
		fmt.Fprintf(w, "%sminSpatialSegmentationIdc:%d parallelismType:%d chromaFormat:%d(%s)\n", in,
			v.MinSpatialSegmentationIdc, v.ParallelismType, v.ChromaFormat, ChromaFormatDescription(v.ChromaFormat))
		fmt.Fprintf(w, "%sbitDepthLuma:%d bitDepthChroma:%d avgFrameRate:%d constantFrameRate:%d\n", in,
			v.BitDepthLumaMinus8+8, v.BitDepthChromaMinus8+8, v.AvgFrameRate, v.ConstantFrameRate)
		fmt.Fprintf(w, "%snumTemporalLayers:%d temporalIdNested:%d lengthSize:%d\n", in,
			v.NumTemporalLayers, v.TemporalIDNested, v.LengthSizeMinusOne+1)
		for _, na := range v.NalArrays {
			fmt.Fprintf(w, "%s  completeness:%d nalUnitType:%d nalUnitCount:%d\n", in, na.Completeness, na.NalUnitType, len(na.Units))
			for _, u := range na.Units {
				fmt.Fprintf(w, "%s    nalUnitLength:%d nalUnit:% x\n", in, len(u), u)
			}
		}
	case *ItemAv1ConfigBox:
		fmt.Fprintf(w, "%sversion:%d profile:%d level:%d tier:%d highBitdepth:%d twelveBit:%d monochrome:%d\n", in,
			v.Version, v.SeqProfile, v.SeqLevelIdx0, v.SeqTier0, v.HighBitdepth, v.TwelveBit, v.Monochrome)
	case *ImageSpatialExtentsProperty:
		fmt.Fprintf(w, "%swidth:%d height:%d\n", in, v.ImageWidth, v.ImageHeight)
	case *PixelAspectRatioBox:
		fmt.Fprintf(w, "%shSpacing:%d vSpacing:%d\n", in, v.HSpacing, v.VSpacing)
	case *ColourInformationBox:
		fmt.Fprintf(w, "%ssubtype:%s", in, v.ColourType)
		if n, ok := v.NCLX(); ok {
			fmt.Fprintf(w, " colourPrimaries:%d transferCharacteristics:%d matrixCoefficients:%d fullRange:%v",
				n.ColourPrimaries, n.TransferCharacteristics, n.MatrixCoefficients, n.FullRange)
		} else {
			fmt.Fprintf(w, " dataLength:%d", len(v.Data))
		}
		fmt.Fprintln(w)
	case *PixelInformationProperty:
		fmt.Fprintf(w, "%snumberOfChannels:%d bitsPerChannel:%v\n", in, len(v.BitsPerChannel), v.BitsPerChannel)
	case *CleanApertureBox:
		fmt.Fprintf(w, "%swidth:%d/%d height:%d/%d horizOff:%d/%d vertOff:%d/%d\n", in,
			v.WidthN, v.WidthD, v.HeightN, v.HeightD, v.HorizOffN, v.HorizOffD, v.VertOffN, v.VertOffD)
	case *ImageRotation:
		fmt.Fprintf(w, "%sangle:%d\n", in, v.Angle)
	case *ImageMirror:
		fmt.Fprintf(w, "%smirror:%d\n", in, v.Mirror)
	case *AuxiliaryTypeProperty:
		fmt.Fprintf(w, "%sauxType:%q", in, v.AuxType)
		if len(v.AuxSubType) > 0 {
			fmt.Fprintf(w, " auxSubType:% x", v.AuxSubType)
		}
		fmt.Fprintln(w)
	case *RawBox:
		if v.Data != nil {
			fmt.Fprintf(w, "%sreplaced payload:%d bytes\n", in, len(v.Data))
		}
	}
}
