package heif

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jdeng/heiftool/heif/bmff"
)

const previewLen = 16

// WriteTree writes a report of the property table followed by every
// item with its roles, location, a preview of its data and its
// properties.
func (f *File) WriteTree(w io.Writer) error {
	props, err := f.Properties()
	if err != nil {
		return err
	}
	ids, err := f.ItemIDs()
	if err != nil {
		return err
	}
	items, _ := f.Items()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Props:")
	for _, p := range props[1:] {
		fmt.Fprintf(bw, "[%d]: %s", p.Index, p.Box.Type())
		writePropertyDetail(bw, p.Value)
		fmt.Fprintln(bw)
		if hc, ok := p.Value.(HevcConfig); ok {
			fmt.Fprintf(bw, "    compatibility:0x%08x constraint:0x%012x bitdepth,%d:%d\n",
				hc.Compatibility, hc.Constraint, hc.BitDepthLuma, hc.BitDepthChroma)
			for _, a := range hc.NalArrays {
				fmt.Fprintf(bw, "    naltype:%d ", a.NalUnitType)
				for _, u := range a.Units {
					fmt.Fprintf(bw, "(len:%d) %s\n", len(u), preview(u))
				}
			}
		}
	}

	fmt.Fprintln(bw, "Items:")
	for _, id := range ids {
		f.writeItem(bw, items[id], props)
	}
	return bw.Flush()
}

func writePropertyDetail(w io.Writer, v any) {
	switch v := v.(type) {
	case Colour:
		fmt.Fprintf(w, " subtype:%s", v.Type)
		if v.Profile != nil {
			fmt.Fprintf(w, " prof:%s", v.Description)
		}
		if n := v.NCLX; n != nil {
			fmt.Fprintf(w, " primaries:%d transfer:%d matrix:%d full:%t",
				n.ColourPrimaries, n.TransferCharacteristics, n.MatrixCoefficients, n.FullRange)
		}
	case HevcConfig:
		fmt.Fprintf(w, " profile:%d(%s) level:%d chroma:%d(%s)",
			v.Profile, bmff.ProfileIdcDescription(v.Profile), v.Level,
			v.Chroma, bmff.ChromaFormatDescription(v.Chroma))
	case PixelInfo:
		fmt.Fprintf(w, " channels:%s", joinUint8(v.BitsPerChannel))
	case Rotation:
		fmt.Fprintf(w, " angle:%d", v.Angle)
	case Mirror:
		fmt.Fprintf(w, " axis:%d", v.Axis)
	case SpatialExtent:
		fmt.Fprintf(w, " width:%d height:%d", v.Width, v.Height)
	case AuxType:
		fmt.Fprintf(w, " auxtype:%s", v.Type)
	case PixelAspect:
		fmt.Fprintf(w, " hspacing:%d vspacing:%d", v.HSpacing, v.VSpacing)
	case CleanAperture:
		fmt.Fprintf(w, " width:%d/%d height:%d/%d", v.Width.N, v.Width.D, v.Height.N, v.Height.D)
	}
}

// shortDetail is the compact form used in item association lists.
func shortDetail(v any) string {
	switch v := v.(type) {
	case Rotation:
		return fmt.Sprintf(":%d", v.Angle)
	case SpatialExtent:
		return fmt.Sprintf(":%d,%d", v.Width, v.Height)
	case Colour:
		return ":" + v.Type
	case HevcConfig:
		return fmt.Sprintf(":%d,%d,%d", v.Profile, v.Level, v.Chroma)
	case PixelInfo:
		return ":" + joinUint8(v.BitsPerChannel)
	}
	return ""
}

func (f *File) writeItem(w io.Writer, it *Item, props []Property) {
	fmt.Fprintf(w, "[%d]:", it.ID)
	if it.Primary {
		fmt.Fprint(w, " pitm")
	}
	for _, r := range it.Roles {
		fmt.Fprintf(w, " %s:%d", r.Type, r.Item)
	}
	if it.Type != "" {
		fmt.Fprintf(w, " type:%s", it.Type)
	} else {
		fmt.Fprint(w, " type: (infe type empty)")
	}
	if loc := it.Location; loc != nil {
		if loc.HasMethod {
			fmt.Fprintf(w, " method:%d", loc.Method)
		}
		fmt.Fprintf(w, " ref:%d offset:%d length:%d", loc.Reference, loc.Offset, loc.Length)
	}
	fmt.Fprintln(w)

	if loc := it.Location; loc != nil {
		src := "mdat"
		if loc.Method == 1 {
			src = "idat"
		}
		data, err := f.GetItemData(it)
		if err != nil {
			fmt.Fprintf(w, "    (%s) %v\n", src, err)
		} else {
			fmt.Fprintf(w, "    (%s:0x%x,0x%x) %s\n", src, loc.Offset, loc.Length, preview(data))
		}
	}

	if len(it.Associations) > 0 {
		fmt.Fprint(w, "   ")
		for _, a := range it.Associations {
			fmt.Fprintf(w, " [%d", a.Index)
			if !a.Essential {
				fmt.Fprint(w, "?")
			}
			fmt.Fprint(w, "]")
			if int(a.Index) > 0 && int(a.Index) < len(props) {
				p := props[a.Index]
				fmt.Fprintf(w, "%s%s", p.Box.Type(), shortDetail(p.Value))
			}
		}
		fmt.Fprintln(w)
	}
}

// preview formats up to previewLen bytes of data as hex.
func preview(data []byte) string {
	n := min(len(data), previewLen)
	var sb strings.Builder
	for i, c := range data[:n] {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	if n < len(data) {
		sb.WriteString(" ...")
	}
	return sb.String()
}

func joinUint8(v []uint8) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, ",")
}
