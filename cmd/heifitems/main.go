// Command heifitems lists the boxes that declare HEIF items, or prints
// the item and property report of a file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jdeng/heiftool/heif"
	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/internal/input"
)

var (
	file     = flag.String("f", "", "input file, - for standard input")
	itemID   = flag.Int("i", -1, "only boxes declaring this item ID")
	typeOnly = flag.Bool("t", false, "one line per box: type and item IDs")
	hexDump  = flag.Bool("h", false, "hex dump each box")
	debug    = flag.Bool("d", false, "trace every parsed box")
	strict   = flag.Bool("r", false, "fail on malformed reserved fields and length drift")
	large    = flag.Bool("l", false, "read a box size of 1 as a 64-bit largesize instead of open-ended")
	tree     = flag.Bool("tree", false, "print the property and item report")
)

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	if *file == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -f <file|-> [-i itemID] [-t] [-h] [-d] [-r] [-l] [-tree]\n", os.Args[0])
		os.Exit(1)
	}

	data, err := input.Load(*file)
	if err != nil {
		fatalf("%v", err)
	}
	f, err := heif.Open(data,
		bmff.WithStrict(*strict),
		bmff.WithLargeSize(*large),
		bmff.WithDebug(*debug),
		bmff.WithLogger(log.New(os.Stderr, "", 0)))
	if err != nil {
		fatalf("%s: %v", *file, err)
	}

	if *tree {
		if err := f.WriteTree(os.Stdout); err != nil {
			fatalf("%v", err)
		}
		return
	}

	var boxes []bmff.Box
	if *itemID < 0 {
		boxes = f.AllItemBoxes()
	} else {
		boxes = f.ItemBoxes(uint32(*itemID))
	}
	for _, b := range boxes {
		if *typeOnly {
			fmt.Println(summary(f, b))
			continue
		}
		if err := bmff.DumpBox(os.Stdout, f.Tree(), b, bmff.DumpOptions{HexDump: *hexDump}); err != nil {
			fatalf("%v", err)
		}
	}
}

func summary(f *heif.File, b bmff.Box) string {
	ids := heif.BoxItemIDs(b)
	var sb strings.Builder
	sb.WriteString(b.Type().String())
	switch v := b.(type) {
	case *bmff.ItemInfoEntry:
		fmt.Fprintf(&sb, "  type:%s", v.ItemType)
	case *bmff.ItemTypeReferenceBox:
		if v.Type() != bmff.TypeAuxl {
			break
		}
		props, err := f.ItemProperties(ids[0])
		if err != nil {
			break
		}
		for _, p := range props {
			if aux, ok := p.Value.(heif.AuxType); ok {
				fmt.Fprintf(&sb, "  %s", aux.Type)
			}
		}
	}
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = fmt.Sprint(id)
	}
	fmt.Fprintf(&sb, "  itemID:%s", strings.Join(s, ", "))
	return sb.String()
}
