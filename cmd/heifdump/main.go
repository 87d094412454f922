// Command heifdump prints the box structure of an ISOBMFF file such as
// a HEIC image or an MP4 movie.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/internal/input"
)

var (
	file     = flag.String("f", "", "input file, - for standard input")
	typeOnly = flag.Bool("t", false, "print box types only")
	hexDump  = flag.Bool("h", false, "hex dump each box")
	debug    = flag.Bool("d", false, "trace every parsed box")
	strict   = flag.Bool("r", false, "fail on malformed reserved fields and length drift")
	large    = flag.Bool("l", false, "read a box size of 1 as a 64-bit largesize instead of open-ended")
)

func main() {
	flag.Parse()
	if *file == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -f <file|-> [-t] [-h] [-d] [-r] [-l]\n", os.Args[0])
		os.Exit(1)
	}

	data, err := input.Load(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	tree, err := bmff.Parse(data,
		bmff.WithStrict(*strict),
		bmff.WithLargeSize(*large),
		bmff.WithDebug(*debug),
		bmff.WithLogger(log.New(os.Stderr, "", 0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", *file, err)
		os.Exit(1)
	}

	opts := bmff.DumpOptions{TypeOnly: *typeOnly, HexDump: *hexDump}
	if err := bmff.Dump(os.Stdout, tree, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
