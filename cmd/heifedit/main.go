// Command heifedit removes boxes from an ISOBMFF file or embeds an ICC
// profile in a HEIF image, and writes the rebuilt file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jdeng/heiftool/heif/bmff"
	"github.com/jdeng/heiftool/internal/input"
)

var (
	file   = flag.String("f", "", "input file, - for standard input")
	output = flag.String("o", "-", "output file, - for standard output")
	remove = flag.String("remove", "", "comma separated box types to remove, e.g. free,iref")
	icc    = flag.String("icc", "", "ICC profile to attach to every item")
	strict = flag.Bool("r", false, "fail on malformed reserved fields and length drift")
	large  = flag.Bool("l", false, "read a box size of 1 as a 64-bit largesize instead of open-ended")
)

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	if *file == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -f <file|-> [-o out] [-remove t1,t2] [-icc profile.icc] [-r] [-l]\n", os.Args[0])
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", 0)
	data, err := input.Load(*file)
	if err != nil {
		fatalf("%v", err)
	}
	tree, err := bmff.Parse(data, bmff.WithStrict(*strict), bmff.WithLargeSize(*large), bmff.WithLogger(logger))
	if err != nil {
		fatalf("%s: %v", *file, err)
	}

	if *remove != "" {
		var types []bmff.BoxType
		for _, s := range strings.Split(*remove, ",") {
			t, err := bmff.ParseBoxType(s)
			if err != nil {
				fatalf("%q: %v", s, err)
			}
			types = append(types, t)
		}
		tree = tree.RemoveByType(types...)
	}
	if *icc != "" {
		profile, err := input.Load(*icc)
		if err != nil {
			fatalf("%v", err)
		}
		if tree, err = tree.AppendICCProfile(profile); err != nil {
			fatalf("%v", err)
		}
	}

	out, err := tree.Build(bmff.WithLogger(logger))
	if err != nil {
		fatalf("%v", err)
	}
	if *output == "-" {
		_, err = os.Stdout.Write(out)
	} else {
		err = os.WriteFile(*output, out, 0o644)
	}
	if err != nil {
		fatalf("%v", err)
	}
}
