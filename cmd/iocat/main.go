// Package main implements iocat, a cat-style reader for iodriver URIs. It
// prints data arriving on the given URI as a hex+ASCII dump.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/c360/iodriver/driver"
)

const (
	bufferSize = 32768
	columnSize = 8
	lineSize   = columnSize * 3
)

func usage(out *os.File) {
	fmt.Fprint(out, "iocat URI [TIMEOUT]\n"+
		"  displays data coming from an iodriver-compatible URI\n"+
		"\n"+
		"  TIMEOUT defines how long (in milliseconds) the program should\n"+
		"  wait on read before displaying it. Defaults to 100ms\n")
}

// dumper accumulates bytes and renders them as hex columns with an ASCII
// gutter.
type dumper struct {
	line [lineSize]byte
	pos  int
}

func (d *dumper) feed(data []byte) {
	for _, b := range data {
		if d.pos > 0 {
			fmt.Print(" ")
			if d.pos%lineSize == 0 {
				fmt.Print("  ")
				d.flushASCII()
				fmt.Print("\n")
				d.pos = 0
			} else if d.pos%columnSize == 0 {
				fmt.Print("  ")
			}
		}

		if b >= 0x20 && b < 0x7f {
			d.line[d.pos%lineSize] = b
		} else {
			d.line[d.pos%lineSize] = '.'
		}
		fmt.Printf("%02x", b)
		d.pos++
	}
}

func (d *dumper) flushASCII() {
	for i := 0; i < lineSize; i++ {
		if i > 0 && i%columnSize == 0 {
			fmt.Print(" ")
		}
		fmt.Printf("%c", d.line[i])
	}
}

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		if len(os.Args) == 1 {
			usage(os.Stdout)
			os.Exit(0)
		}
		usage(os.Stderr)
		os.Exit(1)
	}

	uri := os.Args[1]
	timeoutMS := 100
	if len(os.Args) == 3 {
		parsed, err := strconv.Atoi(os.Args[2])
		if err != nil {
			usage(os.Stderr)
			os.Exit(1)
		}
		timeoutMS = parsed
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond

	drv, err := driver.New(bufferSize, driver.ExtractorFunc(func([]byte) int { return 0 }),
		driver.WithName("iocat"), driver.WithReadTimeout(timeout))
	if err != nil {
		slog.Error("cannot create the driver", "error", err)
		os.Exit(1)
	}
	if err := drv.OpenURI(uri); err != nil {
		slog.Error("cannot open URI", "uri", uri, "error", err)
		os.Exit(1)
	}
	defer drv.Close()

	buffer := make([]byte, bufferSize)
	var dump dumper
	for !drv.EOF() {
		count, err := drv.ReadRaw(buffer)
		if err != nil {
			slog.Error("read failed", "uri", uri, "error", err)
			os.Exit(2)
		}
		dump.feed(buffer[:count])
	}
}
