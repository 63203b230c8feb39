// Package main implements ioforward, a two-way forwarder between two
// iodriver URIs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/c360/iodriver/driver"
	"github.com/c360/iodriver/forward"
)

const bufferSize = 32768

func usage(out *os.File) {
	fmt.Fprint(out, "ioforward URI1 TIMEOUT1 URI2 TIMEOUT2\n"+
		"  forwards data (two-way) between URI1 and URI2, which must both\n"+
		"  be valid iodriver URIs\n"+
		"\n"+
		"  TIMEOUT1 and TIMEOUT2 define how long (in milliseconds) the forwarder should\n"+
		"  wait on read before forwarding the data, to avoid unnecessary fragmentation\n")
}

func openRaw(name, uri string) (*driver.Driver, error) {
	drv, err := driver.New(bufferSize, driver.ExtractorFunc(func([]byte) int { return 0 }),
		driver.WithName(name))
	if err != nil {
		return nil, err
	}
	if err := drv.OpenURI(uri); err != nil {
		return nil, err
	}
	return drv, nil
}

func main() {
	if len(os.Args) != 5 {
		if len(os.Args) == 1 {
			usage(os.Stdout)
			os.Exit(0)
		}
		usage(os.Stderr)
		os.Exit(1)
	}

	timeout1MS, err1 := strconv.Atoi(os.Args[2])
	timeout2MS, err2 := strconv.Atoi(os.Args[4])
	if err1 != nil || err2 != nil {
		usage(os.Stderr)
		os.Exit(1)
	}

	driver1, err := openRaw("forward-a", os.Args[1])
	if err != nil {
		slog.Error("cannot open URI", "uri", os.Args[1], "error", err)
		os.Exit(1)
	}
	defer driver1.Close()

	driver2, err := openRaw("forward-b", os.Args[3])
	if err != nil {
		slog.Error("cannot open URI", "uri", os.Args[3], "error", err)
		os.Exit(1)
	}
	defer driver2.Close()

	err = forward.Forward(driver1, driver2, forward.Options{
		Mode:       forward.Raw,
		BufferSize: bufferSize,
		TimeoutA:   time.Duration(timeout1MS) * time.Millisecond,
		TimeoutB:   time.Duration(timeout2MS) * time.Millisecond,
	})
	if err != nil {
		slog.Error("forwarding failed", "error", err)
		os.Exit(2)
	}
}
