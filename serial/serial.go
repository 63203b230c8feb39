// Package serial holds the serial line configuration model and, on Linux,
// the termios plumbing used to apply it: raw-mode initialization, parity,
// byte size, stop bits and baud rate selection including custom divisors for
// non-canonical rates.
package serial

import (
	"regexp"
	"strconv"

	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/uri"
)

// ByteSize is the number of data bits per character.
type ByteSize int

// Supported data bit counts.
const (
	Bits5 ByteSize = 5
	Bits6 ByteSize = 6
	Bits7 ByteSize = 7
	Bits8 ByteSize = 8
)

// Parity is the parity checking mode.
type Parity int

// Supported parity modes.
const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// String returns the string representation of Parity
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "unknown"
	}
}

// StopBits is the number of stop bits per character.
type StopBits int

// Supported stop bit counts.
const (
	StopBitsOne StopBits = 1
	StopBitsTwo StopBits = 2
)

// Configuration holds a serial port configuration.
type Configuration struct {
	ByteSize ByteSize
	Parity   Parity
	StopBits StopBits
}

// DefaultConfiguration returns the historical driver default of 7 data bits,
// no parity, one stop bit.
func DefaultConfiguration() Configuration {
	return Configuration{ByteSize: Bits7, Parity: ParityNone, StopBits: StopBitsOne}
}

// Canonical baud rates supported on every platform. Other rates require
// custom-divisor support and are Linux-only.
const (
	Baud1200    = 1200
	Baud2400    = 2400
	Baud4800    = 4800
	Baud9600    = 9600
	Baud19200   = 19200
	Baud38400   = 38400
	Baud57600   = 57600
	Baud115200  = 115200
	Baud230400  = 230400
	Baud460800  = 460800
	Baud576000  = 576000
	Baud921600  = 921600
	Baud1000000 = 1000000
)

var descriptionRe = regexp.MustCompile(`^([5-8])([neoNEO])([12])$`)

// ParseDescription parses a compact "8N1"-style configuration description.
func ParseDescription(description string) (Configuration, error) {
	m := descriptionRe.FindStringSubmatch(description)
	if m == nil {
		return Configuration{}, errors.Invalidf("serial.ParseDescription",
			"invalid serial configuration %q, expected e.g. 8N1", description)
	}

	config := DefaultConfiguration()
	size, _ := strconv.Atoi(m[1])
	config.ByteSize = ByteSize(size)
	switch m[2] {
	case "n", "N":
		config.Parity = ParityNone
	case "e", "E":
		config.Parity = ParityEven
	case "o", "O":
		config.Parity = ParityOdd
	}
	stop, _ := strconv.Atoi(m[3])
	config.StopBits = StopBits(stop)
	return config, nil
}

// FromURI extracts a serial configuration from the byte_size, parity and
// stop_bits URI options. Missing options keep the defaults.
func FromURI(u uri.URI) (Configuration, error) {
	config := DefaultConfiguration()

	if byteSize := u.Option("byte_size", ""); byteSize != "" {
		size, err := strconv.Atoi(byteSize)
		if err != nil || size < 5 || size > 8 {
			return Configuration{}, errors.Invalidf("serial.FromURI",
				"invalid byte_size parameter %s in URI, expected a value between 5 and 8 (inclusive)", byteSize)
		}
		config.ByteSize = ByteSize(size)
	}

	switch parity := u.Option("parity", ""); parity {
	case "":
	case "none":
		config.Parity = ParityNone
	case "even":
		config.Parity = ParityEven
	case "odd":
		config.Parity = ParityOdd
	default:
		return Configuration{}, errors.Invalidf("serial.FromURI",
			"invalid parity parameter %s in URI, expected one of none, even or odd", parity)
	}

	switch stop := u.Option("stop_bits", ""); stop {
	case "":
	case "1":
		config.StopBits = StopBitsOne
	case "2":
		config.StopBits = StopBitsTwo
	default:
		return Configuration{}, errors.Invalidf("serial.FromURI",
			"invalid stop_bits parameter %s in URI, expected 1 or 2", stop)
	}

	return config, nil
}
