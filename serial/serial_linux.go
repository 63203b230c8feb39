//go:build linux

package serial

import (
	"log/slog"
	"syscall"
	"unsafe"

	"github.com/c360/iodriver/errors"
)

// ioctl request codes and serial_struct flags not exposed by the syscall
// package.
const (
	tiocgserial = 0x541E
	tiocsserial = 0x541F

	asyncSpdMask = 0x1030
	asyncSpdCust = 0x0030

	cbaud = 0x100f
)

// serialStruct matches the kernel's struct serial_struct, used for
// custom-divisor baud rates.
type serialStruct struct {
	Type          int32
	Line          int32
	Port          uint32
	IRQ           int32
	Flags         int32
	XmitFIFOSize  int32
	CustomDivisor int32
	BaudBase      int32
	CloseDelay    uint16
	IOType        byte
	ReservedChar  byte
	Hub6          int32
	ClosingWait   uint16
	ClosingWait2  uint16
	IOMemBase     uintptr
	IOMemRegShift uint16
	PortHigh      uint32
	IOMapBase     uint64
}

func ioctl(fd int, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func tcgetattr(fd int, tio *syscall.Termios) error {
	return ioctl(fd, syscall.TCGETS, unsafe.Pointer(tio))
}

func tcsetattr(fd int, tio *syscall.Termios) error {
	return ioctl(fd, syscall.TCSETS, unsafe.Pointer(tio))
}

// Open opens the serial device in raw mode at the given baud rate and
// returns the file descriptor. The descriptor is non-blocking and must be
// closed by the caller (or by the stream adopting it).
func Open(device string, baudRate int) (int, error) {
	fd, err := syscall.Open(device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_SYNC|syscall.O_NONBLOCK, 0)
	if err != nil {
		return -1, errors.NewUnix("open", "cannot open device "+device, err)
	}

	var tio syscall.Termios
	tio.Cflag = syscall.CS8 | syscall.CREAD
	tio.Iflag = syscall.IGNBRK

	if err := tcsetattr(fd, &tio); err != nil {
		syscall.Close(fd)
		return -1, errors.NewUnix("tcsetattr", "cannot set serial options on "+device, err)
	}
	if err := SetBaudrate(fd, baudRate); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Apply sets parity, byte size and stop bits on an open descriptor.
func Apply(fd int, config Configuration) error {
	var tio syscall.Termios
	if err := tcgetattr(fd, &tio); err != nil {
		return errors.NewUnix("tcgetattr", "failed to get terminal info", err)
	}

	switch config.Parity {
	case ParityNone:
		tio.Cflag &^= syscall.PARENB
	case ParityEven:
		tio.Cflag |= syscall.PARENB
		tio.Cflag &^= syscall.PARODD
	case ParityOdd:
		tio.Cflag |= syscall.PARENB
		tio.Cflag |= syscall.PARODD
	}

	tio.Cflag &^= syscall.CSIZE
	switch config.ByteSize {
	case Bits5:
		tio.Cflag |= syscall.CS5
	case Bits6:
		tio.Cflag |= syscall.CS6
	case Bits7:
		tio.Cflag |= syscall.CS7
	case Bits8:
		tio.Cflag |= syscall.CS8
	}

	if config.StopBits == StopBitsOne {
		tio.Cflag &^= syscall.CSTOPB
	} else {
		tio.Cflag |= syscall.CSTOPB
	}

	if err := tcsetattr(fd, &tio); err != nil {
		return errors.NewUnix("tcsetattr", "failed to set terminal info", err)
	}
	return nil
}

// canonicalRates maps baud rates to their termios speed constants.
var canonicalRates = map[int]uint32{
	Baud1200:    syscall.B1200,
	Baud2400:    syscall.B2400,
	Baud4800:    syscall.B4800,
	Baud9600:    syscall.B9600,
	Baud19200:   syscall.B19200,
	Baud38400:   syscall.B38400,
	Baud57600:   syscall.B57600,
	Baud115200:  syscall.B115200,
	Baud230400:  syscall.B230400,
	Baud460800:  syscall.B460800,
	Baud576000:  syscall.B576000,
	Baud921600:  syscall.B921600,
	Baud1000000: syscall.B1000000,
}

// SetBaudrate configures the line speed. Rates outside the canonical set are
// approximated with a custom divisor relative to the UART's base rate.
func SetBaudrate(fd, rate int) error {
	tcRate, canonical := canonicalRates[rate]

	var ss serialStruct
	if err := ioctl(fd, tiocgserial, unsafe.Pointer(&ss)); err == nil {
		if canonical {
			ss.Flags &^= asyncSpdMask
		} else {
			slog.Info("using custom baud rate", "rate", rate)
			tcRate = syscall.B38400
			ss.Flags = (ss.Flags &^ asyncSpdMask) | asyncSpdCust
			ss.CustomDivisor = (ss.BaudBase + int32(rate)/2) / int32(rate)
			if ss.CustomDivisor == 0 {
				return errors.Invalidf("serial.SetBaudrate",
					"cannot set custom serial rate to %d as the calculated divisor is zero for baud_base of %d",
					rate, ss.BaudBase)
			}
			closest := ss.BaudBase / ss.CustomDivisor
			if closest < int32(rate)*98/100 || closest > int32(rate)*102/100 {
				slog.Warn("custom baud rate cannot be matched closely",
					"requested", rate, "closest", closest)
			}
		}
		if err := ioctl(fd, tiocsserial, unsafe.Pointer(&ss)); err != nil {
			return errors.NewUnix("ioctl", "failed to apply the custom divisor", err)
		}
	} else if !canonical {
		return errors.Invalidf("serial.SetBaudrate",
			"non-standard baud rate %d requires custom-divisor support", rate)
	}

	var tio syscall.Termios
	if err := tcgetattr(fd, &tio); err != nil {
		return errors.NewUnix("tcgetattr", "failed to get terminal info", err)
	}
	tio.Cflag &^= cbaud
	tio.Cflag |= tcRate
	tio.Ispeed = tcRate
	tio.Ospeed = tcRate
	if err := tcsetattr(fd, &tio); err != nil {
		return errors.NewUnix("tcsetattr", "failed to set speed", err)
	}
	return nil
}
