package driver

import (
	"fmt"
	"strings"
)

// PrintableCom formats a byte sequence for logs, keeping printable
// characters and escaping the rest.
func PrintableCom(data []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range data {
		switch {
		case c == 0:
			b.WriteString(`\x00`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// BinaryCom formats a byte sequence as plain lowercase hex.
func BinaryCom(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}
