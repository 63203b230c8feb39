package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/uri"
)

func TestParseDescription(t *testing.T) {
	tests := []struct {
		input    string
		expected Configuration
	}{
		{"8N1", Configuration{Bits8, ParityNone, StopBitsOne}},
		{"8n1", Configuration{Bits8, ParityNone, StopBitsOne}},
		{"7E2", Configuration{Bits7, ParityEven, StopBitsTwo}},
		{"5o1", Configuration{Bits5, ParityOdd, StopBitsOne}},
		{"6e2", Configuration{Bits6, ParityEven, StopBitsTwo}},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			config, err := ParseDescription(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.expected, config)
		})
	}
}

func TestParseDescriptionErrors(t *testing.T) {
	tests := []string{"", "9N1", "8X1", "8N3", "8N", "08N1"}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDescription(input)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err))
		})
	}
}

func TestDefaultConfiguration(t *testing.T) {
	config := DefaultConfiguration()
	assert.Equal(t, Bits7, config.ByteSize)
	assert.Equal(t, ParityNone, config.Parity)
	assert.Equal(t, StopBitsOne, config.StopBits)
}

func TestFromURI(t *testing.T) {
	u, err := uri.Parse("serial:///dev/ttyUSB0:115200?byte_size=8&parity=even&stop_bits=2")
	require.NoError(t, err)

	config, err := FromURI(u)
	require.NoError(t, err)
	assert.Equal(t, Configuration{Bits8, ParityEven, StopBitsTwo}, config)
}

func TestFromURI_Defaults(t *testing.T) {
	u, err := uri.Parse("serial:///dev/ttyUSB0:115200")
	require.NoError(t, err)

	config, err := FromURI(u)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfiguration(), config)
}

func TestFromURI_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"byte size too small", "serial://dev?byte_size=4"},
		{"byte size too large", "serial://dev?byte_size=9"},
		{"byte size not a number", "serial://dev?byte_size=x"},
		{"bad parity", "serial://dev?parity=maybe"},
		{"bad stop bits", "serial://dev?stop_bits=3"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			u, err := uri.Parse(test.input)
			require.NoError(t, err)
			_, err = FromURI(u)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err))
		})
	}
}
