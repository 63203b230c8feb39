package natstap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjects(t *testing.T) {
	l := New(nil, "taps.gps", nil)
	assert.Equal(t, "taps.gps.read", l.ReadSubject())
	assert.Equal(t, "taps.gps.write", l.WriteSubject())
}

func TestNilConnectionIsSafe(t *testing.T) {
	l := New(nil, "taps.gps", nil)
	l.ReadData([]byte{1, 2, 3})
	l.WriteData([]byte{4, 5})
	assert.NoError(t, l.Close())
}
