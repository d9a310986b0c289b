package patcher

import (
	"math/rand"
)

const (
	// RegionWidth is the number of bytes overwritten at each marker: the
	// marker itself plus the 18 byte suffix of the injected variable name.
	RegionWidth = 22

	// Alphabet is the set of replacement bytes. The region is a JavaScript
	// identifier inside the binary, so only letters are safe.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// RandomSource picks replacement letters. *rand.Rand satisfies it.
type RandomSource interface {
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// globalSource uses the package level math/rand functions, which are safe
// for concurrent use and seeded at startup.
type globalSource struct{}

func (globalSource) Intn(n int) int {
	return rand.Intn(n)
}

// DefaultRandomSource is a non-cryptographic source shared across patch runs.
var DefaultRandomSource RandomSource = globalSource{}

// Randomize overwrites RegionWidth bytes of buf starting at offset with
// letters drawn from Alphabet. buf is left untouched if the region does not fit.
func Randomize(buf []byte, offset int, src RandomSource) error {
	if offset < 0 || offset+RegionWidth > len(buf) {
		return &CorruptRegionError{Offset: offset, Width: RegionWidth, Size: len(buf)}
	}
	if src == nil {
		src = DefaultRandomSource
	}
	for i := offset; i < offset+RegionWidth; i++ {
		buf[i] = Alphabet[src.Intn(len(Alphabet))]
	}
	return nil
}
