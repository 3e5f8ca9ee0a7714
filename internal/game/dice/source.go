package dice

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
)

// cryptoSource implements Source using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand. It is not
// reproducible and is only used where no seed is wanted.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// NewSeed returns a fresh batch seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("dice: reading random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1), nil
}

// seededSource is a reproducible PCG stream. Not safe for concurrent use.
type seededSource struct {
	r *mrand.Rand
}

// baseStream selects the PCG stream used by NewSeededSource.
const baseStream = 0x9e3779b97f4a7c15

// NewSeededSource returns a reproducible Source for seed.
//
// Postcondition: two sources built from the same seed yield identical sequences.
func NewSeededSource(seed int64) Source {
	return &seededSource{r: mrand.New(mrand.NewPCG(uint64(seed), baseStream))}
}

// SubStream returns the Source for run index of a batch seeded with seed.
// Each index selects a distinct PCG stream, so runs never share draws and
// the batch is reproducible whatever order the runs execute in.
//
// Precondition: index >= 0.
func SubStream(seed int64, index int) Source {
	return &seededSource{r: mrand.New(mrand.NewPCG(uint64(seed), mix64(uint64(index)+1)))}
}

// mix64 is the splitmix64 finalizer; it spreads consecutive indices across
// the stream space.
func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Intn returns a reproducible int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
func (s *seededSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	return s.r.IntN(n)
}
