package distribution

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RandomSource is the caller-owned entropy every draw consumes.
// Uint64 feeds the distuv samplers; Float64 is used for coins in [0, 1).
type RandomSource interface {
	rand.Source
	Float64() float64
}

// crypto random: non-reproducible runs
type cryptoRNG struct{}

func (cryptoRNG) Uint64() uint64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		// back to math/rand/v2
		return rand.Uint64()
	}
	return binary.BigEndian.Uint64(buf[:])
}

func (c cryptoRNG) Float64() float64 {
	// 53 bits => [0, 1)
	return float64(c.Uint64()>>11) / (1 << 53)
}

// NewCryptoRNG returns a source backed by crypto/rand. Runs using it cannot be replayed.
func NewCryptoRNG() RandomSource { return cryptoRNG{} }

// Replicable RNG (e.g. Monte Carlo, replay)
type seededRNG struct{ r *rand.Rand }

// NewSeededRNG returns a PCG-backed source; equal seeds give equal streams.
func NewSeededRNG(seed uint64) RandomSource {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) Uint64() uint64   { return s.r.Uint64() }
func (s *seededRNG) Float64() float64 { return s.r.Float64() }
