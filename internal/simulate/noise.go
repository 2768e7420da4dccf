package simulate

import (
	"hash/fnv"
	"math/rand/v2"
)

// NoiseSource is a deterministic pseudo-random stream of floats in [0,1).
//
// Per-sensor independence comes from mixing the user-supplied seed with an
// FNV-1a hash of the sensor's opaque key before seeding the generator, so
// two sensors configured with the same nominal seed do not produce
// identical traces.
type NoiseSource struct {
	seed int64
	rng  *rand.Rand
}

// keyHash returns the 32-bit FNV-1a hash of a sensor key.
func keyHash(sensorKey string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(sensorKey))
	return h.Sum32()
}

// NewNoiseSource creates a noise source for the given seed and sensor key.
func NewNoiseSource(seed int64, sensorKey string) *NoiseSource {
	mixed := uint64(uint32(seed)) ^ (uint64(keyHash(sensorKey)) << 32)
	return &NoiseSource{
		seed: seed,
		rng:  rand.New(rand.NewPCG(mixed, uint64(keyHash(sensorKey)))),
	}
}

// Seed returns the nominal seed this source was created with.
func (n *NoiseSource) Seed() int64 { return n.seed }

// Next returns the next deterministic sample in [0,1).
func (n *NoiseSource) Next() float64 {
	return n.rng.Float64()
}

// IntN returns a deterministic integer in [0,n). Used for reorder swaps so
// the whole trace stays reproducible under a fixed seed.
func (n *NoiseSource) IntN(count int) int {
	return n.rng.IntN(count)
}
