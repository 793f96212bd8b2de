package sim

import (
	"hash/fnv"
	"math/rand"
)

const attributeSeedLabel = "attributes"

// Attributes are the cosmetic properties derived for a joining player. They
// never travel over the wire: every peer derives identical values from the
// player identity alone.
type Attributes struct {
	Position Vec
	Color    Color
}

// SeededAttributes derives a spawn position and color for the given player
// id. The derivation is a pure function of the id, so peers that never
// exchanged attribute data still agree on them.
func SeededAttributes(id string) Attributes {
	rng := rand.New(rand.NewSource(attributeSeed(id)))
	x := randIntInclusive(rng, 0, WorldWidth)
	y := randIntInclusive(rng, 0, WorldHeight)
	r := randIntInclusive(rng, 50, 255)
	g := randIntInclusive(rng, 50, 255)
	b := randIntInclusive(rng, 50, 255)
	return Attributes{
		Position: wrap(Vec{X: Quantize(float64(x)), Y: Quantize(float64(y))}),
		Color:    Color{R: uint8(r), G: uint8(g), B: uint8(b)},
	}
}

func attributeSeed(id string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(id))
	hasher.Write([]byte{0})
	hasher.Write([]byte(attributeSeedLabel))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// randIntInclusive draws a uniform integer in [low, high].
func randIntInclusive(rng *rand.Rand, low, high int) int {
	return low + rng.Intn(high-low+1)
}
