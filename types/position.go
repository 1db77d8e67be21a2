package types

import "fmt"

// ChunkShift converts block coordinates to chunk coordinates. Chunks are 16x16 blocks.
const ChunkShift = 4

// Position is a block location inside a named world. The zero Position, with an empty
// world name, is the virtual sentinel: a shopkeeper at the virtual position has no
// presence in any world.
type Position struct {
	World string `json:"world,omitempty"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

func NewPosition(world string, x, y, z int) Position {
	return Position{World: world, X: x, Y: y, Z: z}
}

// VirtualPosition returns the sentinel position of shopkeepers without a world presence.
func VirtualPosition() Position {
	return Position{}
}

func (p Position) IsVirtual() bool {
	return p.World == ""
}

// Chunk derives the chunk that contains this position. Two positions inside the same
// 16x16 block column always derive the same chunk.
func (p Position) Chunk() ChunkPos {
	return ChunkPos{World: p.World, X: p.X >> ChunkShift, Z: p.Z >> ChunkShift}
}

func (p Position) String() string {
	if p.IsVirtual() {
		return "virtual"
	}
	return fmt.Sprintf("%s(%d,%d,%d)", p.World, p.X, p.Y, p.Z)
}

// ChunkPos identifies one chunk of a named world.
type ChunkPos struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Z     int    `json:"z"`
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("%s[%d,%d]", c.World, c.X, c.Z)
}
