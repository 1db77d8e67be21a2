package bazaar

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pkg.world.dev/bazaar/shopobject"
	"pkg.world.dev/bazaar/storage"
	"pkg.world.dev/bazaar/types"
)

// MaxNameLength is the longest shopkeeper name kept as-is. Longer names are
// truncated with a warning.
const MaxNameLength = 128

var _ shopobject.Keeper = (*Shopkeeper)(nil)

// Shopkeeper is one registered shopkeeper record. The record exists independently
// of its live actor: records persist across chunk loads while the shop object
// spawns and despawns underneath them. All fields are owned by the registry's
// control thread.
type Shopkeeper struct {
	id   types.ShopkeeperID
	uid  uuid.UUID
	name string
	pos  types.Position

	object shopobject.ShopObject

	// group is the ticking group this record was assigned at registration.
	group int

	state      types.SpawnState
	lastResult types.SpawnResult

	// valid flips to false when the record is deleted. A stale pointer held by the
	// host keeps answering reads but is rejected by registry operations.
	valid bool

	log zerolog.Logger
}

func (s *Shopkeeper) ID() types.ShopkeeperID   { return s.id }
func (s *Shopkeeper) UID() uuid.UUID           { return s.uid }
func (s *Shopkeeper) Name() string             { return s.name }
func (s *Shopkeeper) Position() types.Position { return s.pos }

// Chunk returns the chunk of the record's position. Meaningless for virtual
// shopkeepers.
func (s *Shopkeeper) Chunk() types.ChunkPos { return s.pos.Chunk() }

// IsVirtual reports whether this shopkeeper exists outside any world.
func (s *Shopkeeper) IsVirtual() bool { return s.object.Type().IsVirtual() }

// ObjectType returns the id of the object type backing this record.
func (s *Shopkeeper) ObjectType() string { return s.object.Type().ID() }

// State returns the record's lifecycle state.
func (s *Shopkeeper) State() types.SpawnState { return s.state }

// LastSpawnResult returns the outcome of the most recent spawn affecting
// transition. It is not reset by plain despawns.
func (s *Shopkeeper) LastSpawnResult() types.SpawnResult { return s.lastResult }

// IsSpawned reports whether the record's shop object currently has a live actor.
func (s *Shopkeeper) IsSpawned() bool { return s.object.IsSpawned() }

// TickGroup returns the ticking group this record is checked in.
func (s *Shopkeeper) TickGroup() int { return s.group }

// Valid reports whether the record is still registered.
func (s *Shopkeeper) Valid() bool { return s.valid }

// setName applies the length policy and forwards the name to the live actor if
// there is one. Reports whether the name changed.
func (s *Shopkeeper) setName(name string) bool {
	name = strings.TrimSpace(name)
	if truncated := truncateName(name); truncated != name {
		s.log.Warn().
			Int("length", len(name)).
			Msg("shopkeeper name exceeds the maximum length, truncating")
		name = truncated
	}
	if name == s.name {
		return false
	}
	s.name = name
	if namer, ok := s.object.(shopobject.LiveNamer); ok {
		namer.SetLiveName(name)
	}
	return true
}

// toRecord snapshots the record into its durable form.
func (s *Shopkeeper) toRecord() (storage.Record, error) {
	obj, err := s.object.MarshalState()
	if err != nil {
		return storage.Record{}, err
	}
	record := storage.Record{
		ID:         s.id,
		UID:        s.uid,
		Name:       s.name,
		ObjectType: s.object.Type().ID(),
		Object:     obj,
	}
	if !s.pos.IsVirtual() {
		record.World = s.pos.World
		record.X = s.pos.X
		record.Y = s.pos.Y
		record.Z = s.pos.Z
	}
	return record, nil
}

// truncateName cuts the name down to MaxNameLength bytes without splitting a rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	cut := MaxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
