package contracts

import "fmt"

// Universe is the ordered, immutable list of instruments processed by a run.
// Order is significant: it drives processing order and ranking tie-breaks.
// ⭐ SSOT: 유니버스는 값으로 명시적으로 전달 (전역 상태 없음)
type Universe struct {
	name string
	ids  []InstrumentID
	pos  map[InstrumentID]int
}

// NewUniverse validates and copies ids into a Universe
func NewUniverse(name string, ids []InstrumentID) (Universe, error) {
	if len(ids) == 0 {
		return Universe{}, fmt.Errorf("universe %q is empty", name)
	}

	own := make([]InstrumentID, len(ids))
	pos := make(map[InstrumentID]int, len(ids))
	for i, id := range ids {
		if id == "" {
			return Universe{}, fmt.Errorf("universe %q: empty instrument at position %d", name, i)
		}
		if prev, dup := pos[id]; dup {
			return Universe{}, fmt.Errorf("universe %q: duplicate instrument %s at positions %d and %d", name, id, prev, i)
		}
		own[i] = id
		pos[id] = i
	}

	return Universe{name: name, ids: own, pos: pos}, nil
}

// Name returns the universe label
func (u Universe) Name() string {
	return u.name
}

// Instruments returns a copy of the ordered ids
func (u Universe) Instruments() []InstrumentID {
	out := make([]InstrumentID, len(u.ids))
	copy(out, u.ids)
	return out
}

// Contains checks if an instrument is in the universe
func (u Universe) Contains(id InstrumentID) bool {
	_, ok := u.pos[id]
	return ok
}

// Position returns the 0-based order of id, or -1 if absent
func (u Universe) Position(id InstrumentID) int {
	if p, ok := u.pos[id]; ok {
		return p
	}
	return -1
}

// Count returns the number of instruments
func (u Universe) Count() int {
	return len(u.ids)
}
