// Package models defines the core domain entities: the archer roster, lifetime counters,
// per-match deltas and records, and the running live-session aggregate.
package models

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Archer identifies one of the fixed TowerFall archer colours. The numeric value is the
// colour's position in the save file's per-archer lists.
type Archer int

const (
	Green Archer = iota
	Blue
	Pink
	Orange
	White
	Yellow
	Cyan
	Purple
	Red
)

// NumArchers is the size of the closed roster.
const NumArchers = 9

// Archers lists the roster in save-file order.
var Archers = [NumArchers]Archer{Green, Blue, Pink, Orange, White, Yellow, Cyan, Purple, Red}

var archerNames = [NumArchers]string{
	"green", "blue", "pink", "orange", "white", "yellow", "cyan", "purple", "red",
}

// Valid reports whether a is a roster member.
func (a Archer) Valid() bool {
	return a >= 0 && a < NumArchers
}

// String returns the lower-case colour name.
func (a Archer) String() string {
	if !a.Valid() {
		return fmt.Sprintf("archer(%d)", int(a))
	}
	return archerNames[a]
}

// Title returns the colour with a leading capital, as the save file spells it.
func (a Archer) Title() string {
	s := a.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseArcher resolves a colour name, case-insensitively.
func ParseArcher(name string) (Archer, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range archerNames {
		if s == n {
			return Archer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown archer colour %q", name)
}

// MarshalText encodes a as its colour name, so archers can key JSON objects.
func (a Archer) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid archer %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses a colour name.
func (a *Archer) UnmarshalText(text []byte) error {
	parsed, err := ParseArcher(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PerArcher holds exactly one value per roster member, so lookups never miss.
// Its JSON form is an object keyed by colour name.
type PerArcher[T any] [NumArchers]T

// MarshalJSON writes every roster member, including zero values.
func (p PerArcher[T]) MarshalJSON() ([]byte, error) {
	m := make(map[string]T, NumArchers)
	for _, a := range Archers {
		m[a.String()] = p[a]
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts partial objects: colours that are absent decode to zero.
func (p *PerArcher[T]) UnmarshalJSON(data []byte) error {
	var m map[string]T
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out PerArcher[T]
	for name, v := range m {
		a, err := ParseArcher(name)
		if err != nil {
			return err
		}
		out[a] = v
	}
	*p = out
	return nil
}

// ArcherSet is a set of roster members.
type ArcherSet uint16

// FullRoster contains every archer.
const FullRoster ArcherSet = 1<<NumArchers - 1

// SetOf builds a set from the given archers.
func SetOf(archers ...Archer) ArcherSet {
	var s ArcherSet
	for _, a := range archers {
		s = s.Add(a)
	}
	return s
}

// Add returns s with a included. Invalid archers are ignored.
func (s ArcherSet) Add(a Archer) ArcherSet {
	if !a.Valid() {
		return s
	}
	return s | 1<<uint(a)
}

// Has reports whether a is in s.
func (s ArcherSet) Has(a Archer) bool {
	return a.Valid() && s&(1<<uint(a)) != 0
}

// Len returns the number of members.
func (s ArcherSet) Len() int {
	return bits.OnesCount16(uint16(s & FullRoster))
}

// Empty reports whether s has no members.
func (s ArcherSet) Empty() bool {
	return s&FullRoster == 0
}

// Members returns the archers in roster order.
func (s ArcherSet) Members() []Archer {
	out := make([]Archer, 0, s.Len())
	for _, a := range Archers {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// String formats s as {red,blue}.
func (s ArcherSet) String() string {
	names := make([]string, 0, s.Len())
	for _, a := range s.Members() {
		names = append(names, a.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// MarshalJSON encodes s as a list of colour names in roster order.
func (s ArcherSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Members())
}

// UnmarshalJSON decodes a list of colour names.
func (s *ArcherSet) UnmarshalJSON(data []byte) error {
	var members []Archer
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = SetOf(members...)
	return nil
}
