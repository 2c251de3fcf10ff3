// Package slots implements the cookie slot machine: a weighted three-reel draw resolved
// against a symbol table with one wild symbol.
package slots

import (
	"errors"
	"fmt"
)

// Symbol is one reel face.
type Symbol struct {
	Name       string
	Weight     int
	Multiplier int64
}

// Table is an immutable weighted symbol table with a designated wild.
type Table struct {
	symbols []Symbol
	index   map[string]int
	wild    int
	total   int
}

// NewTable validates and builds a table. Weights must be positive, multipliers
// non-negative, names unique, and wild must name one of the symbols.
func NewTable(wild string, symbols ...Symbol) (Table, error) {
	if len(symbols) == 0 {
		return Table{}, errors.New("slots: empty symbol table")
	}
	t := Table{
		symbols: make([]Symbol, len(symbols)),
		index:   make(map[string]int, len(symbols)),
		wild:    -1,
	}
	copy(t.symbols, symbols)
	for i, s := range t.symbols {
		if s.Name == "" {
			return Table{}, fmt.Errorf("slots: symbol %d has no name", i)
		}
		if s.Weight <= 0 {
			return Table{}, fmt.Errorf("slots: symbol %q weight must be positive", s.Name)
		}
		if s.Multiplier < 0 {
			return Table{}, fmt.Errorf("slots: symbol %q multiplier must not be negative", s.Name)
		}
		if _, dup := t.index[s.Name]; dup {
			return Table{}, fmt.Errorf("slots: duplicate symbol %q", s.Name)
		}
		t.index[s.Name] = i
		t.total += s.Weight
		if s.Name == wild {
			t.wild = i
		}
	}
	if t.wild < 0 {
		return Table{}, fmt.Errorf("slots: wild symbol %q not in table", wild)
	}
	return t, nil
}

// DefaultTable is the glorpinia reel set. WhySoSerious is the wild.
func DefaultTable() Table {
	t, err := NewTable("WhySoSerious",
		Symbol{"glorp", 5, 1000},
		Symbol{"WhySoSerious", 15, 500},
		Symbol{"PartyParrot", 30, 250},
		Symbol{"AYAYAjam", 45, 150},
		Symbol{"nanaAYAYA", 60, 100},
		Symbol{"AYAYA", 80, 75},
		Symbol{"EZ", 100, 50},
		Symbol{"AlienDance", 130, 30},
		Symbol{"gachiGASM", 160, 20},
		Symbol{"Gayge", 200, 10},
		Symbol{"peepoSad", 300, 5},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Symbols returns a copy of the table rows.
func (t Table) Symbols() []Symbol {
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// Wild returns the wild symbol.
func (t Table) Wild() Symbol { return t.symbols[t.wild] }

// Lookup finds a symbol by name.
func (t Table) Lookup(name string) (Symbol, bool) {
	i, ok := t.index[name]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// TotalWeight is the sum of all weights.
func (t Table) TotalWeight() int { return t.total }

// pick maps n in [0, TotalWeight) onto a symbol.
func (t Table) pick(n int) Symbol {
	for _, s := range t.symbols {
		if n < s.Weight {
			return s
		}
		n -= s.Weight
	}
	return t.symbols[len(t.symbols)-1]
}

// Resolve returns the payout multiplier for a draw, in priority order:
// three wilds pay the wild multiplier; three identical symbols pay that symbol;
// one or two wilds complete the remaining symbols only when those are identical;
// anything else pays 0.
func (t Table) Resolve(reels [3]Symbol) int64 {
	wild := t.Wild().Name
	if reels[0].Name == wild && reels[1].Name == wild && reels[2].Name == wild {
		return t.Wild().Multiplier
	}
	if reels[0].Name == reels[1].Name && reels[1].Name == reels[2].Name {
		return t.multiplierOf(reels[0])
	}
	var match *Symbol
	for i := range reels {
		if reels[i].Name == wild {
			continue
		}
		if match == nil {
			match = &reels[i]
			continue
		}
		if match.Name != reels[i].Name {
			return 0
		}
	}
	if match == nil {
		return 0
	}
	return t.multiplierOf(*match)
}

// multiplierOf trusts the table over the symbol passed in.
func (t Table) multiplierOf(s Symbol) int64 {
	if known, ok := t.Lookup(s.Name); ok {
		return known.Multiplier
	}
	return 0
}
