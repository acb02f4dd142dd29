// Copyright © 2026 The HYMET Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package taxonomy

import "strings"

// Rank is one of the ordered canonical ranks, or NoRank for intermediate
// taxonomy nodes. Ordering is strict root -> leaf, so comparing Rank values
// directly tells you which one sits closer to the root.
type Rank uint8

const (
	NoRank Rank = iota
	Superkingdom
	Phylum
	Class
	Order
	Family
	Genus
	Species
)

var rankNames = [...]string{
	NoRank:       "no_rank",
	Superkingdom: "superkingdom",
	Phylum:       "phylum",
	Class:        "class",
	Order:        "order",
	Family:       "family",
	Genus:        "genus",
	Species:      "species",
}

// Ranks lists the canonical ranks in root -> leaf order, matching the
// @Ranks stanza of a CAMI profile.
var Ranks = []Rank{Superkingdom, Phylum, Class, Order, Family, Genus, Species}

func (r Rank) String() string {
	if int(r) < len(rankNames) {
		return rankNames[r]
	}
	return "no_rank"
}

// rankAliases normalises the handful of alternate rank spellings seen in
// taxonomy dumps and CAMI-style tooling (domain/kingdom/sk/k for
// superkingdom, single-letter CAMI rank codes) to the canonical rank name,
// mirroring RANK_ALIAS in the original hymet2cami.py conversion script.
var rankAliases = map[string]Rank{
	"no rank":      NoRank,
	"no_rank":      NoRank,
	"domain":       Superkingdom,
	"kingdom":      Superkingdom,
	"superkingdom": Superkingdom,
	"sk":           Superkingdom,
	"k":            Superkingdom,
	"d":            Superkingdom,
	"phylum":       Phylum,
	"p":            Phylum,
	"class":        Class,
	"c":            Class,
	"order":        Order,
	"o":            Order,
	"family":       Family,
	"f":            Family,
	"genus":        Genus,
	"g":            Genus,
	"species":      Species,
	"s":            Species,
}

// ParseRank normalises a rank string from a taxonomy dump or CAMI file into
// a canonical Rank, falling back to NoRank for anything unrecognised.
func ParseRank(s string) Rank {
	if r, ok := rankAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return NoRank
}
