package titleid

import (
	"sort"
	"strings"
)

// PrefixLength is the fixed width of every category prefix.
const PrefixLength = 4

const uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// grammar is a per-position character class list plus an optional
// cross-position rule. The rule runs only after every position passed its own
// membership check.
type grammar struct {
	positions [PrefixLength]string
	exception func(prefix string) bool
}

var grammars = map[Category]grammar{
	// NP + region + release type
	DigitalDisc3: {
		positions: [PrefixLength]string{"N", "P", "AEHJKUIX", uppercase},
	},
	// B + rights + region + type
	PhysicalDisc3: {
		positions: [PrefixLength]string{"B", "CL", "ACEHJKPU", "MS"},
		// M is only issued for region J.
		exception: func(p string) bool { return p[3] == 'M' && p[2] != 'J' },
	},
	// S + rights + region + type
	PhysicalLegacy: {
		positions: [PrefixLength]string{"S", "CL", "ACEKPUZ", "ADJMNS"},
	},
	PhysicalDisc3Special: {
		positions: [PrefixLength]string{"M", "R", "T", "C"},
	},
	Disc4: {
		positions: [PrefixLength]string{"C", "U", "S", "A"},
	},
}

func (g grammar) accepts(candidate string) bool {
	if len(candidate) != PrefixLength {
		return false
	}
	for i := 0; i < PrefixLength; i++ {
		if strings.IndexByte(g.positions[i], candidate[i]) < 0 {
			return false
		}
	}
	if g.exception != nil && g.exception(candidate) {
		return false
	}
	return true
}

func (g grammar) enumerate() []string {
	out := make([]string, 0)
	buf := make([]byte, PrefixLength)

	var walk func(pos int)
	walk = func(pos int) {
		if pos == PrefixLength {
			p := string(buf)
			if g.exception == nil || !g.exception(p) {
				out = append(out, p)
			}
			return
		}
		for i := 0; i < len(g.positions[pos]); i++ {
			buf[pos] = g.positions[pos][i]
			walk(pos + 1)
		}
	}
	walk(0)

	sort.Strings(out)
	return out
}

// IsValid reports whether candidate is a prefix of category c.
func IsValid(candidate string, c Category) bool {
	g, ok := grammars[c]
	if !ok {
		return false
	}
	return g.accepts(candidate)
}

// EnumerateAll returns every valid prefix of category c in sorted order.
func EnumerateAll(c Category) []string {
	g, ok := grammars[c]
	if !ok {
		return nil
	}
	return g.enumerate()
}

// Classify finds the category whose grammar accepts prefix. When categories
// is empty every category is considered. Grammars are disjoint, so at most one
// category matches.
func Classify(prefix string, categories ...Category) (Category, error) {
	if len(categories) == 0 {
		categories = Categories()
	}
	if len(prefix) != PrefixLength {
		return 0, &ValidationError{Input: prefix, Reason: "prefix must be 4 characters", Err: ErrInvalidPrefix}
	}
	for _, c := range categories {
		if IsValid(prefix, c) {
			return c, nil
		}
	}
	return 0, &ValidationError{Input: prefix, Reason: "no enabled category accepts it", Err: ErrInvalidPrefix}
}
