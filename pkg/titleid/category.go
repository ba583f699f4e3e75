// Package titleid models the identifier space probed by the scanner: media
// categories, their prefix grammars, and the title IDs built from them.
package titleid

import (
	"fmt"
	"strings"
)

// Category is a media family. It owns a prefix grammar and the remote path
// and payload extension used to look titles up.
type Category int

const (
	DigitalDisc3 Category = iota
	PhysicalDisc3
	PhysicalLegacy
	Disc4
	// PhysicalDisc3Special is the single literal MRTC prefix, looked up
	// alongside the other disc3 titles.
	PhysicalDisc3Special
)

var categoryNames = map[Category]string{
	DigitalDisc3:   "digital-disc3",
	PhysicalDisc3:  "physical-disc3",
	PhysicalLegacy: "physical-legacy",
	Disc4:          "disc4",

	PhysicalDisc3Special: "physical-disc3-special",
}

// Categories returns every supported category in scan order.
func Categories() []Category {
	return []Category{PhysicalLegacy, PhysicalDisc3, PhysicalDisc3Special, DigitalDisc3, Disc4}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Path is the remote directory the category's metadata lives under.
func (c Category) Path() string {
	if c == Disc4 {
		return "tmdb2"
	}
	return "tmdb"
}

// Extension is the payload file extension, which also names the content kind.
func (c Category) Extension() string {
	if c == Disc4 {
		return "json"
	}
	return "xml"
}

// ParseCategory accepts the names produced by String, case-insensitively.
func ParseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range categoryNames {
		if n == name {
			return c, nil
		}
	}
	return 0, &ValidationError{Input: name, Err: ErrUnknownCategory}
}

// ParseCategories parses a list of names, skipping duplicates. An empty list
// selects every category.
func ParseCategories(names []string) ([]Category, error) {
	if len(names) == 0 {
		return Categories(), nil
	}

	seen := make(map[Category]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
