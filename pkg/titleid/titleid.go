package titleid

import (
	"fmt"
	"strings"
)

const (
	// SuffixDigits is the width of the zero-padded numeric suffix.
	SuffixDigits = 5
	// SuffixSpace is the number of candidates behind every prefix.
	SuffixSpace = 100000
	// Length is the full width of a title ID.
	Length = PrefixLength + SuffixDigits
)

// New joins a prefix and numeric suffix into a title ID.
func New(prefix string, suffix int) string {
	return fmt.Sprintf("%s%05d", prefix, suffix)
}

// Target is a validated scan request for a single prefix.
type Target struct {
	Category Category
	Prefix   string
}

// ParseTarget accepts either a bare prefix ("SCUS") or a full title ID
// ("SCUS97399"), of which only the prefix is kept. Input is upper-cased.
func ParseTarget(input string, categories ...Category) (Target, error) {
	s := strings.ToUpper(strings.TrimSpace(input))

	switch len(s) {
	case PrefixLength:
	case Length:
		for _, r := range s[PrefixLength:] {
			if r < '0' || r > '9' {
				return Target{}, &ValidationError{Input: input, Reason: "suffix must be 5 digits", Err: ErrInvalidTitleID}
			}
		}
		s = s[:PrefixLength]
	default:
		return Target{}, &ValidationError{
			Input:  input,
			Reason: fmt.Sprintf("expected %d-character prefix or %d-character title id", PrefixLength, Length),
			Err:    ErrInvalidTitleID,
		}
	}

	c, err := Classify(s, categories...)
	if err != nil {
		return Target{}, err
	}
	return Target{Category: c, Prefix: s}, nil
}
