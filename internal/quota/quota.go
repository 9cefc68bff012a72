package quota

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Category is a leave category code. Codes are stable identifiers used as
// balance keys; display labels may change.
type Category string

const (
	CL Category = "CL"
	CO Category = "CO"
	ML Category = "ML"
	VL Category = "VL"
	EL Category = "EL"
)

// Categories lists every known category in display order.
var Categories = []Category{CL, CO, ML, VL, EL}

var labels = map[Category]string{
	CL: "Casual Leave (CL)",
	CO: "Compensatory Off (CO)",
	ML: "Medical Leave (ML)",
	VL: "Vacation Leave (VL)",
	EL: "Earned Leave (EL)",
}

var ErrUnknownCategory = errors.New("unknown leave category")

var codePattern = regexp.MustCompile(`\(([^)]+)\)`)

// Label returns the human label for c, e.g. "Casual Leave (CL)".
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// Labels returns the display labels of all categories.
func Labels() []string {
	out := make([]string, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, labels[c])
	}
	return out
}

// CategoryKeyOf extracts the category code from a leave label. The code in
// parentheses wins; otherwise the first whitespace-delimited token is used.
// When the extracted key is not a known category the raw key is returned
// together with ErrUnknownCategory.
func CategoryKeyOf(label string) (Category, error) {
	var key string
	if m := codePattern.FindStringSubmatch(label); m != nil && m[1] != "" {
		key = m[1]
	} else if fields := strings.Fields(label); len(fields) > 0 {
		key = fields[0]
	}

	c := Category(key)
	if !c.Valid() {
		return c, fmt.Errorf("%w: %q", ErrUnknownCategory, label)
	}
	return c, nil
}

// Set maps each category to its remaining balance in days.
type Set map[Category]int

// Default returns the balances granted to a newly registered user.
func Default() Set {
	return Set{CL: 12, CO: 5, ML: 10, VL: 15, EL: 15}
}

// FromMap builds a complete set from loosely keyed input (config files,
// request bodies). Missing categories fall back to base.
func FromMap(in map[string]int, base Set) (Set, error) {
	out := base.Clone()
	for k, v := range in {
		c := Category(strings.ToUpper(strings.TrimSpace(k)))
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, k)
		}
		out[c] = v
	}
	return out, out.Validate()
}

// Clone returns a complete copy of s; absent categories are filled with 0.
func (s Set) Clone() Set {
	out := make(Set, len(Categories))
	for _, c := range Categories {
		out[c] = s[c]
	}
	return out
}

func (s Set) Balance(c Category) int {
	return s[c]
}

// Validate reports a missing category or a negative balance.
func (s Set) Validate() error {
	for _, c := range Categories {
		v, ok := s[c]
		if !ok {
			return fmt.Errorf("quota for %s is missing", c)
		}
		if v < 0 {
			return fmt.Errorf("quota for %s cannot be negative", c)
		}
	}
	for c := range s {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
		}
	}
	return nil
}

func (s Set) HasSufficientBalance(c Category, days int) bool {
	return s[c] >= days
}

// Deduct returns a new set with days taken from c, clamped at zero.
func (s Set) Deduct(c Category, days int) Set {
	out := s.Clone()
	out[c] = max(0, out[c]-days)
	return out
}

// Adjust returns a new set with delta added to c, clamped at zero.
func (s Set) Adjust(c Category, delta int) Set {
	out := s.Clone()
	out[c] = max(0, out[c]+delta)
	return out
}
