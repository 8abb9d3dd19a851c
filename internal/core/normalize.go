package core

import (
	"fmt"
	"strings"
)

// Normalizer maps arbitrary column headers onto canonical fields.
type Normalizer struct {
	profile RuleProfile
}

// NewNormalizer returns a Normalizer for a registered profile name.
func NewNormalizer(mode string) (*Normalizer, error) {
	if mode == "" {
		mode = ProfileBroad
	}
	p, ok := GetProfile(mode)
	if !ok {
		return nil, fmt.Errorf("unknown match mode %q (have %s)", mode, strings.Join(ProfileNames(), ", "))
	}
	return &Normalizer{profile: p}, nil
}

// NewNormalizerWithProfile returns a Normalizer for an unregistered profile.
func NewNormalizerWithProfile(p RuleProfile) (*Normalizer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{profile: p}, nil
}

// Mode returns the name of the profile in use.
func (n *Normalizer) Mode() string {
	return n.profile.Name
}

// Field returns the canonical field a header maps to, if any.
func (n *Normalizer) Field(header string) (CanonicalField, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, r := range n.profile.Rules {
		if r.Matches(h) {
			return r.Field, true
		}
	}
	return "", false
}

// Normalize maps one row. Columns are visited in order; the first column to
// claim a canonical field wins and later claimants are reported as collisions.
// Unmapped columns are kept verbatim in Extra.
func (n *Normalizer) Normalize(row RawRow) NormalizedRow {
	out := NormalizedRow{Values: make(map[CanonicalField]string, 3)}
	claimedBy := make(map[CanonicalField]string, 3)

	for _, f := range row {
		field, ok := n.Field(f.Key)
		if !ok {
			out.Extra = append(out.Extra, f)
			continue
		}
		if kept, taken := claimedBy[field]; taken {
			out.Collisions = append(out.Collisions, Collision{Field: field, Kept: kept, Dropped: f.Key})
			continue
		}
		claimedBy[field] = f.Key
		out.Values[field] = coerce(field, f.Value)
	}
	return out
}

// coerce converts a raw cell to the canonical field's text form.
// Numeric ETAs in the serial range are spreadsheet dates; other numbers keep
// their text form. Text is stripped of formula wrappers such as ="MSCU1234567".
func coerce(field CanonicalField, c Cell) string {
	if field == FieldSystemETA && c.IsNum && IsDateSerial(c.Num) {
		return SerialToDate(c.Num)
	}
	if c.IsNum {
		return c.String()
	}
	return CleanCell(c.Text)
}
