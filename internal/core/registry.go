package core

// registry.go holds the named header rule profiles used by the Normalizer.
//
// Two profiles are built in:
//   - broad: matches "container"/"tracking", "carrier" and "eta"/"arrival" anywhere
//   - strict: only "container no"/"container", "shipping line"/"carrier" and "eta"
//
// Extra profiles can be loaded from YAML:
//
//	profiles:
//	  - name: forwarder-x
//	    rules:
//	      - {field: trackingNumber, match: contains, pattern: "cntr"}
//	      - {field: carrier, match: exact, pattern: "line"}
//	      - {field: systemEta, match: contains, pattern: "arrival"}

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	ProfileBroad  = "broad"
	ProfileStrict = "strict"
)

// MatchKind selects how a rule pattern is compared with a header.
type MatchKind string

const (
	MatchContains MatchKind = "contains"
	MatchExact    MatchKind = "exact"
)

// KeyRule maps headers matching Pattern onto a canonical field.
type KeyRule struct {
	Field   CanonicalField `yaml:"field" json:"field"`
	Match   MatchKind      `yaml:"match" json:"match"`
	Pattern string         `yaml:"pattern" json:"pattern"`
}

// Matches reports whether a lower-cased, trimmed header satisfies the rule.
func (r KeyRule) Matches(header string) bool {
	switch r.Match {
	case MatchExact:
		return header == r.Pattern
	default:
		return strings.Contains(header, r.Pattern)
	}
}

// RuleProfile is an ordered rule list. Earlier rules take priority.
type RuleProfile struct {
	Name  string    `yaml:"name" json:"name"`
	Rules []KeyRule `yaml:"rules" json:"rules"`
}

// Validate checks every rule and lower-cases the patterns.
func (p *RuleProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("rule profile: name is required")
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("rule profile %s: no rules", p.Name)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.Field.Valid() {
			return fmt.Errorf("rule profile %s: rule %d: unknown field %q", p.Name, i, r.Field)
		}
		if r.Match == "" {
			r.Match = MatchContains
		}
		if r.Match != MatchContains && r.Match != MatchExact {
			return fmt.Errorf("rule profile %s: rule %d: unknown match %q", p.Name, i, r.Match)
		}
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern == "" {
			return fmt.Errorf("rule profile %s: rule %d: empty pattern", p.Name, i)
		}
	}
	return nil
}

var (
	profiles   = make(map[string]RuleProfile)
	profilesMu sync.RWMutex
)

func init() {
	mustRegisterProfile(RuleProfile{
		Name: ProfileBroad,
		Rules: []KeyRule{
			{FieldTrackingNumber, MatchContains, "container no"},
			{FieldTrackingNumber, MatchExact, "container"},
			{FieldTrackingNumber, MatchContains, "container"},
			{FieldTrackingNumber, MatchContains, "tracking"},
			{FieldCarrier, MatchContains, "shipping line"},
			{FieldCarrier, MatchExact, "carrier"},
			{FieldCarrier, MatchContains, "carrier"},
			{FieldSystemETA, MatchExact, "eta"},
			{FieldSystemETA, MatchContains, "eta"},
			{FieldSystemETA, MatchContains, "arrival"},
		},
	})
	mustRegisterProfile(RuleProfile{
		Name: ProfileStrict,
		Rules: []KeyRule{
			{FieldTrackingNumber, MatchContains, "container no"},
			{FieldTrackingNumber, MatchExact, "container"},
			{FieldCarrier, MatchContains, "shipping line"},
			{FieldCarrier, MatchExact, "carrier"},
			{FieldSystemETA, MatchExact, "eta"},
		},
	})
}

func mustRegisterProfile(p RuleProfile) {
	if err := RegisterProfile(p); err != nil {
		panic(err)
	}
}

// RegisterProfile validates p and adds it to the registry.
// Returns an error if a profile with the same name is already registered.
func RegisterProfile(p RuleProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	profilesMu.Lock()
	defer profilesMu.Unlock()

	if _, exists := profiles[p.Name]; exists {
		return fmt.Errorf("rule profile already registered: %s", p.Name)
	}
	profiles[p.Name] = p
	return nil
}

// GetProfile returns a copy of a registered profile.
func GetProfile(name string) (RuleProfile, bool) {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	p, ok := profiles[name]
	if !ok {
		return RuleProfile{}, false
	}
	p.Rules = append([]KeyRule(nil), p.Rules...)
	return p, true
}

// ProfileNames returns all registered profile names, sorted.
func ProfileNames() []string {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type profileFile struct {
	Profiles []RuleProfile `yaml:"profiles"`
}

// ParseProfiles decodes and validates rule profiles from YAML.
func ParseProfiles(r io.Reader) ([]RuleProfile, error) {
	var pf profileFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse rule profiles: %w", err)
	}

	for i := range pf.Profiles {
		if err := pf.Profiles[i].Validate(); err != nil {
			return nil, err
		}
	}
	return pf.Profiles, nil
}

// LoadProfilesFile registers every profile in a YAML file and returns their names.
func LoadProfilesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	parsed, err := ParseProfiles(f)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(parsed))
	for _, p := range parsed {
		if err := RegisterProfile(p); err != nil {
			return names, err
		}
		names = append(names, p.Name)
	}
	return names, nil
}
