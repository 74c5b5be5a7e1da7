package scanjob

import (
	"fmt"
	"slices"
	"strings"
)

// Capability is one scan function a catalog source job can run.
// The string value is the name the CDGC API expects.
type Capability string

// The closed set of capabilities, in the order the CLI lists them.
const (
	MetadataExtraction    Capability = "Metadata Extraction"
	DataProfiling         Capability = "Data Profiling"
	DataClassification    Capability = "Data Classification"
	DataQuality           Capability = "Data Quality"
	RelationshipDiscovery Capability = "Relationship Discovery"
	GlossaryAssociation   Capability = "Glossary Association"
	LineageDiscovery      Capability = "Lineage Discovery"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{
	MetadataExtraction,
	DataProfiling,
	DataClassification,
	DataQuality,
	RelationshipDiscovery,
	GlossaryAssociation,
	LineageDiscovery,
}

// FlagName is the kebab-case flag form, e.g. "data-profiling".
func (c Capability) FlagName() string {
	return strings.ToLower(strings.ReplaceAll(string(c), " ", "-"))
}

// Abbrev is the two-letter short form, e.g. "dp".
func (c Capability) Abbrev() string {
	words := strings.Fields(strings.ToLower(string(c)))

	var b strings.Builder
	for _, w := range words {
		b.WriteByte(w[0])
	}

	return b.String()
}

// ParseCapability accepts the display name, the flag name, or the
// abbreviation, case-insensitively.
func ParseCapability(s string) (Capability, error) {
	want := strings.ToLower(strings.TrimSpace(s))

	for _, c := range AllCapabilities {
		if want == strings.ToLower(string(c)) || want == c.FlagName() || want == c.Abbrev() {
			return c, nil
		}
	}

	return "", fmt.Errorf("unknown capability %q", s)
}

// CapabilitySet is an insertion-ordered set of capabilities. Duplicates
// collapse; order is kept for logging only.
type CapabilitySet struct {
	items []Capability
}

// NewCapabilitySet builds a set from caps, dropping duplicates.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s.Add(c)
	}

	return s
}

// Add inserts c if not already present.
func (s *CapabilitySet) Add(c Capability) {
	if !slices.Contains(s.items, c) {
		s.items = append(s.items, c)
	}
}

// Len returns the number of distinct capabilities.
func (s CapabilitySet) Len() int {
	return len(s.items)
}

// Contains reports whether c is in the set.
func (s CapabilitySet) Contains(c Capability) bool {
	return slices.Contains(s.items, c)
}

// Items returns a copy of the capabilities in insertion order.
func (s CapabilitySet) Items() []Capability {
	return slices.Clone(s.items)
}

// Names returns the API names in insertion order.
func (s CapabilitySet) Names() []string {
	names := make([]string, len(s.items))
	for i, c := range s.items {
		names[i] = string(c)
	}

	return names
}

func (s CapabilitySet) String() string {
	return strings.Join(s.Names(), ", ")
}
