// Package selection turns sparse "include this section" flags into the
// canonical, order-sensitive section list a report is generated from.
package selection

import (
	"github.com/tbourn/go-report-backend/internal/fingerprint"
)

// Section identifies one optional (or mandatory) block of a report.
type Section string

// Personal report sections.
const (
	Character Section = "character"
	Career    Section = "career"
	Love      Section = "love"
	Health    Section = "health"
	Finance   Section = "finance"
	Forecast  Section = "forecast"
)

// Summary is mandatory in every catalog.
const Summary Section = "summary"

// Compatibility report sections.
const (
	Emotional     Section = "emotional"
	Communication Section = "communication"
	Values        Section = "values"
	Intimacy      Section = "intimacy"
	Conflicts     Section = "conflicts"
)

// Catalog is the closed, ordered set of sections offered for one report kind.
// Mandatory is always present and always last in a reconciled list.
type Catalog struct {
	Optional  []Section
	Mandatory Section
}

// Personal is the single-subject catalog.
var Personal = Catalog{
	Optional:  []Section{Character, Career, Love, Health, Finance, Forecast},
	Mandatory: Summary,
}

// Compatibility is the two-subject catalog.
var Compatibility = Catalog{
	Optional:  []Section{Emotional, Communication, Values, Intimacy, Conflicts},
	Mandatory: Summary,
}

// ForKind returns the catalog for kind.
func ForKind(kind fingerprint.Kind) (Catalog, bool) {
	switch kind {
	case fingerprint.KindPersonal:
		return Personal, true
	case fingerprint.KindCompatibility:
		return Compatibility, true
	}
	return Catalog{}, false
}

// Has reports whether s belongs to the catalog.
func (c Catalog) Has(s Section) bool {
	if s == c.Mandatory {
		return true
	}
	for _, o := range c.Optional {
		if o == s {
			return true
		}
	}
	return false
}

// Reconcile walks the catalog in declared order, keeps every optional section
// whose flag is explicitly true, and appends the mandatory section last.
// Unknown keys and the mandatory section's own flag are ignored.
func Reconcile(c Catalog, flags map[string]bool) []Section {
	out := make([]Section, 0, len(c.Optional)+1)
	for _, s := range c.Optional {
		if flags[string(s)] {
			out = append(out, s)
		}
	}
	return append(out, c.Mandatory)
}

// Equal compares two lists as ordered sequences.
func Equal(a, b []Section) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Strings renders a list for storage.
func Strings(list []Section) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

// FromStrings is the inverse of Strings.
func FromStrings(raw []string) []Section {
	out := make([]Section, len(raw))
	for i, s := range raw {
		out[i] = Section(s)
	}
	return out
}
