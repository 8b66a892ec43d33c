// Package fingerprint derives the normalized equality key of a report request.
//
// Two requests that describe the same logical query (same kind, mode and
// subjects after normalization) produce Fingerprints that compare Equal, and
// are therefore served from the same cached report. The fingerprint is a
// tuple of normalized fields, not a digest; Key renders it canonically for
// store-level uniqueness constraints.
package fingerprint

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Kind discriminates families of report requests.
type Kind string

const (
	// KindPersonal is a single-subject report.
	KindPersonal Kind = "personal"
	// KindCompatibility is a two-subject report.
	KindCompatibility Kind = "compatibility"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPersonal, KindCompatibility:
		return true
	}
	return false
}

// Length caps, in runes, applied after whitespace cleaning.
const (
	MaxNameRunes  = 80
	MaxPlaceRunes = 120
	MaxModeRunes  = 32
)

// DateLayout is the canonical rendering of a normalized date.
const DateLayout = "2006-01-02"

// Normalization failures.
var (
	ErrUnknownKind    = errors.New("unknown report kind")
	ErrMissingDate    = errors.New("birth date is required")
	ErrBadDate        = errors.New("birth date must be dd.mm.yyyy")
	ErrBadTime        = errors.New("birth time must be HH:MM")
	ErrMissingPartner = errors.New("partner data is required for this kind")
)

// Text is an optional normalized string. The zero value is the explicit
// "absent" marker, so "not supplied" and "supplied but blank" compare equal.
type Text struct {
	value   string
	present bool
}

// Absent is the explicit absent marker.
var Absent = Text{}

// Some wraps an already normalized, non-empty value.
func Some(v string) Text { return Text{value: v, present: v != ""} }

// Present reports whether the value was supplied.
func (t Text) Present() bool { return t.present }

// Value returns the normalized value, or "" when absent.
func (t Text) Value() string { return t.value }

// Ptr returns nil when absent, for nullable storage columns.
func (t Text) Ptr() *string {
	if !t.present {
		return nil
	}
	v := t.value
	return &v
}

func (t Text) String() string {
	if !t.present {
		return "-"
	}
	return t.value
}

// Subject is one normalized person.
type Subject struct {
	Date  time.Time // midnight UTC
	Name  Text
	Place Text
	Time  Text // zero-padded HH:MM
}

// Equal compares field by field.
func (s Subject) Equal(o Subject) bool {
	return s.Date.Equal(o.Date) && s.Name == o.Name && s.Place == o.Place && s.Time == o.Time
}

// RawSubject is the unnormalized client input for one person.
type RawSubject struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Place string `json:"place"`
	Time  string `json:"time"`
}

// RawInput is the unnormalized client input of a request.
type RawInput struct {
	Mode    string      `json:"mode"`
	Subject RawSubject  `json:"subject"`
	Partner *RawSubject `json:"partner,omitempty"`
}

// Fingerprint is the normalized equality key of a request.
type Fingerprint struct {
	Kind    Kind
	Mode    Text
	Subject Subject
	// Partner is set only for KindCompatibility.
	Partner *Subject
}

// Equal compares two fingerprints field by field in a fixed order.
func (f Fingerprint) Equal(o Fingerprint) bool {
	if f.Kind != o.Kind || f.Mode != o.Mode || !f.Subject.Equal(o.Subject) {
		return false
	}
	if (f.Partner == nil) != (o.Partner == nil) {
		return false
	}
	return f.Partner == nil || f.Partner.Equal(*o.Partner)
}

// Key renders the fingerprint as a canonical string in fixed field order.
// Equal fingerprints always render identical keys.
func (f Fingerprint) Key() string {
	parts := []string{string(f.Kind), f.Mode.String()}
	parts = appendSubject(parts, f.Subject)
	if f.Partner != nil {
		parts = appendSubject(parts, *f.Partner)
	}
	for i, p := range parts {
		parts[i] = strconv.Quote(p)
	}
	return strings.Join(parts, "|")
}

func appendSubject(parts []string, s Subject) []string {
	return append(parts, s.Date.Format(DateLayout), s.Name.String(), s.Place.String(), s.Time.String())
}

// Normalize validates raw against kind and returns its fingerprint.
func Normalize(kind Kind, raw RawInput) (Fingerprint, error) {
	if !kind.Valid() {
		return Fingerprint{}, ErrUnknownKind
	}
	subj, err := NormalizeSubject(raw.Subject)
	if err != nil {
		return Fingerprint{}, err
	}
	fp := Fingerprint{
		Kind:    kind,
		Mode:    CleanText(raw.Mode, MaxModeRunes),
		Subject: subj,
	}
	if kind == KindCompatibility {
		if raw.Partner == nil {
			return Fingerprint{}, ErrMissingPartner
		}
		partner, err := NormalizeSubject(*raw.Partner)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Partner = &partner
	}
	return fp, nil
}

// NormalizeSubject normalizes one person's fields.
func NormalizeSubject(raw RawSubject) (Subject, error) {
	d, err := ParseDate(raw.Date)
	if err != nil {
		return Subject{}, err
	}
	t, err := ParseTime(raw.Time)
	if err != nil {
		return Subject{}, err
	}
	return Subject{
		Date:  d,
		Name:  CleanText(raw.Name, MaxNameRunes),
		Place: CleanText(raw.Place, MaxPlaceRunes),
		Time:  t,
	}, nil
}

var (
	dateRE       = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	timeRE       = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	whitespaceRE = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// ParseDate parses d.m.yyyy / dd.mm.yyyy into midnight UTC. Calendar-invalid
// dates (31.02.2000) and years outside 1900..2100 are rejected.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingDate
	}
	m := dateRE.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, ErrBadDate
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, ErrBadDate
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, ErrBadDate
	}
	return d, nil
}

// ParseTime validates H:MM / HH:MM and renders it zero-padded. Blank input is
// Absent.
func ParseTime(s string) (Text, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent, nil
	}
	m := timeRE.FindStringSubmatch(s)
	if m == nil {
		return Absent, ErrBadTime
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return Absent, ErrBadTime
	}
	return Some(twoDigits(h) + ":" + twoDigits(mm)), nil
}

// CleanText applies NFC, collapses whitespace runs, trims and caps at max
// runes. Empty results are Absent.
func CleanText(s string, max int) Text {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = strings.TrimSpace(string([]rune(s)[:max]))
	}
	return Some(s)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
