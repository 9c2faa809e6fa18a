// Package location holds the resolved place model shared by the lookup,
// cache, search and field packages, plus the pure label and ordering helpers.
package location

import (
	"regexp"
	"strings"
)

// Kind distinguishes a metropolitan area from a single airport.
type Kind string

const (
	City    Kind = "CITY"
	Airport Kind = "AIRPORT"
)

// MinQueryLength is the shortest keyword worth sending to a provider.
const MinQueryLength = 2

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Record is a resolved city or airport.
type Record struct {
	Code        string `json:"iataCode"`
	CityCode    string `json:"cityCode,omitempty"`
	Name        string `json:"name"`
	CityName    string `json:"cityName,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Kind        Kind   `json:"subType"`

	// Label is derived from the fields above and never persisted.
	Label string `json:"-"`
}

// Namer resolves a code to a human readable name. The code index satisfies it.
type Namer interface {
	Name(code string) (string, bool)
}

// NormalizeCode trims and uppercases a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCode reports whether s is a 3-letter IATA code, ignoring case and
// surrounding whitespace.
func IsCode(s string) bool {
	return codePattern.MatchString(NormalizeCode(s))
}

// New builds a record and computes its label. An empty name falls back to
// the city name, then to the code.
func New(code, cityCode, name, cityName, countryCode string, kind Kind) Record {
	code = NormalizeCode(code)
	if name == "" {
		name = cityName
	}
	if name == "" {
		name = code
	}
	if cityCode == "" && kind == City {
		cityCode = code
	}
	r := Record{
		Code:        code,
		CityCode:    NormalizeCode(cityCode),
		Name:        name,
		CityName:    cityName,
		CountryCode: countryCode,
		Kind:        kind,
	}
	return r.WithLabel()
}

// WithLabel returns a copy of r with Label recomputed from its fields.
func (r Record) WithLabel() Record {
	r.Label = BuildLabel(r.Name, r.CityName, r.CountryCode, r.Code)
	return r
}

// Key identifies a record within a result list.
func (r Record) Key() string {
	return r.Code + "-" + string(r.Kind)
}

// BuildLabel renders "Name, City, CC (CODE)". The city is skipped when the
// name already contains it.
func BuildLabel(name, cityName, countryCode, code string) string {
	parts := []string{name}
	if cityName != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(cityName)) {
		parts = append(parts, cityName)
	}
	if countryCode != "" {
		parts = append(parts, countryCode)
	}
	return strings.Join(parts, ", ") + " (" + code + ")"
}

// FormatCode renders a bare code for display: "LHR - Heathrow" when the namer
// knows a name for it, the code alone otherwise.
func FormatCode(n Namer, code string) string {
	upper := NormalizeCode(code)
	if upper == "" {
		return ""
	}
	if n != nil {
		if name, ok := n.Name(upper); ok {
			return upper + " - " + name
		}
	}
	return upper
}

// Fallback synthesizes a placeholder airport record for a bare code.
func Fallback(n Namer, code string) Record {
	upper := NormalizeCode(code)
	return Record{
		Code:     upper,
		CityCode: upper,
		Name:     upper,
		Kind:     Airport,
		Label:    FormatCode(n, upper),
	}
}

// IsFallback reports whether r is missing or only a placeholder for code.
func IsFallback(n Namer, r *Record, code string) bool {
	if r == nil {
		return true
	}
	code = NormalizeCode(code)
	if NormalizeCode(r.Code) != code {
		return true
	}
	if r.CityName != "" || r.CountryCode != "" {
		return false
	}
	name := NormalizeCode(r.Name)
	if name != "" && name != code {
		return false
	}
	return r.Label == FormatCode(n, code) || name == code
}

// IsPlaceholder reports whether r carries no data beyond its code.
func IsPlaceholder(r Record) bool {
	if r.CityName != "" || r.CountryCode != "" {
		return false
	}
	name := NormalizeCode(r.Name)
	return name == "" || name == NormalizeCode(r.Code)
}

// DisplayName is the label without the trailing code, used where the code is
// rendered separately.
func DisplayName(n Namer, r Record) string {
	base := strings.TrimSpace(r.Name)
	if base == "" {
		base = r.Code
	}
	parts := []string{base}
	if r.CityName != "" && !strings.Contains(strings.ToLower(base), strings.ToLower(r.CityName)) {
		parts = append(parts, r.CityName)
	}
	if r.CountryCode != "" {
		parts = append(parts, r.CountryCode)
	}
	joined := strings.Join(parts, ", ")
	if !strings.EqualFold(joined, r.Code) {
		return joined
	}
	formatted := FormatCode(n, r.Code)
	if _, name, ok := strings.Cut(formatted, " - "); ok {
		return name
	}
	return formatted
}

// GroupedName is the option text inside a city group.
func GroupedName(r Record) string {
	base := strings.TrimSpace(r.Name)
	if base == "" {
		base = r.Code
	}
	if r.Kind == City {
		return "All " + base + " Airports"
	}
	return base
}
