package location

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// GroupKey is the place a record belongs to: its city code when known,
// its own code otherwise.
func GroupKey(r Record) string {
	if r.CityCode != "" {
		return NormalizeCode(r.CityCode)
	}
	return NormalizeCode(r.Code)
}

// GroupLabel is the heading shown above a group of records.
func GroupLabel(r Record) string {
	key := GroupKey(r)
	cityName := r.CityName
	if cityName == "" {
		cityName = r.Name
	}

	var parts []string
	if name := strings.TrimSpace(cityName); name != "" && strings.ToUpper(name) != key {
		parts = append(parts, name)
	}
	if r.CountryCode != "" {
		parts = append(parts, r.CountryCode)
	}
	if len(parts) == 0 {
		return key
	}
	return strings.Join(parts, ", ")
}

// GroupLabels maps each group key to its heading, preferring the CITY record
// of a group when one is present.
func GroupLabels(records []Record) map[string]string {
	best := make(map[string]Record, len(records))
	for _, r := range records {
		key := GroupKey(r)
		existing, ok := best[key]
		if !ok || (existing.Kind != City && r.Kind == City) {
			best[key] = r
		}
	}
	labels := make(map[string]string, len(best))
	for key, r := range best {
		labels[key] = GroupLabel(r)
	}
	return labels
}

// SortPage orders one fetched page: by group heading, CITY before AIRPORT
// inside a group, then by label. The input is not modified.
func SortPage(records []Record) []Record {
	sorted := slices.Clone(records)
	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		if c := col.CompareString(GroupLabel(a), GroupLabel(b)); c != 0 {
			return c
		}
		if c := strings.Compare(GroupKey(a), GroupKey(b)); c != 0 {
			return c
		}
		if a.Kind != b.Kind {
			if a.Kind == City {
				return -1
			}
			return 1
		}
		return col.CompareString(a.Label, b.Label)
	})
	return sorted
}

// Merge unions incoming into current keyed by (Code, Kind). Records already
// present keep their position and take the incoming value; new records are
// appended in arrival order.
func Merge(current, incoming []Record) []Record {
	if len(incoming) == 0 {
		return current
	}
	merged := slices.Clone(current)
	pos := make(map[string]int, len(merged))
	for i, r := range merged {
		pos[r.Key()] = i
	}
	for _, r := range incoming {
		if i, ok := pos[r.Key()]; ok {
			merged[i] = r
			continue
		}
		pos[r.Key()] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

// VisibleOptions keeps the previous result set on screen while a new lookup
// has not produced anything yet.
func VisibleOptions(input string, options, last []Record) []Record {
	if len(options) > 0 {
		return options
	}
	if strings.TrimSpace(input) != "" && len(last) > 0 {
		return last
	}
	return options
}

// SearchSeed picks the keyword used when a dropdown opens on a field that
// already shows a selection. Searching for the full label would match
// nothing, so the city or place name is used instead. minLen <= 0 means
// MinQueryLength.
func SearchSeed(selected *Record, input string, minLen int) string {
	trimmed := strings.TrimSpace(input)
	if selected == nil || trimmed != selected.Label {
		return trimmed
	}
	minLen = queryLength(minLen)
	code := NormalizeCode(selected.Code)
	for _, candidate := range []string{selected.CityName, selected.Name} {
		candidate = strings.TrimSpace(candidate)
		if len([]rune(candidate)) >= minLen && strings.ToUpper(candidate) != code {
			return candidate
		}
	}
	return code
}

// NoOptionsText is the dropdown message when there is nothing to list.
func NoOptionsText(input, errMsg string, minLen int) string {
	if errMsg != "" {
		return errMsg
	}
	minLen = queryLength(minLen)
	if len([]rune(strings.TrimSpace(input))) < minLen {
		return "Type at least " + strconv.Itoa(minLen) + " characters"
	}
	return "No matches found"
}

// queryLength substitutes MinQueryLength for an unset minimum.
func queryLength(n int) int {
	if n <= 0 {
		return MinQueryLength
	}
	return n
}
