package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MatchMode selects OR vs AND semantics over requested specialty tags
type MatchMode string

const (
	MatchAny MatchMode = "ANY"
	MatchAll MatchMode = "ALL"
)

// ParseMatchMode parses a match mode case-insensitively. Empty input means ANY.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(MatchAny), "OR":
		return MatchAny, nil
	case string(MatchAll), "AND":
		return MatchAll, nil
	default:
		return "", fmt.Errorf("%w: unknown match mode %q", ErrInvalidInput, s)
	}
}

// SearchFilters describes one specialties search request
type SearchFilters struct {
	Specialties []string  `json:"specialties"`
	MatchMode   MatchMode `json:"matchMode"`
	Limit       int       `json:"limit"`
	Offset      int       `json:"offset"`
}

// HasTags reports whether the filters restrict results by specialty
func (f *SearchFilters) HasTags() bool {
	return len(f.Specialties) > 0
}

// CanonicalSpecialties trims, lower-cases, deduplicates and sorts tags.
// Blank tags are dropped. The result is never nil.
func CanonicalSpecialties(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// TrainerRow is a trainer record as returned by a backend accessor, before
// normalization. Fields holds every column of the row so that legacy photo
// columns can be resolved by name.
type TrainerRow struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Specialties JSONList   `json:"specialties"`
	Fields      JSONObject `json:"fields,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TrainerSearchResult is the normalized trainer shape returned to callers
type TrainerSearchResult struct {
	ID              string        `json:"id"`
	Slug            string        `json:"slug"`
	Name            string        `json:"name"`
	Avatar          *string       `json:"avatar,omitempty"`
	SpecialtiesRaw  []interface{} `json:"specialties"`
	SpecialtiesText []string      `json:"specialtiesText"`
}

// DeriveSpecialtiesText maps raw specialty values to their searchable form:
// non-string values are dropped, strings are trimmed and lower-cased, and
// blanks are skipped. Order is preserved and duplicates are kept.
func DeriveSpecialtiesText(raw []interface{}) []string {
	text := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		text = append(text, s)
	}
	return text
}

// SearchOutcome is what a search resolves to. Error is set only when every
// strategy failed, in which case Data is empty and Count is zero.
type SearchOutcome struct {
	Data   []TrainerSearchResult `json:"data"`
	Count  int                   `json:"count"`
	Error  *string               `json:"error,omitempty"`
	Source string                `json:"source,omitempty"`
	Cached bool                  `json:"cached"`
}

// Failed reports whether the outcome carries an error
func (o *SearchOutcome) Failed() bool {
	return o != nil && o.Error != nil
}

// CacheEntry is a cached, fully filtered search page
type CacheEntry struct {
	Key       string                `json:"key"`
	Data      []TrainerSearchResult `json:"data"`
	Count     int                   `json:"count"`
	Source    string                `json:"source,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// SpecialtyStat counts how many trainers carry a tag
type SpecialtyStat struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// PredicateOp is the set operator applied to the tag array of the aggregate view
type PredicateOp string

const (
	PredicateNone     PredicateOp = ""
	PredicateContains PredicateOp = "contains"
	PredicateOverlaps PredicateOp = "overlaps"
)

// TagPredicate restricts aggregate view rows by their tag array
type TagPredicate struct {
	Op   PredicateOp
	Tags []string
}

// Range is an inclusive row range, [From, To]
type Range struct {
	From int
	To   int
}

// NewRange returns the range covering limit rows starting at offset
func NewRange(offset, limit int) Range {
	return Range{From: offset, To: offset + limit - 1}
}

// Size returns the number of rows covered by the range
func (r Range) Size() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// JSONList is a JSON array column holding opaque values
type JSONList []interface{}

// Scan implements the sql.Scanner interface
func (l *JSONList) Scan(value interface{}) error {
	if value == nil {
		*l = JSONList{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*l = JSONList{}
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	case []byte:
		if len(v) == 0 {
			*l = JSONList{}
			return nil
		}
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into JSONList", value)
	}
}

// Value implements the driver.Valuer interface
func (l JSONList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// JSONObject is a JSON object column
type JSONObject map[string]interface{}

// Scan implements the sql.Scanner interface
func (o *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*o = JSONObject{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*o = JSONObject{}
			return nil
		}
		return json.Unmarshal([]byte(v), o)
	case []byte:
		if len(v) == 0 {
			*o = JSONObject{}
			return nil
		}
		return json.Unmarshal(v, o)
	default:
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}
}

// Value implements the driver.Valuer interface
func (o JSONObject) Value() (driver.Value, error) {
	if len(o) == 0 {
		return "{}", nil
	}
	bytes, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}
