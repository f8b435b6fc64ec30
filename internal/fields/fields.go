package fields

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trainer-leaderboard/internal/domain"
)

//go:embed default_fields.yaml
var defaultTable []byte

// InterestRule selects the start of the long daily-rate window
type InterestRule string

const (
	InterestStartDate   InterestRule = "start_date"
	InterestReleaseDate InterestRule = "release_date"
)

// ConstraintKind is the type of a cross-field rule
type ConstraintKind string

const (
	// ConstraintRequires demands the companion field be known, from the candidate or history
	ConstraintRequires ConstraintKind = "requires"
	// ConstraintNotAbove demands the value not exceed the companion value
	ConstraintNotAbove ConstraintKind = "not_above"
	// ConstraintRatioBelow demands value/companion stay below Ratio
	ConstraintRatioBelow ConstraintKind = "ratio_below"
)

// Constraint is a cross-field rule attached to a field
type Constraint struct {
	Kind     ConstraintKind
	Field    string
	Ratio    decimal.Decimal
	Severity domain.Severity
}

// Metadata holds the rules for one stat field
type Metadata struct {
	Name         string
	Group        string
	Reversible   bool
	Sortable     bool
	DailyLimit   decimal.Decimal
	InterestRule InterestRule
	ReleaseDate  *time.Time
	MaxValue     *decimal.Decimal
	Places       int32
	Constraints  []Constraint
}

// HasDailyLimit reports whether the field is rate checked
func (m *Metadata) HasDailyLimit() bool {
	return m.DailyLimit.IsPositive()
}

// InterestDate returns the start of the long rate window for a player.
// The second return is false when no date can be determined.
func (m *Metadata) InterestDate(startDate *time.Time) (time.Time, bool) {
	switch {
	case m.InterestRule == InterestReleaseDate && m.ReleaseDate != nil:
		if startDate == nil || startDate.Before(*m.ReleaseDate) {
			return *m.ReleaseDate, true
		}
		return *startDate, true
	case startDate != nil:
		return *startDate, true
	}
	return time.Time{}, false
}

// Table is an ordered, immutable set of field rules
type Table struct {
	order  []*Metadata
	byName map[string]*Metadata
}

// Lookup returns the rules of a field
func (t *Table) Lookup(name string) (*Metadata, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Fields returns every field in table order
func (t *Table) Fields() []*Metadata {
	return t.order
}

// IsSortable reports whether a leaderboard can be ranked on the field
func (t *Table) IsSortable(name string) bool {
	m, ok := t.byName[name]
	return ok && m.Sortable
}

// SortableNames returns the names of sortable fields in table order
func (t *Table) SortableNames() []string {
	names := make([]string, 0, len(t.order))
	for _, m := range t.order {
		if m.Sortable {
			names = append(names, m.Name)
		}
	}
	return names
}

type fileTable struct {
	Fields []fileField `yaml:"fields"`
}

type fileField struct {
	Name         string           `yaml:"name"`
	Group        string           `yaml:"group"`
	Reversible   bool             `yaml:"reversible"`
	Sortable     bool             `yaml:"sortable"`
	DailyLimit   string           `yaml:"daily_limit"`
	InterestDate string           `yaml:"interest_date"`
	ReleaseDate  string           `yaml:"release_date"`
	MaxValue     string           `yaml:"max_value"`
	Places       int32            `yaml:"places"`
	Constraints  []fileConstraint `yaml:"constraints"`
}

type fileConstraint struct {
	Kind     string `yaml:"kind"`
	Field    string `yaml:"field"`
	Ratio    string `yaml:"ratio"`
	Severity string `yaml:"severity"`
}

// Default returns the built-in field table
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("parsing built-in field table: %v", err))
	}
	return t
}

// Load reads a field table from a YAML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading field table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and checks a YAML field table
func Parse(data []byte) (*Table, error) {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parsing field table: %w", err)
	}
	if len(ft.Fields) == 0 {
		return nil, fmt.Errorf("field table is empty")
	}

	t := &Table{byName: make(map[string]*Metadata, len(ft.Fields))}
	for _, f := range ft.Fields {
		m, err := f.metadata()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if _, dup := t.byName[m.Name]; dup {
			return nil, fmt.Errorf("field %q declared twice", m.Name)
		}
		t.byName[m.Name] = m
		t.order = append(t.order, m)
	}

	for _, m := range t.order {
		for _, c := range m.Constraints {
			if _, ok := t.byName[c.Field]; !ok {
				return nil, fmt.Errorf("field %q: constraint references unknown field %q", m.Name, c.Field)
			}
		}
	}
	return t, nil
}

func (f fileField) metadata() (*Metadata, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	m := &Metadata{
		Name:         f.Name,
		Group:        f.Group,
		Reversible:   f.Reversible,
		Sortable:     f.Sortable,
		InterestRule: InterestStartDate,
		Places:       f.Places,
	}

	if f.DailyLimit != "" {
		d, err := decimal.NewFromString(f.DailyLimit)
		if err != nil {
			return nil, fmt.Errorf("daily_limit: %w", err)
		}
		m.DailyLimit = d
	}
	if f.MaxValue != "" {
		d, err := decimal.NewFromString(f.MaxValue)
		if err != nil {
			return nil, fmt.Errorf("max_value: %w", err)
		}
		m.MaxValue = &d
	}
	if f.ReleaseDate != "" {
		d, err := time.Parse(time.DateOnly, f.ReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("release_date: %w", err)
		}
		m.ReleaseDate = &d
	}

	switch InterestRule(f.InterestDate) {
	case "", InterestStartDate:
	case InterestReleaseDate:
		if m.ReleaseDate == nil {
			return nil, fmt.Errorf("interest_date release_date needs a release_date")
		}
		m.InterestRule = InterestReleaseDate
	default:
		return nil, fmt.Errorf("unknown interest_date %q", f.InterestDate)
	}

	for _, fc := range f.Constraints {
		c := Constraint{Kind: ConstraintKind(fc.Kind), Field: fc.Field, Severity: domain.Severity(fc.Severity)}
		switch c.Kind {
		case ConstraintRequires, ConstraintNotAbove:
		case ConstraintRatioBelow:
			r, err := decimal.NewFromString(fc.Ratio)
			if err != nil || !r.IsPositive() {
				return nil, fmt.Errorf("ratio_below needs a positive ratio")
			}
			c.Ratio = r
		default:
			return nil, fmt.Errorf("unknown constraint kind %q", fc.Kind)
		}
		switch c.Severity {
		case domain.SeverityHard, domain.SeveritySoft:
		case "":
			c.Severity = domain.SeveritySoft
			if c.Kind == ConstraintRequires {
				c.Severity = domain.SeverityHard
			}
		default:
			return nil, fmt.Errorf("unknown severity %q", fc.Severity)
		}
		m.Constraints = append(m.Constraints, c)
	}
	return m, nil
}
