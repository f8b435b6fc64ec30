package validator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/fields"
)

var nsPerDay = decimal.NewFromInt(int64(24 * time.Hour))

// Options tune the validator
type Options struct {
	// TrustedSourcePrefixes mark channels whose soft warnings never block, e.g. "ss_"
	TrustedSourcePrefixes []string
	// LeaderFactor is the multiple of the global maximum that raises a warning
	LeaderFactor decimal.Decimal
}

// DefaultOptions returns the standard trust and leader settings
func DefaultOptions() Options {
	return Options{
		TrustedSourcePrefixes: []string{"ss_"},
		LeaderFactor:          decimal.RequireFromString("1.5"),
	}
}

// Input is everything needed to decide on one candidate snapshot
type Input struct {
	Player    *domain.Player
	Candidate *domain.Snapshot
	// History holds the player's stored snapshots. A snapshot with the
	// candidate's ID is ignored so amendments validate against the rest.
	History []domain.Snapshot
	// GlobalMax holds the highest known value per field across all players. May be stale.
	GlobalMax map[string]decimal.Decimal
}

// Validator decides whether candidate snapshots are plausible
type Validator struct {
	fields  *fields.Table
	opts    Options
	printer *message.Printer
}

// New creates a validator over a field table
func New(table *fields.Table, opts Options) *Validator {
	if opts.LeaderFactor.IsZero() {
		opts.LeaderFactor = DefaultOptions().LeaderFactor
	}
	return &Validator{
		fields:  table,
		opts:    opts,
		printer: message.NewPrinter(language.English),
	}
}

// Fields returns the table the validator checks against
func (v *Validator) Fields() *fields.Table {
	return v.fields
}

// Validate checks a candidate against the player's history. It has no side
// effects, so identical inputs give identical results.
func (v *Validator) Validate(in Input) domain.ValidationResult {
	c := &check{v: v, in: in}
	c.history = priorHistory(in.History, in.Candidate)

	sortable := false
	for _, m := range v.fields.Fields() {
		value, ok := in.Candidate.Value(m.Name)
		if !ok {
			continue
		}
		if m.Sortable {
			sortable = true
		}
		c.field(m, value)
	}

	var unknown []string
	for name := range in.Candidate.Values {
		if _, ok := v.fields.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		c.hard(domain.ValidationIssue{
			Code:    domain.IssueUnknownField,
			Field:   name,
			Message: v.printer.Sprintf("%s is not a known stat", name),
		})
	}

	if !sortable {
		c.hard(domain.ValidationIssue{
			Code:    domain.IssueNothingSubmitted,
			Message: "nothing submitted: at least one leaderboard stat must have a value",
		})
	}

	return c.result()
}

type check struct {
	v       *Validator
	in      Input
	history []domain.Snapshot
	hardErr []domain.ValidationIssue
	soft    []domain.ValidationIssue
}

func (c *check) hard(i domain.ValidationIssue) {
	i.Severity = domain.SeverityHard
	c.hardErr = append(c.hardErr, i)
}

func (c *check) warn(i domain.ValidationIssue) {
	i.Severity = domain.SeveritySoft
	c.soft = append(c.soft, i)
}

func (c *check) raise(s domain.Severity, i domain.ValidationIssue) {
	if s == domain.SeverityHard {
		c.hard(i)
		return
	}
	c.warn(i)
}

func (c *check) result() domain.ValidationResult {
	r := domain.ValidationResult{HardErrors: c.hardErr, SoftWarnings: c.soft}
	switch {
	case len(c.hardErr) > 0:
		r.Accepted = false
	case len(c.soft) == 0:
		r.Accepted = true
	case c.in.Candidate.Override || c.in.Candidate.HasPrefixSource(c.v.opts.TrustedSourcePrefixes):
		r.Accepted = true
		r.Overridden = true
	}
	return r
}

func (c *check) field(m *fields.Metadata, value decimal.Decimal) {
	p := c.v.printer
	observed := c.in.Candidate.ObservedAt
	prior := latestBefore(c.history, m.Name, observed)

	if prior != nil && !m.Reversible {
		pv, _ := prior.Value(m.Name)
		if value.LessThan(pv) {
			c.hard(domain.ValidationIssue{
				Code:  domain.IssueDecreased,
				Field: m.Name,
				Message: p.Sprintf("%s of %v is lower than %v recorded on %s",
					m.Name, num(value), num(pv), prior.ObservedAt.Format(time.DateOnly)),
			})
		}
	}
	if same := highestAt(c.history, m.Name, observed); same != nil && !m.Reversible {
		sv, _ := same.Value(m.Name)
		if value.LessThan(sv) {
			c.hard(domain.ValidationIssue{
				Code:  domain.IssueDecreased,
				Field: m.Name,
				Message: p.Sprintf("%s of %v is lower than %v recorded at the same time",
					m.Name, num(value), num(sv)),
			})
		}
	}
	if next := earliestAfter(c.history, m.Name, observed); next != nil && !m.Reversible {
		nv, _ := next.Value(m.Name)
		if value.GreaterThan(nv) {
			c.hard(domain.ValidationIssue{
				Code:  domain.IssueDecreased,
				Field: m.Name,
				Message: p.Sprintf("%s of %v is higher than %v recorded later on %s",
					m.Name, num(value), num(nv), next.ObservedAt.Format(time.DateOnly)),
			})
		}
	}

	if max, ok := c.in.GlobalMax[m.Name]; ok && max.IsPositive() {
		if value.GreaterThan(max.Mul(c.v.opts.LeaderFactor)) {
			c.warn(domain.ValidationIssue{
				Code:    domain.IssueLeader,
				Field:   m.Name,
				Message: p.Sprintf("%s of %v is well above the current leader's %v", m.Name, num(value), num(max)),
			})
		}
	}

	if m.HasDailyLimit() {
		var startDate *time.Time
		if c.in.Player != nil {
			startDate = c.in.Player.StartDate
		}
		if start, ok := m.InterestDate(startDate); ok {
			c.rate(m, value, start, observed)
		}
		if prior != nil {
			pv, _ := prior.Value(m.Name)
			c.rate(m, value.Sub(pv), prior.ObservedAt, observed)
		}
	}

	if m.ReleaseDate != nil && observed.Before(*m.ReleaseDate) {
		c.hard(domain.ValidationIssue{
			Code:    domain.IssueBeforeRelease,
			Field:   m.Name,
			Message: p.Sprintf("%s was entered for a date before its release on %s", m.Name, m.ReleaseDate.Format(time.DateOnly)),
		})
	}

	if m.MaxValue != nil && value.GreaterThan(*m.MaxValue) {
		c.hard(domain.ValidationIssue{
			Code:    domain.IssueMaxValue,
			Field:   m.Name,
			Message: p.Sprintf("%s of %v is above the maximum of %v", m.Name, num(value), num(*m.MaxValue)),
		})
	}

	for _, con := range m.Constraints {
		c.constraint(m, value, con)
	}
}

func (c *check) rate(m *fields.Metadata, delta decimal.Decimal, from, to time.Time) {
	elapsed := to.Sub(from)
	if elapsed <= 0 {
		return
	}
	days := decimal.NewFromInt(elapsed.Nanoseconds()).Div(nsPerDay)
	rate := delta.Div(days)
	if rate.LessThan(m.DailyLimit) {
		return
	}
	start, end := from, to
	rounded := rate.Round(2)
	c.warn(domain.ValidationIssue{
		Code:  domain.IssueRate,
		Field: m.Name,
		Message: c.v.printer.Sprintf("%s grew by %v/day between %s and %s, the daily limit is %v",
			m.Name, num(rounded), from.Format(time.DateOnly), to.Format(time.DateOnly), num(m.DailyLimit)),
		WindowStart: &start,
		WindowEnd:   &end,
		Rate:        &rounded,
	})
}

func (c *check) constraint(m *fields.Metadata, value decimal.Decimal, con fields.Constraint) {
	p := c.v.printer
	companion, known := c.companion(con.Field)

	switch con.Kind {
	case fields.ConstraintRequires:
		if !known {
			c.raise(con.Severity, domain.ValidationIssue{
				Code:    domain.IssueRequiredField,
				Field:   m.Name,
				Message: p.Sprintf("You must fill in %s if filling in %s", con.Field, m.Name),
			})
		}
	case fields.ConstraintNotAbove:
		if known && value.GreaterThan(companion) {
			c.raise(con.Severity, domain.ValidationIssue{
				Code:    domain.IssueInconsistent,
				Field:   m.Name,
				Message: p.Sprintf("%s of %v cannot be more than %s of %v", m.Name, num(value), con.Field, num(companion)),
			})
		}
	case fields.ConstraintRatioBelow:
		if known && companion.IsPositive() && value.Div(companion).GreaterThanOrEqual(con.Ratio) {
			c.raise(con.Severity, domain.ValidationIssue{
				Code:  domain.IssueInconsistent,
				Field: m.Name,
				Message: p.Sprintf("%s of %v is implausibly high for %s of %v (at least %v each)",
					m.Name, num(value), con.Field, num(companion), num(con.Ratio)),
			})
		}
	}
}

// companion finds the value of a related field on the candidate or, failing
// that, the latest earlier snapshot holding it.
func (c *check) companion(field string) (decimal.Decimal, bool) {
	if v, ok := c.in.Candidate.Value(field); ok {
		return v, true
	}
	if prior := latestBefore(c.history, field, c.in.Candidate.ObservedAt); prior != nil {
		v, _ := prior.Value(field)
		return v, true
	}
	return decimal.Decimal{}, false
}

func priorHistory(history []domain.Snapshot, candidate *domain.Snapshot) []domain.Snapshot {
	out := make([]domain.Snapshot, 0, len(history))
	for _, s := range history {
		if s.ID == candidate.ID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func latestBefore(history []domain.Snapshot, field string, t time.Time) *domain.Snapshot {
	var best *domain.Snapshot
	for i := range history {
		s := &history[i]
		if _, ok := s.Value(field); !ok || !s.ObservedAt.Before(t) {
			continue
		}
		if best == nil || s.ObservedAt.After(best.ObservedAt) {
			best = s
		}
	}
	return best
}

// highestAt returns the snapshot observed exactly at t with the highest value
// of field. Equal timestamps order by value, as the board queries do.
func highestAt(history []domain.Snapshot, field string, t time.Time) *domain.Snapshot {
	var (
		best *domain.Snapshot
		top  decimal.Decimal
	)
	for i := range history {
		s := &history[i]
		v, ok := s.Value(field)
		if !ok || !s.ObservedAt.Equal(t) {
			continue
		}
		if best == nil || v.GreaterThan(top) {
			best, top = s, v
		}
	}
	return best
}

func earliestAfter(history []domain.Snapshot, field string, t time.Time) *domain.Snapshot {
	var best *domain.Snapshot
	for i := range history {
		s := &history[i]
		if _, ok := s.Value(field); !ok || !s.ObservedAt.After(t) {
			continue
		}
		if best == nil || s.ObservedAt.Before(best.ObservedAt) {
			best = s
		}
	}
	return best
}

func num(d decimal.Decimal) number.Formatter {
	return number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2))
}
