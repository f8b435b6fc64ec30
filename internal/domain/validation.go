package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies a validation issue
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// IssueCode is the machine-readable kind of a validation issue
type IssueCode string

const (
	IssueUnknownField     IssueCode = "unknown_field"
	IssueDecreased        IssueCode = "decreased"
	IssueLeader           IssueCode = "leader"
	IssueRate             IssueCode = "rate"
	IssueBeforeRelease    IssueCode = "before_release"
	IssueMaxValue         IssueCode = "max_value"
	IssueRequiredField    IssueCode = "required_field"
	IssueInconsistent     IssueCode = "inconsistent"
	IssueNothingSubmitted IssueCode = "nothing_submitted"
)

// ValidationIssue is a single hard error or soft warning raised against a candidate snapshot
type ValidationIssue struct {
	Severity    Severity         `json:"severity"`
	Code        IssueCode        `json:"code"`
	Field       string           `json:"field,omitempty"`
	Message     string           `json:"message"`
	WindowStart *time.Time       `json:"window_start,omitempty"`
	WindowEnd   *time.Time       `json:"window_end,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
}

func (i ValidationIssue) Error() string {
	if i.Field == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s %s: %s", i.Field, i.Code, i.Message)
}

// ValidationResult is the outcome of validating one candidate snapshot.
// Soft warnings are kept on accepted results for audit.
type ValidationResult struct {
	Accepted     bool              `json:"accepted"`
	Overridden   bool              `json:"overridden"`
	HardErrors   []ValidationIssue `json:"hard_errors,omitempty"`
	SoftWarnings []ValidationIssue `json:"soft_warnings,omitempty"`
}

// Err returns a *RejectedError for rejected results and nil otherwise
func (r ValidationResult) Err() error {
	if r.Accepted {
		return nil
	}
	return &RejectedError{Result: r}
}
