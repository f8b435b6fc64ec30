package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source channels a snapshot can arrive through
const (
	SourceWebQuick       = "web_quick"
	SourceWebDetailed    = "web_detailed"
	SourceImport         = "import"
	SourceTSRegistration = "ts_registration"
	SourceSSRegistration = "ss_registration"
	SourceSSGeneric      = "ss_generic"
	SourceSSOCR          = "ss_ocr"
)

// Snapshot is an immutable, timestamped set of cumulative stats for one player.
// Fields absent from Values are null.
type Snapshot struct {
	ID          uuid.UUID                  `json:"id"`
	PlayerID    string                     `json:"player_id"`
	ObservedAt  time.Time                  `json:"observed_at"`
	SubmittedAt time.Time                  `json:"submitted_at"`
	SubmittedBy string                     `json:"submitted_by,omitempty"`
	Source      string                     `json:"source"`
	Override    bool                       `json:"double_check_confirmation"`
	Values      map[string]decimal.Decimal `json:"values"`
}

// Value returns the value of a field and whether it is set
func (s *Snapshot) Value(field string) (decimal.Decimal, bool) {
	v, ok := s.Values[field]
	return v, ok
}

// HasPrefixSource reports whether the snapshot's source starts with any of the prefixes
func (s *Snapshot) HasPrefixSource(prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s.Source, p) {
			return true
		}
	}
	return false
}

// SnapshotSubmission represents a request to record a new snapshot
type SnapshotSubmission struct {
	// ID pins the snapshot ID so a redelivered import replaces its earlier copy.
	// Left nil, a fresh ID is assigned.
	ID          uuid.UUID                  `json:"-"`
	PlayerID    string                     `json:"player_id"`
	ObservedAt  time.Time                  `json:"observed_at"`
	SubmittedBy string                     `json:"submitted_by,omitempty"`
	Source      string                     `json:"source"`
	Override    bool                       `json:"double_check_confirmation,omitempty"`
	Values      map[string]decimal.Decimal `json:"values"`
}

// AmendRequest replaces the values of a recently created snapshot
type AmendRequest struct {
	SnapshotID  uuid.UUID                  `json:"snapshot_id"`
	SubmittedBy string                     `json:"submitted_by"`
	ObservedAt  *time.Time                 `json:"observed_at,omitempty"`
	Override    bool                       `json:"double_check_confirmation,omitempty"`
	Values      map[string]decimal.Decimal `json:"values"`
}

// SubmissionResult is returned for every processed submission
type SubmissionResult struct {
	Snapshot   *Snapshot        `json:"snapshot,omitempty"`
	Validation ValidationResult `json:"validation"`
}

// BatchItemResult reports the outcome of one submission in a batch
type BatchItemResult struct {
	PlayerID string            `json:"player_id"`
	Result   *SubmissionResult `json:"result,omitempty"`
	Err      error             `json:"-"`
}
