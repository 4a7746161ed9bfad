package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Tier is the severity of an alert. Only three tiers exist; there is no
// informational tier because informational conditions are never alerted.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
)

// Tiers lists every tier in descending urgency.
var Tiers = []Tier{TierCritical, TierHigh, TierMedium}

// Rank orders tiers; lower is more urgent. Unknown tiers sort last.
func (t Tier) Rank() int {
	switch t {
	case TierCritical:
		return 0
	case TierHigh:
		return 1
	case TierMedium:
		return 2
	default:
		return 3
	}
}

// Status is a check's own summary of its run.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusSkip     Status = "skip"
)

// Alert is one detected condition. Alerts are created fresh by a check on
// every run and never mutated afterwards.
type Alert struct {
	Tier     Tier   `json:"tier"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Host     string `json:"host"`
}

// Key is the deduplication key used by the cooldown filter.
func (a Alert) Key() string {
	return a.Category + "|" + a.Host + "|" + a.Title
}

// Hash is the stable digest of Key stored in the persisted cooldown map.
func (a Alert) Hash() string {
	sum := sha256.Sum256([]byte(a.Key()))
	return hex.EncodeToString(sum[:])
}

// CountByTier counts alerts per tier. Every tier is present in the result.
func CountByTier(alerts []Alert) map[Tier]int {
	counts := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		counts[t] = 0
	}
	for _, a := range alerts {
		counts[a.Tier]++
	}
	return counts
}

// SortByTier orders alerts by tier, keeping check order within a tier.
func SortByTier(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Tier.Rank() < alerts[j].Tier.Rank()
	})
}

// WorstStatus derives a check status from the alerts it produced.
func WorstStatus(alerts []Alert) Status {
	status := StatusOK
	for _, a := range alerts {
		switch a.Tier {
		case TierCritical:
			return StatusCritical
		case TierHigh, TierMedium:
			status = StatusWarning
		}
	}
	return status
}

// CheckStats is the per-check summary embedded in the report. Status, Note
// and Error are common to all checks; Fields holds check-specific counters.
// It is serialized as a single flat JSON object.
type CheckStats struct {
	Status Status
	Note   string
	Error  string
	Fields map[string]any
}

// NewStats returns stats with the given status and an empty field set.
func NewStats(status Status) CheckStats {
	return CheckStats{Status: status, Fields: map[string]any{}}
}

// Set records a check-specific counter and returns the stats for chaining.
func (s CheckStats) Set(key string, value any) CheckStats {
	if s.Fields == nil {
		s.Fields = map[string]any{}
	}
	s.Fields[key] = value
	return s
}

// WithNote attaches a human-readable note.
func (s CheckStats) WithNote(note string) CheckStats {
	s.Note = note
	return s
}

// Int returns an integer counter, tolerating values decoded from JSON.
func (s CheckStats) Int(key string) (int, bool) {
	switch v := s.Fields[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (s CheckStats) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+3)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["status"] = s.Status
	if s.Note != "" {
		out["note"] = s.Note
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return json.Marshal(out)
}

func (s *CheckStats) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = CheckStats{Fields: map[string]any{}}
	for k, v := range raw {
		str, _ := v.(string)
		switch k {
		case "status":
			s.Status = Status(str)
		case "note":
			s.Note = str
		case "error":
			s.Error = str
		default:
			s.Fields[k] = v
		}
	}
	return nil
}
