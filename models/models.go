package models

import (
	"strings"
	"time"
)

// Lang is the dominant language tag of recognized text.
type Lang string

const (
	LangZH Lang = "zh"
	LangEN Lang = "en"
	// used by voice tables for anything not listed
	LangDefault Lang = "default"
)

// NormalizeLang maps free-form tags ("zh-CN", "zh_TW", "EN") onto the known set.
// Anything else is returned lowercased and left for voice tables to default.
func NormalizeLang(tag string) Lang {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch {
	case tag == "":
		return LangDefault
	case strings.HasPrefix(tag, "zh"), strings.HasPrefix(tag, "chi"), tag == "cmn":
		return LangZH
	case strings.HasPrefix(tag, "en"):
		return LangEN
	}
	return Lang(tag)
}

type RecognitionResult struct {
	Text string
	Lang Lang
}

func (r RecognitionResult) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBusy      Outcome = "busy"
	OutcomeNoop      Outcome = "noop"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// RunRecord is one finished pipeline run as kept in history.
type RunRecord struct {
	ID         string    `db:"id" json:"id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Outcome    Outcome   `db:"outcome" json:"outcome"`
	Lang       string    `db:"lang" json:"lang"`
	TextLen    int       `db:"text_len" json:"text_len"`
	Tier       string    `db:"tier" json:"tier"`
	Error      string    `db:"error" json:"error"`
}

func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
