// Package report builds the printable score summary of a consultation from a
// declarative per-specialty definition: which scores to evaluate, which text
// blocks to include and which clinical thresholds raise alerts.
package report

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/calc"
)

var ErrNotFound = errors.New("not found")

// ScoreRef names a registered calc score to evaluate. Label overrides the
// score title.
type ScoreRef struct {
	Name  string
	Label string
}

// Condition gates a text block. With Score set the block needs the score to
// be computable and, when Band is set, to be interpreted as Band. Otherwise
// the block needs Field answered and, when Equals is set, answered with
// exactly Equals.
type Condition struct {
	Field  string
	Equals string
	Score  string
	Band   string
}

// TextBlock is a paragraph of the report. Text may reference answers and
// scores as {key}; {score.band} expands to the score interpretation.
type TextBlock struct {
	Title string
	Text  string
	When  *Condition
}

type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// AlertRule raises Message when any of its criteria holds. Criterion keys may
// name answers or scores of the same report.
type AlertRule struct {
	Level   Level
	Message string
	AnyOf   []calc.Criterion
}

func (a AlertRule) holds(ans calc.Answers) bool {
	for _, c := range a.AnyOf {
		if c.Holds(ans) {
			return true
		}
	}
	return false
}

// SpecialtyReport declares the report of one specialty, keyed by the
// specialty code.
type SpecialtyReport struct {
	Specialty string
	Title     string
	Scores    []ScoreRef
	Blocks    []TextBlock
	Alerts    []AlertRule
}

type ScoreResult struct {
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Value          *float64 `json:"value"`
	Interpretation string   `json:"interpretation,omitempty"`
}

type Line struct {
	Section string `json:"section"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

type Paragraph struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

type Alert struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Report is the generated summary of one answer set.
type Report struct {
	ConsultationID *uuid.UUID    `json:"consultation_id,omitempty"`
	Specialty      string        `json:"specialty"`
	Title          string        `json:"title"`
	Age            int           `json:"age,omitempty"`
	Gender         string        `json:"gender,omitempty"`
	Date           time.Time     `json:"date"`
	Scores         []ScoreResult `json:"scores"`
	Answers        []Line        `json:"answers"`
	Paragraphs     []Paragraph   `json:"paragraphs"`
	Alerts         []Alert       `json:"alerts"`
	AlertCount     int           `json:"alert_count"`
}
