package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/forms"
)

const notRecorded = "no consta"

// scored overlays computed scores on the answers so that alert criteria and
// text placeholders can refer to either.
type scored struct {
	answers forms.AnswerMap
	scores  map[string]calc.Result
}

func (s scored) Number(key string) (float64, bool) {
	if r, ok := s.scores[strings.ToLower(key)]; ok {
		return r.Value, true
	}
	return s.answers.Number(key)
}

func (s scored) Text(key string) (string, bool) {
	if r, ok := s.scores[strings.ToLower(key)]; ok {
		return formatNumber(r.Value), true
	}
	return s.answers.Text(key)
}

// Generate evaluates def against answers. tpl, when given, contributes one
// line per visible answered field, calculated fields included.
func Generate(def *SpecialtyReport, tpl *forms.FormTemplate, answers forms.AnswerMap) Report {
	if answers == nil {
		answers = forms.AnswerMap{}
	}
	r := Report{
		Specialty:  def.Specialty,
		Title:      def.Title,
		Scores:     []ScoreResult{},
		Answers:    []Line{},
		Paragraphs: []Paragraph{},
		Alerts:     []Alert{},
	}

	view := scored{answers: answers, scores: make(map[string]calc.Result)}
	for _, ref := range def.Scores {
		sr := ScoreResult{Name: ref.Name, Label: ref.Label}
		if sr.Label == "" {
			if d, ok := calc.Default.Score(ref.Name); ok {
				sr.Label = d.Title
			} else {
				sr.Label = ref.Name
			}
		}
		if res, ok := calc.Compute(ref.Name, answers); ok {
			v := res.Value
			sr.Value = &v
			sr.Interpretation = res.Interpretation
			view.scores[strings.ToLower(ref.Name)] = res
		}
		r.Scores = append(r.Scores, sr)
	}

	if tpl != nil {
		r.Answers = answerLines(tpl, answers)
	}

	for _, b := range def.Blocks {
		if !view.include(b.When) {
			continue
		}
		r.Paragraphs = append(r.Paragraphs, Paragraph{Title: b.Title, Text: view.expand(b.Text)})
	}

	for _, rule := range def.Alerts {
		if rule.holds(view) {
			r.Alerts = append(r.Alerts, Alert{Level: rule.Level, Message: rule.Message})
		}
	}
	r.AlertCount = len(r.Alerts)
	return r
}

func (s scored) include(c *Condition) bool {
	if c == nil {
		return true
	}
	if c.Score != "" {
		res, ok := s.scores[strings.ToLower(c.Score)]
		if !ok {
			return false
		}
		return c.Band == "" || strings.EqualFold(res.Interpretation, c.Band)
	}
	v, ok := s.answers.Get(c.Field)
	if !ok || v.IsEmpty() {
		return false
	}
	if c.Equals == "" {
		return true
	}
	text, isText := v.AsText()
	return isText && text == c.Equals
}

// expand replaces {key} and {score.band} placeholders. Unknown keys render
// as notRecorded; unbalanced braces are kept.
func (s scored) expand(text string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(text[open:], '}')
		if end < 0 {
			break
		}
		b.WriteString(text[:open])
		b.WriteString(s.placeholder(strings.TrimSpace(text[open+1 : open+end])))
		text = text[open+end+1:]
	}
	b.WriteString(text)
	return b.String()
}

func (s scored) placeholder(key string) string {
	if name, ok := strings.CutSuffix(key, ".band"); ok {
		if res, found := s.scores[strings.ToLower(name)]; found && res.Interpretation != "" {
			return res.Interpretation
		}
		return notRecorded
	}
	if v, ok := s.answers.Get(key); ok && !v.IsEmpty() {
		return v.String()
	}
	if t, ok := s.Text(key); ok {
		return t
	}
	return notRecorded
}

func answerLines(tpl *forms.FormTemplate, answers forms.AnswerMap) []Line {
	lines := []Line{}
	for _, sec := range tpl.Sections {
		if !answers.ConditionHolds(sec.Condition()) {
			continue
		}
		title := sec.Title
		if title == "" {
			title = sec.Name
		}
		for _, f := range sec.Fields {
			if !answers.ConditionHolds(f.Condition()) {
				continue
			}
			value := fieldValue(f, answers)
			if value == "" {
				continue
			}
			if f.Unit != nil && *f.Unit != "" {
				value += " " + *f.Unit
			}
			lines = append(lines, Line{Section: title, Label: f.Label, Value: value})
		}
	}
	return lines
}

func fieldValue(f *forms.FormField, answers forms.AnswerMap) string {
	if f.IsCalculated {
		res, ok := calc.Compute(f.Formula(), answers)
		if !ok {
			return ""
		}
		if res.Interpretation != "" {
			return fmt.Sprintf("%s (%s)", formatNumber(res.Value), res.Interpretation)
		}
		return formatNumber(res.Value)
	}
	v, ok := answers.Get(f.Name)
	if !ok || v.IsEmpty() {
		return ""
	}
	if list, isList := v.AsList(); isList {
		return strings.Join(list, ", ")
	}
	return v.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Text renders the report as printable plain text.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Title))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len([]rune(r.Title))))
	b.WriteString("\n")
	if !r.Date.IsZero() {
		fmt.Fprintf(&b, "Fecha: %s\n", r.Date.Format("02/01/2006 15:04"))
	}
	if r.Age > 0 || r.Gender != "" {
		fmt.Fprintf(&b, "Edad: %d años  Sexo: %s\n", r.Age, r.Gender)
	}

	if len(r.Scores) > 0 {
		b.WriteString("\nESCALAS\n")
		for _, s := range r.Scores {
			if s.Value == nil {
				fmt.Fprintf(&b, "- %s: %s\n", s.Label, notRecorded)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s", s.Label, formatNumber(*s.Value))
			if s.Interpretation != "" {
				fmt.Fprintf(&b, " (%s)", s.Interpretation)
			}
			b.WriteString("\n")
		}
	}

	section := ""
	for _, l := range r.Answers {
		if l.Section != section {
			section = l.Section
			fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(section))
		}
		fmt.Fprintf(&b, "%s: %s\n", l.Label, l.Value)
	}

	if len(r.Paragraphs) > 0 {
		b.WriteString("\nVALORACIÓN\n")
		for _, p := range r.Paragraphs {
			if p.Title != "" {
				fmt.Fprintf(&b, "%s: ", p.Title)
			}
			b.WriteString(p.Text)
			b.WriteString("\n")
		}
	}

	if r.AlertCount > 0 {
		fmt.Fprintf(&b, "\nALERTAS (%d)\n", r.AlertCount)
		for _, a := range r.Alerts {
			mark := "!"
			if a.Level == LevelCritical {
				mark = "!!"
			}
			fmt.Fprintf(&b, "%s %s\n", mark, a.Message)
		}
	}
	return b.String()
}
