package remedy

import (
	"regexp"
	"strings"

	"plantcare/internal/domain"
)

type LineKind int

const (
	Blank LineKind = iota
	SectionTitle
	LabeledLine
)

func (k LineKind) String() string {
	switch k {
	case SectionTitle:
		return "section_title"
	case LabeledLine:
		return "labeled_line"
	default:
		return "blank"
	}
}

// Line is one classified line of generated remedy text.
type Line struct {
	Kind    LineKind
	Label   string
	Content string
}

var (
	preambleRe = regexp.MustCompile(`(?i)^\s*(?:okay|ok|sure|alright|all right|certainly|absolutely|of course|here)\b[^:\n]*:[ \t]*`)
	newlinesRe = regexp.MustCompile(`(?:\r?\n)+`)
	labeledRe  = regexp.MustCompile(`^([A-Z][^:]{0,50}):\s*(.*)$`)
)

// StripPreamble removes a leading conversational intro such as
// "Okay, here's a breakdown:".
func StripPreamble(raw string) string {
	return preambleRe.ReplaceAllString(raw, "")
}

// CleanLine drops leading bullet glyphs and markdown emphasis markers.
func CleanLine(line string) string {
	line = strings.TrimLeft(line, "*-• \t")
	line = strings.ReplaceAll(line, "*", "")
	return strings.TrimSpace(line)
}

func classifyBlank(cleaned string) bool {
	return cleaned == ""
}

func classifyLabeled(cleaned string) (label, content string, ok bool) {
	m := labeledRe.FindStringSubmatch(cleaned)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// ClassifyLine classifies a single raw line.
func ClassifyLine(raw string) Line {
	cleaned := CleanLine(raw)
	if classifyBlank(cleaned) {
		return Line{Kind: Blank}
	}
	if label, content, ok := classifyLabeled(cleaned); ok {
		return Line{Kind: LabeledLine, Label: label, Content: content}
	}
	return Line{Kind: SectionTitle, Content: cleaned}
}

func headingFor(label string) domain.Heading {
	for _, h := range []domain.Heading{domain.HeadingDefinition, domain.HeadingRemedy, domain.HeadingExplanation} {
		if strings.EqualFold(label, string(h)) {
			return h
		}
	}
	return domain.HeadingOther
}

// Structure converts generated remedy text into entries, one per non-blank
// line, in source order.
func Structure(raw string) []domain.RemedyEntry {
	entries := []domain.RemedyEntry{}
	for _, l := range newlinesRe.Split(StripPreamble(raw), -1) {
		line := ClassifyLine(l)
		switch line.Kind {
		case LabeledLine:
			h := headingFor(line.Label)
			entries = append(entries, domain.RemedyEntry{
				Heading: h,
				Label:   line.Label,
				Content: line.Content,
				Icon:    h.Icon(),
			})
		case SectionTitle:
			entries = append(entries, domain.RemedyEntry{
				Heading: domain.HeadingOther,
				Content: line.Content,
				Icon:    domain.HeadingOther.Icon(),
				Title:   true,
			})
		}
	}
	return entries
}
