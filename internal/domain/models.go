package domain

import (
	"time"
)

type StagedImage struct {
	Filename    string    `json:"filename"`
	Ext         string    `json:"ext"`
	StoragePath string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Bytes       []byte    `json:"-"`
}

// RawClassification is the classifier payload before normalization.
// Nil fields were absent upstream.
type RawClassification struct {
	Prediction *string  `json:"prediction"`
	Confidence *float64 `json:"confidence"`
	HeatmapURL *string  `json:"heatmapUrl"`
}

type DiseaseResult struct {
	Label      string `json:"result"`
	Confidence int    `json:"confidence"`
	HeatmapURL string `json:"heatmapUrl"`
}

type Heading string

const (
	HeadingDefinition  Heading = "Definition"
	HeadingRemedy      Heading = "Remedy"
	HeadingExplanation Heading = "Explanation"
	HeadingOther       Heading = "Other"
)

// Icon returns the display tag used by the remedy renderer.
func (h Heading) Icon() string {
	switch h {
	case HeadingDefinition:
		return "📘"
	case HeadingRemedy:
		return "💊"
	case HeadingExplanation:
		return "📝"
	default:
		return "📄"
	}
}

// RemedyEntry is one rendered line of a remedy explanation. Title marks a
// stand-alone section header that carries no label.
type RemedyEntry struct {
	Heading Heading `json:"heading"`
	Label   string  `json:"label,omitempty"`
	Content string  `json:"content"`
	Icon    string  `json:"icon"`
	Title   bool    `json:"title"`
}

type Remedy struct {
	Raw     string        `json:"remedy"`
	Entries []RemedyEntry `json:"entries"`
}
