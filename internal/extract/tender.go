// Package extract turns raw tender document text into structured tender data
// by way of the orchestration layer. It builds the extraction prompt, parses
// the model's JSON answer defensively, and falls back to pattern-based
// extraction for the fields the model missed. Reference numbers, dates, and
// item tables follow the Ministry of Health tender formats the platform
// ingests.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Item is a single line item from a tender.
type Item struct {
	ItemNumber  string `json:"item_number"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	HasArabic   bool   `json:"has_arabic"`
}

// TenderData is the structured extraction result.
type TenderData struct {
	ReferenceNumber  string    `json:"reference_number"`
	Title            string    `json:"title"`
	ClosingDate      string    `json:"closing_date"`
	PostingDate      string    `json:"posting_date"`
	Department       string    `json:"department"`
	Items            []Item    `json:"items"`
	ItemsCount       int       `json:"items_count"`
	Language         string    `json:"language"`
	HasArabicContent bool      `json:"has_arabic_content"`
	ExtractedAt      time.Time `json:"extracted_at"`
	ExtractionMethod string    `json:"extraction_method"`
}

// SystemPrompt is the instruction sent to every provider for tender
// extraction. The model must answer with a single JSON object matching
// TenderData's field names.
const SystemPrompt = `You are a procurement document analyst. Extract structured fields from tender text and respond with exactly one JSON object, no prose, using keys: reference_number, title, closing_date, posting_date, department, items (array of {item_number, description, quantity, unit}). Dates use DD/MM/YYYY. Leave unknown fields empty.`

// BuildPrompt composes the user prompt for a document.
func BuildPrompt(department string) string {
	var b strings.Builder
	b.WriteString("Extract the tender fields from the document below.")
	if department != "" {
		b.WriteString(" The requesting department is ")
		b.WriteString(department)
		b.WriteString(".")
	}
	return b.String()
}

var (
	refPattern     = regexp.MustCompile(`\b(\d{1,2}[A-Z]{2,3}\d{2,4})\b`)
	datePattern    = regexp.MustCompile(`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	closingPattern = regexp.MustCompile(`(?i)(?:closing\s*date|close\s*date|last\s*date|deadline)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	postingPattern = regexp.MustCompile(`(?i)(?:posted|published|posting\s*date|publication\s*date)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	jsonObject     = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseResponse interprets the model's answer. The text is untrusted: a
// fenced or prefixed JSON object is located and decoded; if no usable JSON is
// found, every field is recovered by pattern matching against the original
// document instead. Empty JSON fields are also backfilled from the document.
func ParseResponse(modelText, document string) TenderData {
	data := TenderData{
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: "model",
	}

	if raw := jsonObject.FindString(modelText); raw != "" {
		// Ignore decode errors; fallbacks below fill the gaps.
		_ = json.Unmarshal([]byte(raw), &data)
	}

	if data.ReferenceNumber == "" {
		data.ReferenceNumber = referenceNumber(document)
		if data.ReferenceNumber != "" {
			data.ExtractionMethod = "pattern"
		}
	}
	data.ReferenceNumber = strings.ToUpper(data.ReferenceNumber)

	if data.ClosingDate == "" {
		data.ClosingDate = closingDate(document)
	}
	if data.PostingDate == "" {
		data.PostingDate = postingDate(document)
	}
	data.ClosingDate = normalizeDate(data.ClosingDate)
	data.PostingDate = normalizeDate(data.PostingDate)

	for i := range data.Items {
		data.Items[i].HasArabic = hasArabic(data.Items[i].Description)
		if data.Items[i].Unit == "" {
			data.Items[i].Unit = "units"
		}
	}
	data.ItemsCount = len(data.Items)

	data.Language, data.HasArabicContent = detectLanguage(document)
	return data
}

// referenceNumber finds an MOH-style tender reference such as 12TN2024.
func referenceNumber(text string) string {
	if m := refPattern.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

// closingDate prefers a labelled closing date; otherwise the last date in the
// document, which in MOH tenders is usually the deadline.
func closingDate(text string) string {
	if m := closingPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	all := datePattern.FindAllString(text, -1)
	if len(all) > 1 {
		return all[len(all)-1]
	}
	return ""
}

// postingDate prefers a labelled posting date; otherwise the first date found.
func postingDate(text string) string {
	if m := postingPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if all := datePattern.FindAllString(text, -1); len(all) > 0 {
		return all[0]
	}
	return ""
}

// normalizeDate rewrites separators to slashes.
func normalizeDate(s string) string {
	s = strings.ReplaceAll(s, "-", "/")
	return strings.ReplaceAll(s, ".", "/")
}

// detectLanguage classifies the document as arabic, mixed, or english by the
// share of Arabic codepoints among non-space characters.
func detectLanguage(text string) (lang string, hasAr bool) {
	var arabic, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if total == 0 {
		return "unknown", false
	}
	ratio := float64(arabic) / float64(total)
	switch {
	case ratio > 0.3:
		lang = "arabic"
	case ratio > 0.05:
		lang = "mixed"
	default:
		lang = "english"
	}
	return lang, arabic > 0
}

func hasArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
