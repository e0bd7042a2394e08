package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/loresmith/loresmith-be/types"
)

const (
	allCapsHeadingMinLen = 5
	allCapsHeadingMaxLen = 79
	shortHeadingMinLen   = 10
	shortHeadingMaxLen   = 59
	colonHeadingMaxLen   = 59
)

// numberedHeadingPattern matches "N. Title", "N.N Title" and "N.N.N Title".
// Deeper numbering is deliberately not treated as a heading.
var numberedHeadingPattern = regexp.MustCompile(`^(\d+)\.(?:(\d+)(?:\.(\d+))?)?\.?\s+\S`)

var markdownHeadingPattern = regexp.MustCompile(`^(#+)\s+(\S.*)$`)

// sentenceAbbreviations never terminate a sentence even though they end in a
// dot. Their dots are masked before boundary detection and the mask byte has
// the same width as '.', so sentence offsets stay valid in the original text.
var sentenceAbbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Jr.", "Sr.", "vs.", "e.g.", "i.e.", "etc.",
}

const abbreviationMask = "\x01"

// SegmentService detects heading-delimited sections and splits text into
// sentence units.
type SegmentService struct{}

func NewSegmentService() *SegmentService {
	return &SegmentService{}
}

// DetectSections scans line by line for heading candidates. The checks run
// in a fixed priority order and are mutually exclusive, so a line matches at
// most one heading type. Returns an empty list when no headings are found;
// callers treat that as one section spanning the whole document.
func (s *SegmentService) DetectSections(text string) []types.Section {
	lines := strings.Split(text, "\n")
	var sections []types.Section
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		heading, level, ok := classifyHeading(lines, i, trimmed)
		if !ok {
			continue
		}
		sections = append(sections, types.Section{
			Heading:   heading,
			Level:     level,
			StartLine: i,
		})
	}

	// Each section runs up to the line before the next heading; the last one
	// runs to document end.
	for i := range sections {
		if i+1 < len(sections) {
			sections[i].EndLine = sections[i+1].StartLine - 1
		} else {
			sections[i].EndLine = len(lines) - 1
		}
	}
	return sections
}

func classifyHeading(lines []string, idx int, trimmed string) (string, int, bool) {
	if isAllCapsHeading(trimmed) {
		return trimmed, 1, true
	}
	if level := numberedHeadingLevel(trimmed); level > 0 {
		return trimmed, level, true
	}
	if m := markdownHeadingPattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[2]), len(m[1]), true
	}
	if isShortCapitalizedHeading(lines, idx, trimmed) {
		return trimmed, 2, true
	}
	if isColonHeading(trimmed) {
		return strings.TrimSuffix(trimmed, ":"), 3, true
	}
	return "", 0, false
}

func isAllCapsHeading(line string) bool {
	if len(line) < allCapsHeadingMinLen || len(line) > allCapsHeadingMaxLen {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func numberedHeadingLevel(line string) int {
	m := numberedHeadingPattern.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	switch {
	case m[3] != "":
		return 3
	case m[2] != "":
		return 2
	default:
		return 1
	}
}

// isShortCapitalizedHeading matches title-style lines: short, starting with
// an uppercase letter, no terminal punctuation, and isolated by blank lines.
func isShortCapitalizedHeading(lines []string, idx int, trimmed string) bool {
	if len(trimmed) < shortHeadingMinLen || len(trimmed) > shortHeadingMaxLen {
		return false
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	if !unicode.IsUpper(first) {
		return false
	}
	if strings.ContainsAny(trimmed[len(trimmed)-1:], ".,:;!?") {
		return false
	}
	prevBlank := idx == 0 || strings.TrimSpace(lines[idx-1]) == ""
	nextBlank := idx == len(lines)-1 || strings.TrimSpace(lines[idx+1]) == ""
	return prevBlank && nextBlank
}

func isColonHeading(trimmed string) bool {
	return len(trimmed) > 1 && len(trimmed) <= colonHeadingMaxLen && strings.HasSuffix(trimmed, ":")
}

// SplitSentences splits text on sentence terminators followed by whitespace,
// protecting the abbreviation list from producing false boundaries. Trailing
// unterminated text comes back as a final sentence.
func (s *SegmentService) SplitSentences(text string) []string {
	spans := s.sentenceSpans(text)
	sentences := make([]string, 0, len(spans))
	for _, span := range spans {
		sentence := strings.TrimSpace(text[span.start:span.end])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	return sentences
}

// sentenceSpan is a sentence's byte range in the source text plus its token
// count when produced by the chunker.
type sentenceSpan struct {
	start  int
	end    int
	tokens int
}

// sentenceSpans returns sentence boundaries as byte offsets into text. The
// masked copy is used only for boundary detection; slices always come from
// the original, which reverses the masking for free.
func (s *SegmentService) sentenceSpans(text string) []sentenceSpan {
	masked := maskAbbreviations(text)
	var spans []sentenceSpan
	start := 0
	i := 0
	for i < len(masked) {
		c := masked[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(masked) || isSpaceByte(masked[i+1]) {
				spans = append(spans, sentenceSpan{start: start, end: i + 1})
				i++
				for i < len(masked) && isSpaceByte(masked[i]) {
					i++
				}
				start = i
				continue
			}
		}
		i++
	}
	if start < len(masked) {
		spans = append(spans, sentenceSpan{start: start, end: len(masked)})
	}
	return spans
}

func maskAbbreviations(text string) string {
	masked := text
	for _, abbr := range sentenceAbbreviations {
		masked = strings.ReplaceAll(masked, abbr, strings.ReplaceAll(abbr, ".", abbreviationMask))
	}
	return masked
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}
