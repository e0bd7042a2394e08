package service

import (
	"sort"
	"strings"

	"github.com/loresmith/loresmith-be/types"
	"github.com/loresmith/loresmith-be/utils"
)

// ChunkService converts extracted documents into token-bounded chunks.
// Offsets are byte positions into the concatenated document text, which is
// built once per document and never mutated, so page attribution stays
// consistent with chunk boundaries.
type ChunkService struct {
	config  types.ChunkConfig
	counter utils.TokenCounter
	segment *SegmentService
}

func NewChunkService(config types.ChunkConfig, counter utils.TokenCounter, segment *SegmentService) *ChunkService {
	defaults := types.DefaultChunkConfig
	if config.MinTokens <= 0 {
		config.MinTokens = defaults.MinTokens
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.TargetTokens <= 0 {
		config.TargetTokens = defaults.TargetTokens
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = defaults.OverlapTokens
	}
	return &ChunkService{
		config:  config,
		counter: counter,
		segment: segment,
	}
}

// ChunkDocument runs section detection over the whole document and emits
// merged, page-attributed chunks. A document with no detected headings is
// treated as a single headingless section.
func (s *ChunkService) ChunkDocument(doc *types.ExtractedDocument) []types.Chunk {
	text, pageStarts, pageNumbers := buildDocumentText(doc.Pages)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lineStarts := buildLineStarts(text)
	sections := s.segment.DetectSections(text)

	var chunks []types.Chunk
	if len(sections) == 0 {
		start, end := trimSpan(text, 0, len(text))
		chunks = s.chunkSpan(text, start, end, "", false)
	} else {
		// Text ahead of the first heading still has to be retrievable.
		preambleEnd := lineStarts[sections[0].StartLine]
		if start, end := trimSpan(text, 0, preambleEnd); start < end {
			chunks = append(chunks, s.chunkSpan(text, start, end, "", false)...)
		}
		for _, section := range sections {
			start := lineStarts[section.StartLine]
			end := lineSpanEnd(text, lineStarts, section.EndLine)
			start, end = trimSpan(text, start, end)
			if start >= end {
				continue
			}
			chunks = append(chunks, s.chunkSpan(text, start, end, section.Heading, true)...)
		}
	}

	chunks = s.MergeSmallChunks(text, chunks)
	for i := range chunks {
		chunks[i].PageNumber = pageNumberAt(pageStarts, pageNumbers, chunks[i].StartOffset)
	}
	return chunks
}

// chunkSpan emits the span as a single chunk when it fits, otherwise splits
// it on sentence boundaries.
func (s *ChunkService) chunkSpan(text string, start, end int, heading string, hasHeading bool) []types.Chunk {
	content := text[start:end]
	tokens := s.counter.Count(content)
	if tokens <= s.config.MaxTokens {
		return []types.Chunk{{
			Content:        content,
			TokenCount:     tokens,
			SectionHeading: heading,
			HasHeading:     hasHeading,
			StartOffset:    start,
			EndOffset:      end,
		}}
	}
	return s.splitSpan(text, start, end, heading, hasHeading)
}

// splitSpan packs sentences until the next one would push the chunk past
// maxTokens, emits, then seeds the next chunk with trailing sentences worth
// up to overlapTokens.
func (s *ChunkService) splitSpan(text string, start, end int, heading string, hasHeading bool) []types.Chunk {
	spans := s.sentenceSpansIn(text, start, end)

	var chunks []types.Chunk
	var current []sentenceSpan
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, s.spanChunk(text, current, heading, hasHeading))
		}
	}

	for _, span := range spans {
		if span.tokens > s.config.MaxTokens {
			flush()
			current, currentTokens = nil, 0
			chunks = append(chunks, s.splitOversizedSentence(text, span, heading, hasHeading)...)
			continue
		}
		if currentTokens+span.tokens > s.config.MaxTokens && len(current) > 0 {
			flush()
			current = overlapTail(current, s.config.OverlapTokens)
			currentTokens = sumSpanTokens(current)
			// An overlap seed that cannot fit alongside the next sentence
			// would emit a duplicate-only chunk; drop it instead.
			if currentTokens+span.tokens > s.config.MaxTokens {
				current, currentTokens = nil, 0
			}
		}
		current = append(current, span)
		currentTokens += span.tokens
	}
	flush()
	return chunks
}

// splitOversizedSentence handles the rare sentence that alone exceeds
// maxTokens by packing words instead, so no emitted chunk ever exceeds the
// configured maximum.
func (s *ChunkService) splitOversizedSentence(text string, span sentenceSpan, heading string, hasHeading bool) []types.Chunk {
	var chunks []types.Chunk
	start := span.start
	for start < span.end {
		pos := start
		tokens := 0
		for pos < span.end {
			wordEnd := nextWordEnd(text, pos, span.end)
			wordTokens := s.counter.Count(text[pos:wordEnd])
			if tokens+wordTokens > s.config.MaxTokens && pos > start {
				break
			}
			tokens += wordTokens
			pos = wordEnd
			for pos < span.end && isSpaceByte(text[pos]) {
				pos++
			}
		}
		chunkStart, chunkEnd := trimSpan(text, start, pos)
		if chunkStart < chunkEnd {
			content := text[chunkStart:chunkEnd]
			chunks = append(chunks, types.Chunk{
				Content:        content,
				TokenCount:     s.counter.Count(content),
				SectionHeading: heading,
				HasHeading:     hasHeading,
				StartOffset:    chunkStart,
				EndOffset:      chunkEnd,
			})
		}
		start = pos
	}
	return chunks
}

// MergeSmallChunks folds any chunk below minTokens into its immediate
// successor, repeatedly, while the combined size stays within maxTokens.
// Running it on an already-merged list is a no-op. The source text is used
// to rebuild merged content so overlapping seeds are not duplicated.
func (s *ChunkService) MergeSmallChunks(text string, chunks []types.Chunk) []types.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	out := make([]types.Chunk, 0, len(chunks))
	i := 0
	for i < len(chunks) {
		current := chunks[i]
		for current.TokenCount < s.config.MinTokens && i+1 < len(chunks) {
			next := chunks[i+1]
			content := mergedContent(text, current, next)
			tokens := s.counter.Count(content)
			if tokens > s.config.MaxTokens {
				break
			}
			heading, hasHeading := current.SectionHeading, current.HasHeading
			if !hasHeading {
				heading, hasHeading = next.SectionHeading, next.HasHeading
			}
			current = types.Chunk{
				Content:        content,
				TokenCount:     tokens,
				PageNumber:     current.PageNumber,
				SectionHeading: heading,
				HasHeading:     hasHeading,
				StartOffset:    current.StartOffset,
				EndOffset:      next.EndOffset,
			}
			i++
		}
		out = append(out, current)
		i++
	}
	return out
}

// mergedContent reslices the source when the two chunks are contiguous or
// overlapping in it; chunks from disjoint spans are joined with a newline.
func mergedContent(text string, a, b types.Chunk) string {
	if a.StartOffset <= b.StartOffset && b.StartOffset <= a.EndOffset && b.EndOffset <= len(text) {
		return text[a.StartOffset:b.EndOffset]
	}
	return a.Content + "\n" + b.Content
}

func (s *ChunkService) spanChunk(text string, spans []sentenceSpan, heading string, hasHeading bool) types.Chunk {
	start := spans[0].start
	end := spans[len(spans)-1].end
	content := text[start:end]
	return types.Chunk{
		Content:        content,
		TokenCount:     s.counter.Count(content),
		SectionHeading: heading,
		HasHeading:     hasHeading,
		StartOffset:    start,
		EndOffset:      end,
	}
}

func (s *ChunkService) sentenceSpansIn(text string, start, end int) []sentenceSpan {
	spans := s.segment.sentenceSpans(text[start:end])
	for i := range spans {
		spans[i].start += start
		spans[i].end += start
		spans[i].tokens = s.counter.Count(text[spans[i].start:spans[i].end])
	}
	return spans
}

func overlapTail(spans []sentenceSpan, overlapTokens int) []sentenceSpan {
	if overlapTokens <= 0 {
		return nil
	}
	total := 0
	i := len(spans)
	for i > 0 && total+spans[i-1].tokens <= overlapTokens {
		total += spans[i-1].tokens
		i--
	}
	return append([]sentenceSpan(nil), spans[i:]...)
}

func sumSpanTokens(spans []sentenceSpan) int {
	total := 0
	for _, span := range spans {
		total += span.tokens
	}
	return total
}

// buildDocumentText joins page texts with single newlines and records where
// each page starts in the joined text.
func buildDocumentText(pages []types.ExtractedPage) (string, []int, []int) {
	var b strings.Builder
	starts := make([]int, 0, len(pages))
	numbers := make([]int, 0, len(pages))
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		starts = append(starts, b.Len())
		numbers = append(numbers, page.PageNumber)
		b.WriteString(page.Text)
	}
	return b.String(), starts, numbers
}

func buildLineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineSpanEnd(text string, lineStarts []int, endLine int) int {
	if endLine+1 < len(lineStarts) {
		return lineStarts[endLine+1] - 1
	}
	return len(text)
}

// pageNumberAt finds the page whose start offset is nearest at or before the
// chunk's start offset.
func pageNumberAt(pageStarts, pageNumbers []int, offset int) int {
	if len(pageStarts) == 0 {
		return 1
	}
	idx := sort.Search(len(pageStarts), func(i int) bool {
		return pageStarts[i] > offset
	})
	if idx == 0 {
		return pageNumbers[0]
	}
	return pageNumbers[idx-1]
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return start, end
}

func nextWordEnd(text string, pos, limit int) int {
	for pos < limit && !isSpaceByte(text[pos]) {
		pos++
	}
	return pos
}
