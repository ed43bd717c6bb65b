// Package merge implements the Chunk Merger: deduplicating overlapping
// transcription segments across chunk boundaries into a single ordered
// timeline, plus a text-only fallback for callers that discard segments.
package merge

import (
	"sort"
	"strings"

	"github.com/forayproject/bout/internal/job"
)

// DefaultOverlap is the trailing-overlap window width used when a chunk's
// own OverlapStart/neighboring chunk overlap is not otherwise available.
const DefaultOverlap = 10.0

// textMergeSimilarityThreshold and textMergeStep tune the text-only
// fallback merge's overlap search (see MergeText). They are named
// constants rather than inline literals so a future caller can retune
// the search without altering the algorithm's shape.
const (
	textMergeSimilarityThreshold = 0.80
	textMergeMinLength           = 10
	textMergeMaxLength           = 200
	textMergeStep                = 10
)

// Merge sorts chunks by index, keeps only completed ones, and filters
// each chunk's segments by the overlap-window rule described in the
// chunk-boundary design: a chunk's leading OverlapStart window is someone
// else's trailing content and is dropped, except for the first chunk
// (nothing precedes it) and the last chunk (nothing follows it).
//
// The overlap used for the *trailing* cutoff of chunk i is overlap,
// matching the planner's configured overlap width; the leading cutoff
// uses each chunk's own OverlapStart, which the planner already set to 0
// for the first chunk.
func Merge(chunks []job.Chunk, overlap float64) (string, []job.Segment) {
	completed := completedSorted(chunks)
	if len(completed) == 0 {
		return "", nil
	}
	if len(completed) == 1 {
		return strings.TrimSpace(completed[0].Text), append([]job.Segment(nil), completed[0].Segments...)
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}

	var out []job.Segment
	last := len(completed) - 1
	for i, c := range completed {
		skipUntil := c.StartTime + c.OverlapStart
		cutoff := c.EndTime - overlap

		for _, seg := range c.Segments {
			mid := (seg.Start + seg.End) / 2

			switch {
			case i == 0:
				if seg.End <= cutoff || mid < cutoff {
					out = append(out, seg)
				}
			case i == last:
				if seg.Start >= skipUntil || mid >= skipUntil {
					out = append(out, seg)
				}
			default:
				if (seg.Start >= skipUntil && seg.End <= cutoff) ||
					(mid >= skipUntil && mid <= cutoff) {
					out = append(out, seg)
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	var text strings.Builder
	for i, seg := range out {
		if i > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(strings.TrimSpace(seg.Text))
	}

	return text.String(), out
}

// completedSorted returns the COMPLETED chunks from chunks, sorted by
// index, without mutating the input slice.
func completedSorted(chunks []job.Chunk) []job.Chunk {
	out := make([]job.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Status == job.ChunkCompleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// MergeText is the text-only fallback merge for callers that have
// discarded segment timing. It concatenates chunk texts in order,
// trimming the detected overlapping suffix/prefix between each adjacent
// pair using similarityRatio.
func MergeText(chunks []job.Chunk) string {
	completed := completedSorted(chunks)
	if len(completed) == 0 {
		return ""
	}

	result := strings.TrimSpace(completed[0].Text)
	for i := 1; i < len(completed); i++ {
		next := strings.TrimSpace(completed[i].Text)
		overlapLen := findTextOverlap(result, next)
		if overlapLen > 0 && overlapLen <= len(next) {
			next = next[overlapLen:]
		}
		if result != "" && next != "" {
			result += " "
		}
		result += next
	}
	return result
}

// findTextOverlap searches for the longest prefix of b that closely
// matches a suffix of a, trying lengths from the largest candidate down
// to textMergeMinLength in steps of textMergeStep. It returns the first
// (largest) length whose similarity ratio exceeds the threshold, or 0.
func findTextOverlap(a, b string) int {
	maxLen := len(a)
	if len(b) < maxLen {
		maxLen = len(b)
	}
	if maxLen > textMergeMaxLength {
		maxLen = textMergeMaxLength
	}

	for length := maxLen; length >= textMergeMinLength; length -= textMergeStep {
		if length > len(a) || length > len(b) {
			continue
		}
		suffix := a[len(a)-length:]
		prefix := b[:length]
		if similarityRatio(suffix, prefix) > textMergeSimilarityThreshold {
			return length
		}
	}
	return 0
}

// similarityRatio computes a SequenceMatcher-style ratio 2*M/T, where M
// is the total length of greedily-found longest matching blocks between
// a and b, and T is len(a)+len(b).
func similarityRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	matched := matchedLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchedLength greedily finds the longest common substring, then
// recurses on the remaining left/right splits of both strings, summing
// matched lengths — the same greedy decomposition difflib's
// SequenceMatcher.ratio() uses.
func matchedLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	bestLen, bestI, bestJ := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > bestLen {
				bestLen, bestI, bestJ = k, i, j
			}
		}
	}
	if bestLen == 0 {
		return 0
	}

	return bestLen +
		matchedLength(a[:bestI], b[:bestJ]) +
		matchedLength(a[bestI+bestLen:], b[bestJ+bestLen:])
}
