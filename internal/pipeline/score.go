package pipeline

import (
	"regexp"
	"strings"

	"viralclip-backend/internal/models"
)

// candidate is a scored, timed window over the transcript — the unit the
// Score stage ranks, deduplicates, and selects from (spec §4.4 step 4).
type candidate struct {
	Start, End float64
	Text       string
	Score      float64
}

var (
	reNum  = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\b`)
	reHook = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember)\b`)
	reHow  = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
	reStep = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
)

// scoreText returns a viral score in [0,10] for a candidate's text, a
// lexical heuristic — hook/info markers plus punctuation signal — grounded
// on the retrieval pack's Score(text) function and folded into a single
// scalar per spec §4.4's "score in [0,10]" contract (the pack returns an
// (info, hook) pair for downstream LLM refinement it does not have here).
func scoreText(text string) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	lower := strings.ToLower(t)

	info := float64(len(reNum.FindAllStringIndex(t, -1))) * 0.4
	if reHow.MatchString(lower) {
		info += 1.2
	}
	info -= 0.0006 * float64(len([]rune(t)))

	hook := float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	hook += float64(len(reStep.FindAllStringIndex(lower, -1))) * 0.4
	hook += float64(strings.Count(t, "?")) * 0.7
	hook += float64(strings.Count(t, "!")) * 0.3

	return clamp(info+hook, 0, 10)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// buildCandidates generates fixed-length windows of approximately
// targetDuration seconds starting at each word boundary, the way the
// retrieval pack's word-timestamp-driven candidate builder works, but
// simplified to the single target length this pipeline selects per job
// (spec's duration-hint selection happens once, before scoring, not per
// candidate).
func buildCandidates(tr *models.Transcript, targetDuration float64) []candidate {
	type timedWord struct {
		start, end float64
		text       string
	}
	var words []timedWord
	for _, seg := range tr.Segments {
		for _, w := range seg.Words {
			if w.End <= w.Start {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			words = append(words, timedWord{w.Start, w.End, text})
		}
	}

	const maxCandidates = 200
	if len(words) < 2 {
		return buildCandidatesFromSegments(tr, targetDuration)
	}

	var out []candidate
	for i := 0; i < len(words); i++ {
		start := words[i].start
		var parts []string
		for j := i; j < len(words); j++ {
			parts = append(parts, words[j].text)
			end := words[j].end
			win := end - start
			if win > targetDuration*1.15 {
				break
			}
			if win < targetDuration {
				continue
			}
			text := strings.TrimSpace(strings.Join(parts, " "))
			if text == "" {
				continue
			}
			out = append(out, candidate{Start: start, End: end, Text: text, Score: scoreText(text)})
			if len(out) >= maxCandidates {
				return out
			}
			break
		}
	}
	return out
}

func buildCandidatesFromSegments(tr *models.Transcript, targetDuration float64) []candidate {
	var out []candidate
	segs := tr.Segments
	for i := 0; i < len(segs); i++ {
		start := segs[i].Start
		var parts []string
		for j := i; j < len(segs); j++ {
			end := segs[j].End
			win := end - start
			if win > targetDuration*1.15 {
				break
			}
			if strings.TrimSpace(segs[j].Text) != "" {
				parts = append(parts, strings.TrimSpace(segs[j].Text))
			}
			if win < targetDuration*0.5 {
				continue
			}
			text := strings.TrimSpace(strings.Join(parts, " "))
			if text == "" {
				continue
			}
			out = append(out, candidate{Start: start, End: end, Text: text, Score: scoreText(text)})
		}
	}
	return out
}

// dedupeByIoU removes lower-scored candidates that overlap a higher-scored
// one by more than 0.3 intersection-over-union, then returns the top K by
// score, per spec §4.4 step 4.
func dedupeByIoU(candidates []candidate, topK int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sortCandidatesByScoreDesc(sorted)

	var kept []candidate
	for _, c := range sorted {
		overlaps := false
		for _, k := range kept {
			if iou(c, k) > 0.3 {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
		if len(kept) >= topK {
			break
		}
	}
	return kept
}

func iou(a, b candidate) float64 {
	interStart := max(a.Start, b.Start)
	interEnd := min(a.End, b.End)
	inter := interEnd - interStart
	if inter <= 0 {
		return 0
	}
	union := (a.End - a.Start) + (b.End - b.Start) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func sortCandidatesByScoreDesc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score > c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
