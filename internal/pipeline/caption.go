package pipeline

import (
	"fmt"
	"strings"
	"time"

	"viralclip-backend/internal/models"
)

// captionWord and captionLine hold clip-local (re-zeroed to the segment's
// own start) word timings, the way subtitle files for a single rendered
// clip are never timestamped against the source timeline.
type captionWord struct {
	start, end time.Duration
	text       string
}

type captionLine struct {
	start, end time.Duration
	words      []captionWord
}

// renderASS builds a karaoke-style Advanced SubStation Alpha subtitle
// document for a clip window, grounded on the retrieval pack's
// RenderTikTokASS, generalized to pick a style block by name per spec
// §4.4 step 7's three named caption styles.
func renderASS(tr *models.Transcript, start, end float64, style models.CaptionStyle) string {
	words := collectCaptionWords(tr, start, end)
	if len(words) == 0 {
		text := collectSegmentText(tr, start, end)
		if text == "" {
			return ""
		}
		return renderASSPlain(text, time.Duration((end-start)*float64(time.Second)), style)
	}
	lines := packCaptionWords(words)
	return renderASSKaraoke(lines, style)
}

func collectCaptionWords(tr *models.Transcript, start, end float64) []captionWord {
	var out []captionWord
	for _, seg := range tr.Segments {
		for _, w := range seg.Words {
			if w.End <= start || w.Start >= end {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			ws, we := w.Start, w.End
			if ws < start {
				ws = start
			}
			if we > end {
				we = end
			}
			out = append(out, captionWord{
				start: time.Duration((ws - start) * float64(time.Second)),
				end:   time.Duration((we - start) * float64(time.Second)),
				text:  sanitizeASS(text),
			})
		}
	}
	return out
}

func collectSegmentText(tr *models.Transcript, start, end float64) string {
	var parts []string
	for _, seg := range tr.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// packCaptionWords groups words into readable karaoke lines under a
// character/word budget, same trade-off the pack's packWords makes for
// vertical-video layouts.
func packCaptionWords(words []captionWord) []captionLine {
	const charBudget = 42
	const wordBudget = 9

	var out []captionLine
	cur := captionLine{start: words[0].start}
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur.words) >= wordBudget || nextLen > charBudget {
			cur.end = cur.words[len(cur.words)-1].end
			out = append(out, cur)
			cur = captionLine{start: w.start}
			curLen = 0
		}
		cur.words = append(cur.words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.end = w.end
			out = append(out, cur)
		}
	}
	return out
}

func renderASSKaraoke(lines []captionLine, style models.CaptionStyle) string {
	var b strings.Builder
	b.WriteString(assHeader(style))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.start))
		b.WriteString(",")
		b.WriteString(assTime(ln.end))
		b.WriteString(",Clip,,0,0,0,,")
		for _, w := range ln.words {
			durCS := int((w.end - w.start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			fmt.Fprintf(&b, "{\\k%d}%s ", durCS, w.text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderASSPlain(text string, duration time.Duration, style models.CaptionStyle) string {
	var b strings.Builder
	b.WriteString(assHeader(style))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	b.WriteString("Dialogue: 0,0:00:00.00,")
	b.WriteString(assTime(duration))
	b.WriteString(",Clip,,0,0,0,,")
	b.WriteString(sanitizeASS(text))
	b.WriteString("\n")
	return b.String()
}

// assHeader picks the style block per named preset (spec.md §9's open
// question on caption typography — decided per SPEC_FULL.md as three
// fixed ASS style blocks).
func assHeader(style models.CaptionStyle) string {
	var styleLine string
	switch style {
	case models.CaptionClassic:
		styleLine = "Style: Clip, Inter, 64, &H00FFFFFF, &H000000FF, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,1,2, 80,80,120,1"
	case models.CaptionMinimal:
		styleLine = "Style: Clip, Inter, 56, &H00FFFFFF, &H00FFFFFF, &H00000000, &H00000000, 0,0,0,0,100,100,0,0,1,2,0,2, 60,60,60,1"
	default: // modern
		styleLine = "Style: Clip, Inter, 78, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,2, 80,80,85,1"
	}

	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
%s
`, styleLine))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}
