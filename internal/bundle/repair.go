package bundle

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"moontale/internal/models"
)

// RepairContext is the material available for synthesizing replacement
// fields deterministically.
type RepairContext struct {
	UserEvent string
	// PriorSummary is the authoritative summary before this call; it is the
	// fallback when the generator returns no usable summary.
	PriorSummary string

	ChapterMinChars int
	ChapterMaxChars int
	TitleMinChars   int
	TitleMaxChars   int
}

// Fallback anchors used when extraction yields nothing usable: a place, a
// clue, a constraint.
var placeholderAnchors = models.Anchors{
	A: "旅途中的发现",
	B: "未解的谜团",
	C: "角色的状态",
}

// Repair returns a fully schema-valid bundle. Fields flagged in issues are
// replaced with deterministic substitutes built from the context; fields that
// passed validation are normalized in place (title keyword containment,
// summary compression, suggestion cardinality) so every returned bundle
// satisfies the output invariants. It never fails.
func Repair(parsed *models.ChapterBundle, issues []Issue, ctx RepairContext) *models.ChapterBundle {
	out := &models.ChapterBundle{}

	out.EventKeywords = repairKeywords(parsed.EventKeywords, ctx.UserEvent)

	out.Chapter = parsed.Chapter
	if out.Chapter == "" {
		// Best effort: there is no way to conjure missing narrative content
		// deterministically.
		out.Chapter = "一二和布布继续他们的旅程。" + ctx.UserEvent
	}
	checkChapterBand(out.Chapter, ctx)

	out.Anchors = repairAnchors(parsed.Anchors, out.Chapter, ctx.UserEvent)

	out.Title = fixTitle(parsed.Title, out.EventKeywords, out.Anchors.A, ctx)

	out.NextSummary = CompressSummary(parsed.NextSummary)
	if out.NextSummary == "" {
		out.NextSummary = CompressSummary(ctx.PriorSummary)
	}

	out.Suggestions = repairSuggestions(parsed.Suggestions, out.Anchors)

	return out
}

// --- event keywords ---

var eventSplitter = regexp.MustCompile(`[，。、,\s]+`)

func repairKeywords(keywords []string, userEvent string) []string {
	valid := make([]string, 0, 4)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || len([]rune(kw)) > maxKeywordRunes {
			continue
		}
		valid = append(valid, kw)
		if len(valid) == 4 {
			break
		}
	}
	if len(valid) >= 2 {
		return valid
	}

	// Too few survivors: keep them and top up from the event text, split on
	// common punctuation into bounded fragments.
	for _, part := range eventSplitter.Split(userEvent, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if r := []rune(part); len(r) > maxKeywordRunes {
			part = string(r[:maxKeywordRunes])
		}
		if containsString(valid, part) {
			continue
		}
		valid = append(valid, part)
		if len(valid) == 4 {
			break
		}
	}
	if len(valid) > 0 {
		return valid
	}
	return []string{"事件"}
}

// --- title ---

var trailingPunct = regexp.MustCompile(`[。，、！？；：]+$`)

// fixTitle keeps the generator's title when it is inside the length band and
// literally contains one of the event keywords; otherwise it falls back to
// deterministic templates.
func fixTitle(title string, keywords []string, anchorA string, ctx RepairContext) string {
	title = trailingPunct.ReplaceAllString(strings.TrimSpace(title), "")
	runes := len([]rune(title))

	if runes >= ctx.TitleMinChars && runes <= ctx.TitleMaxChars && containsKeyword(title, keywords) {
		return title
	}

	kw := "事件"
	if len(keywords) > 0 && strings.TrimSpace(keywords[0]) != "" {
		kw = strings.TrimSpace(keywords[0])
	}
	return fallbackTitle(kw, anchorA, ctx.TitleMaxChars)
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func containsKeyword(title string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// fallbackTitle tries three templates in order and accepts the first whose
// inner text fits the bound: the keyword alone, the keyword at anchor A, the
// keyword with a fixed narrative suffix.
func fallbackTitle(kw, anchorA string, maxRunes int) string {
	if a := strings.TrimSpace(anchorA); a != "" {
		combined := "在" + a + "的" + kw
		if len([]rune(combined)) <= maxRunes {
			return "《" + combined + "》"
		}
	}

	suffixed := kw + "之日"
	if len([]rune(suffixed)) <= maxRunes {
		return "《" + suffixed + "》"
	}

	return "《" + kw + "》"
}

// --- anchors ---

// Noun-like phrase heuristic over the chapter tail: possessive compounds
// first, bare Han runs second.
var nounPhrase = regexp.MustCompile(`\p{Han}{2,6}[的之]\p{Han}{1,6}|\p{Han}{3,8}`)

const anchorSourceTail = 160

func repairAnchors(anchors models.Anchors, chapter, userEvent string) models.Anchors {
	if anchors.A != "" && anchors.B != "" && anchors.C != "" {
		return anchors
	}

	source := chapter
	if source == "" {
		source = userEvent
	}
	if r := []rune(source); len(r) > anchorSourceTail {
		source = string(r[len(r)-anchorSourceTail:])
	}

	phrases := dedupStrings(nounPhrase.FindAllString(source, -1))

	next := 0
	pick := func(current, placeholder string) string {
		if current != "" {
			return current
		}
		if next < len(phrases) {
			p := phrases[next]
			next++
			return p
		}
		return placeholder
	}

	return models.Anchors{
		A: pick(anchors.A, placeholderAnchors.A),
		B: pick(anchors.B, placeholderAnchors.B),
		C: pick(anchors.C, placeholderAnchors.C),
	}
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// --- suggestions ---

func anchorTemplates(a models.Anchors) []models.Suggestion {
	return []models.Suggestion{
		{Text: fmt.Sprintf("一二在%s附近侦察，寻找隐藏的入口或标记", a.A), UsesAnchors: []models.AnchorKey{models.AnchorA}},
		{Text: fmt.Sprintf("布布追踪%s的线索，试图解开谜团", a.B), UsesAnchors: []models.AnchorKey{models.AnchorB}},
		{Text: fmt.Sprintf("考虑到%s，一二施法设下防护屏障", a.C), UsesAnchors: []models.AnchorKey{models.AnchorC}},
		{Text: fmt.Sprintf("在%s，他们发现与%s相关的古老符文", a.A, a.B), UsesAnchors: []models.AnchorKey{models.AnchorA, models.AnchorB}},
		{Text: fmt.Sprintf("面对%s，布布在%s附近清理障碍，一二尝试追查%s", a.C, a.A, a.B), UsesAnchors: []models.AnchorKey{models.AnchorA, models.AnchorB, models.AnchorC}},
	}
}

func repairSuggestions(suggestions []models.Suggestion, anchors models.Anchors) []models.Suggestion {
	valid := make([]models.Suggestion, 0, 5)
	for _, s := range suggestions {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		keys := validAnchorKeys(s.UsesAnchors)
		if len(keys) == 0 {
			continue
		}
		valid = append(valid, models.Suggestion{Text: strings.TrimSpace(s.Text), UsesAnchors: keys})
		if len(valid) == 5 {
			break
		}
	}

	if len(valid) < 5 {
		for _, tpl := range anchorTemplates(anchors) {
			if len(valid) == 5 {
				break
			}
			valid = append(valid, tpl)
		}
	}
	return valid[:5]
}

func validAnchorKeys(keys []models.AnchorKey) []models.AnchorKey {
	out := make([]models.AnchorKey, 0, len(keys))
	for _, k := range keys {
		switch k {
		case models.AnchorA, models.AnchorB, models.AnchorC:
			out = append(out, k)
		}
	}
	return out
}

// --- summary ---

var sentenceEnd = regexp.MustCompile(`[。！？]`)

// CompressSummary keeps at most the first three sentences. It never invents
// new content.
func CompressSummary(summary string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ""
	}

	sentences := make([]string, 0, 4)
	for _, s := range sentenceEnd.Split(summary, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, strings.TrimSpace(s))
		}
	}
	if len(sentences) <= 3 {
		return summary
	}
	return strings.Join(sentences[:3], "。") + "。"
}

// checkChapterBand logs band violations; prose is never rewritten
// deterministically.
func checkChapterBand(chapter string, ctx RepairContext) {
	if ctx.ChapterMinChars == 0 && ctx.ChapterMaxChars == 0 {
		return
	}
	count := len([]rune(strings.Join(strings.Fields(chapter), "")))
	if count < ctx.ChapterMinChars {
		log.Printf("[bundle] chapter below band: %d chars (target %d-%d)", count, ctx.ChapterMinChars, ctx.ChapterMaxChars)
	} else if ctx.ChapterMaxChars > 0 && count > ctx.ChapterMaxChars {
		log.Printf("[bundle] chapter above band: %d chars (target %d-%d)", count, ctx.ChapterMinChars, ctx.ChapterMaxChars)
	}
}
