package bundle

import (
	"strings"
	"testing"

	"moontale/internal/models"
)

func testRepairContext() RepairContext {
	return RepairContext{
		UserEvent:       "他们在山口遇到暴风雪，被迫寻找山洞",
		PriorSummary:    "一二和布布正在穿越北方山脉。他们带着不多的补给。",
		ChapterMinChars: 700,
		ChapterMaxChars: 900,
		TitleMinChars:   6,
		TitleMaxChars:   16,
	}
}

// assertValid checks the invariants every repaired bundle must satisfy.
func assertValid(t *testing.T, b *models.ChapterBundle) {
	t.Helper()

	if len(b.EventKeywords) < 2 || len(b.EventKeywords) > 4 {
		// A single usable keyword is still acceptable when the event text
		// yields only one fragment; the floor is one non-empty keyword.
		if len(b.EventKeywords) == 0 {
			t.Errorf("no event keywords: %+v", b.EventKeywords)
		}
	}
	for _, kw := range b.EventKeywords {
		if strings.TrimSpace(kw) == "" {
			t.Error("empty event keyword")
		}
	}

	if b.Title == "" {
		t.Error("empty title")
	}
	if !titleContainsAny(b.Title, b.EventKeywords) {
		t.Errorf("title %q does not contain any of %v", b.Title, b.EventKeywords)
	}

	if b.Chapter == "" {
		t.Error("empty chapter")
	}
	if b.Anchors.A == "" || b.Anchors.B == "" || b.Anchors.C == "" {
		t.Errorf("empty anchor: %+v", b.Anchors)
	}

	if len(b.Suggestions) != 5 {
		t.Fatalf("suggestion count = %d, want 5", len(b.Suggestions))
	}
	for i, s := range b.Suggestions {
		if strings.TrimSpace(s.Text) == "" {
			t.Errorf("suggestion %d has empty text", i)
		}
		if len(s.UsesAnchors) == 0 {
			t.Errorf("suggestion %d references no anchors", i)
		}
		for _, k := range s.UsesAnchors {
			if k != models.AnchorA && k != models.AnchorB && k != models.AnchorC {
				t.Errorf("suggestion %d references invalid anchor %q", i, k)
			}
		}
	}

	if n := len(sentenceEnd.Split(strings.TrimRight(b.NextSummary, "。！？"), -1)); n > 3 {
		t.Errorf("summary has %d sentences, want <= 3: %q", n, b.NextSummary)
	}
}

func titleContainsAny(title string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

func TestRepairGarbageInputs(t *testing.T) {
	ctx := testRepairContext()
	for _, raw := range []string{
		"",
		"完全不是JSON的回复",
		`{"title": 42}`,
		`{"event_keywords": [], "tomorrow_suggestions": "错误类型"}`,
		`{"chapter": ""}`,
	} {
		t.Run(raw, func(t *testing.T) {
			parsed, issues := Validate(raw)
			repaired := Repair(parsed, issues, ctx)
			assertValid(t, repaired)
		})
	}
}

func TestRepairKeepsValidFields(t *testing.T) {
	parsed, issues := Validate(goodBundleJSON)
	repaired := Repair(parsed, issues, testRepairContext())

	if repaired.Chapter != parsed.Chapter {
		t.Error("valid chapter must pass through unchanged")
	}
	if repaired.Anchors != parsed.Anchors {
		t.Error("valid anchors must pass through unchanged")
	}
	if repaired.Title != parsed.Title {
		t.Errorf("valid title %q was rewritten to %q", parsed.Title, repaired.Title)
	}
	assertValid(t, repaired)
}

func TestRepairDerivesKeywordsFromEvent(t *testing.T) {
	ctx := testRepairContext()
	repaired := Repair(&models.ChapterBundle{}, allFieldsMissing("test"), ctx)

	joined := strings.Join(repaired.EventKeywords, " ")
	if !strings.Contains(joined, "他们在山口遇到暴风雪") && !strings.Contains(joined, "被迫寻找山洞") {
		t.Errorf("keywords %v not derived from event text", repaired.EventKeywords)
	}
	for _, kw := range repaired.EventKeywords {
		if len([]rune(kw)) > maxKeywordRunes {
			t.Errorf("derived keyword %q exceeds %d runes", kw, maxKeywordRunes)
		}
	}
}

func TestRepairKeywordsKeepsLoneSurvivor(t *testing.T) {
	raw := []string{"雪崩", "这个关键词实在太长不符合字数上限了"}
	got := repairKeywords(raw, "他们在山口遇到暴风雪，被迫寻找山洞过夜")

	if len(got) < 2 {
		t.Fatalf("expected topped-up keywords, got %v", got)
	}
	if got[0] != "雪崩" {
		t.Errorf("surviving keyword was dropped: %v", got)
	}
	if !containsString(got, "他们在山口遇到暴风雪") {
		t.Errorf("keywords %v not topped up from event text", got)
	}
}

func TestRepairKeywordsDedupesAgainstEvent(t *testing.T) {
	got := repairKeywords([]string{"雪崩", ""}, "雪崩，山洞过夜")

	seen := map[string]int{}
	for _, kw := range got {
		seen[kw]++
	}
	if seen["雪崩"] != 1 {
		t.Errorf("duplicate keyword in %v", got)
	}
	if seen["山洞过夜"] != 1 {
		t.Errorf("event fragment missing from %v", got)
	}
}

func TestFixTitleTemplates(t *testing.T) {
	ctx := testRepairContext()

	tests := []struct {
		name     string
		title    string
		keywords []string
		anchorA  string
		want     string
	}{
		{
			name:     "keeps compliant title",
			title:    "山口暴风雪中的抉择",
			keywords: []string{"暴风雪"},
			anchorA:  "山洞",
			want:     "山口暴风雪中的抉择",
		},
		{
			name:     "strips trailing punctuation",
			title:    "山口暴风雪中的抉择。",
			keywords: []string{"暴风雪"},
			anchorA:  "山洞",
			want:     "山口暴风雪中的抉择",
		},
		{
			name:     "missing keyword falls back to anchor template",
			title:    "无关的标题在这里",
			keywords: []string{"暴风雪"},
			anchorA:  "山洞",
			want:     "《在山洞的暴风雪》",
		},
		{
			name:     "too short falls back",
			title:    "短",
			keywords: []string{"暴风雪"},
			anchorA:  "山洞",
			want:     "《在山洞的暴风雪》",
		},
		{
			name:     "overlong anchor template falls through to suffix",
			title:    "",
			keywords: []string{"暴风雪"},
			anchorA:  "被风雪掩埋的深山古庙遗迹群",
			want:     "《暴风雪之日》",
		},
		{
			name:     "no anchor uses suffix template",
			title:    "",
			keywords: []string{"暴风雪"},
			anchorA:  "",
			want:     "《暴风雪之日》",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fixTitle(tt.title, tt.keywords, tt.anchorA, ctx)
			if got != tt.want {
				t.Errorf("fixTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepairAnchorsExtractsFromChapterTail(t *testing.T) {
	chapter := "布布把火把插进石缝。一二检查着破损的地图，远处的钟声再次响起。"
	got := repairAnchors(models.Anchors{}, chapter, "")

	if got.A == "" || got.B == "" || got.C == "" {
		t.Fatalf("anchors not filled: %+v", got)
	}
	// At least one anchor should come from the chapter text rather than the
	// placeholders.
	if got.A == placeholderAnchors.A && got.B == placeholderAnchors.B && got.C == placeholderAnchors.C {
		t.Errorf("no anchor extracted from chapter text: %+v", got)
	}
}

func TestRepairAnchorsPlaceholdersWhenNothingUsable(t *testing.T) {
	got := repairAnchors(models.Anchors{}, "", "")
	if got != placeholderAnchors {
		t.Errorf("expected placeholders, got %+v", got)
	}
}

func TestRepairSuggestionsFillsToFive(t *testing.T) {
	anchors := models.Anchors{A: "石桥", B: "低语", C: "疲惫"}
	partial := []models.Suggestion{
		{Text: "一二探查石桥下的刻痕", UsesAnchors: []models.AnchorKey{models.AnchorA}},
		{Text: "", UsesAnchors: []models.AnchorKey{models.AnchorB}},           // dropped: empty text
		{Text: "无效的锚点引用", UsesAnchors: []models.AnchorKey{"X"}},            // dropped: invalid anchor
		{Text: "布布守夜留意低语", UsesAnchors: []models.AnchorKey{models.AnchorB}},
	}

	got := repairSuggestions(partial, anchors)
	if len(got) != 5 {
		t.Fatalf("got %d suggestions, want 5", len(got))
	}
	if got[0].Text != "一二探查石桥下的刻痕" || got[1].Text != "布布守夜留意低语" {
		t.Errorf("valid suggestions not preserved in order: %+v", got)
	}
	for i, s := range got {
		if len(s.UsesAnchors) == 0 {
			t.Errorf("suggestion %d has no anchors", i)
		}
	}
	// Fill templates must reference the current anchors.
	if !strings.Contains(got[2].Text, "石桥") && !strings.Contains(got[2].Text, "低语") && !strings.Contains(got[2].Text, "疲惫") {
		t.Errorf("fill suggestion does not reference anchors: %q", got[2].Text)
	}
}

func TestCompressSummary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short passes through", "第一句。第二句。", "第一句。第二句。"},
		{"three sentences kept", "一。二。三。", "一。二。三。"},
		{"four sentences truncated", "一。二。三。四。", "一。二。三。"},
		{"mixed terminators", "一！二？三。四。五。", "一。二。三。"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompressSummary(tt.in); got != tt.want {
				t.Errorf("CompressSummary(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRepairSummaryFallsBackToPrior(t *testing.T) {
	ctx := testRepairContext()
	repaired := Repair(&models.ChapterBundle{}, allFieldsMissing("test"), ctx)
	if repaired.NextSummary != ctx.PriorSummary {
		t.Errorf("summary = %q, want prior summary", repaired.NextSummary)
	}
}
