package prompts

import (
	"strings"
	"testing"

	"moontale/internal/models"
	"moontale/internal/setpiece"
	"moontale/internal/worlds"
)

func testInput(verdict setpiece.Verdict, allowFinal bool) ComposeInput {
	return ComposeInput{
		World:      worlds.ByID(worlds.DefaultID),
		Summary:    "一二和布布正在穿越北方山脉。",
		UserEvent:  "他们在山口遇到暴风雪",
		Verdict:    verdict,
		AllowFinal: allowFinal,
	}
}

func TestChapterBundleSectionOrder(t *testing.T) {
	c := NewComposer(DefaultBands)
	prompt := c.ChapterBundle(testInput(setpiece.Verdict{Type: setpiece.TypeUnknown}, false))

	markers := []string{
		"世界设定",
		"实体引入规则",
		"动作密度要求",
		"多日大场面规则",
		"反废话/低浪费",
		"输出要求",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		if idx < 0 {
			t.Fatalf("prompt missing section %q", m)
		}
		if idx < last {
			t.Errorf("section %q out of order", m)
		}
		last = idx
	}
}

func TestChapterBundleMajorVerdictAddsHardRules(t *testing.T) {
	c := NewComposer(DefaultBands)
	verdict := setpiece.Classify("布布和巨龙搏斗，一二释放魔法支援")

	prompt := c.ChapterBundle(testInput(verdict, false))
	for _, want := range []string{
		"set_piece.isMajor = true",
		"set_piece.type = boss_fight",
		"禁止完全解决",
		"必须悬疑结尾",
		"至少2个直接延续同一大场面的选项",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("major prompt missing %q", want)
		}
	}

	quiet := c.ChapterBundle(testInput(setpiece.Verdict{Type: setpiece.TypeUnknown}, false))
	if strings.Contains(quiet, "禁止完全解决") {
		t.Error("quiet-day prompt must not carry set-piece hard rules")
	}
	if !strings.Contains(quiet, "非重大冲突日") {
		t.Error("quiet-day prompt missing normal-day rule")
	}
}

func TestChapterBundleAllowFinal(t *testing.T) {
	c := NewComposer(DefaultBands)

	final := c.ChapterBundle(testInput(setpiece.Verdict{Type: setpiece.TypeUnknown}, true))
	if !strings.Contains(final, "可以写最终章节") {
		t.Error("allowFinal prompt missing final-chapter permission")
	}

	ongoing := c.ChapterBundle(testInput(setpiece.Verdict{Type: setpiece.TypeUnknown}, false))
	if !strings.Contains(ongoing, "主任务不能结束") {
		t.Error("default prompt missing no-ending rule")
	}
}

func TestChapterTailBoundsRunes(t *testing.T) {
	long := strings.Repeat("雪", 1000)
	tail := ChapterTail(long)
	if got := len([]rune(tail)); got != tailRunes {
		t.Errorf("tail length = %d runes, want %d", got, tailRunes)
	}

	short := "短章节"
	if ChapterTail(short) != short {
		t.Error("short chapter should pass through unchanged")
	}
}

func TestSummaryReplayTruncatesAndFilters(t *testing.T) {
	c := NewComposer(DefaultBands)
	entries := []models.StoryEntry{
		{Day: 1, UserEvent: "出发", Chapter: strings.Repeat("山", 500)},
		{Day: 2, UserEvent: "过河", Chapter: "他们渡过了河。"},
		{Day: 3, UserEvent: "今天的事件", Chapter: "不应出现在摘要输入中。"},
	}

	prompt := c.SummaryReplay(entries, 3)
	if strings.Contains(prompt, "今天的事件") {
		t.Error("entries at or after upToDay must be excluded")
	}
	if !strings.Contains(prompt, "第1天：出发") || !strings.Contains(prompt, "第2天：过河") {
		t.Error("prior entries missing from replay prompt")
	}
	if strings.Contains(prompt, strings.Repeat("山", 301)) {
		t.Error("chapter text not truncated to the per-entry bound")
	}
}
