// Package prompts builds the generation requests sent to the external
// generator. The chapter-bundle prompt is a single instruction block; its
// sections are ordered by priority: world identity, action density,
// set-piece continuity (when the day is major), anti-filler, and the JSON
// output contract.
package prompts

import (
	"fmt"
	"strings"

	"moontale/internal/models"
	"moontale/internal/setpiece"
	"moontale/internal/worlds"
)

// Bands are the length constraints restated inside every prompt and enforced
// during validation.
type Bands struct {
	ChapterMinChars int
	ChapterMaxChars int
	TitleMinChars   int
	TitleMaxChars   int
}

// DefaultBands matches the band the validator enforces.
var DefaultBands = Bands{
	ChapterMinChars: 700,
	ChapterMaxChars: 900,
	TitleMinChars:   6,
	TitleMaxChars:   16,
}

// Composer renders prompt text. It has no side effects and holds only the
// configured bands.
type Composer struct {
	bands Bands
}

func NewComposer(bands Bands) *Composer {
	if bands.ChapterMaxChars == 0 {
		bands = DefaultBands
	}
	return &Composer{bands: bands}
}

func (c *Composer) Bands() Bands {
	return c.bands
}

// ComposeInput is everything the chapter-bundle prompt depends on.
type ComposeInput struct {
	World            *worlds.World
	Summary          string
	UserEvent        string
	PriorChapterTail string
	Verdict          setpiece.Verdict
	AllowFinal       bool
}

// tailRunes bounds the prior-chapter context appended to the prompt.
const tailRunes = 300

// ChapterTail returns the last portion of a chapter used as short context
// for the next prompt. Counting is in runes, not bytes.
func ChapterTail(chapter string) string {
	r := []rune(chapter)
	if len(r) <= tailRunes {
		return chapter
	}
	return string(r[len(r)-tailRunes:])
}

// SystemInstruction is the fixed system message for bundle generation.
func (c *Composer) SystemInstruction() string {
	return fmt.Sprintf(
		"你是一位擅长写奇幻故事的作家。请严格按照JSON格式输出，不要添加任何说明或注释。"+
			"**重要：chapter字段必须达到%d-%d中文字符，这是硬性要求。如果章节太短，输出将被视为不合格。**",
		c.bands.ChapterMinChars, c.bands.ChapterMaxChars)
}

// ChapterBundle renders the full instruction block for one chapter-bundle
// generation.
func (c *Composer) ChapterBundle(in ComposeInput) string {
	var b strings.Builder

	b.WriteString("你是一位叙事作家。请根据以下信息，生成完整的章节内容、摘要、标题、锚点和明日建议。\n\n")

	// (a) World identity with boundary rules and entity policy.
	b.WriteString(in.World.FullPromptSnippet())
	b.WriteString("\n\n")

	if in.AllowFinal {
		b.WriteString("规则：用户已明确要求，可以写最终章节。\n\n")
	} else {
		b.WriteString("规则：主任务不能结束，除非用户明确要求最终章节。故事永不重置。\n\n")
	}

	fmt.Fprintf(&b, "权威故事摘要（长期记忆，2-3句话）：\n%s\n\n", in.Summary)
	fmt.Fprintf(&b, "今日事件（用户输入的一句话）：\n%s", in.UserEvent)
	if in.PriorChapterTail != "" {
		fmt.Fprintf(&b, "\n上一章结尾（参考用，保持简短）：%s", ChapterTail(in.PriorChapterTail))
	}
	b.WriteString("\n\n")

	// (b) Action density.
	b.WriteString(`动作密度要求（ACTION DENSITY）：
1) 每章必须包含至少3个不同的动作节拍（action beats）。
   - 动作节拍：可观察的物理动作或决策，改变当前情况。
   - 包括：移动、物体交互、战斗/保护、具体魔法效果、因果序列。
   - 不包括：内心想法、抽象情绪、通用风景描写。
2) 至少一个动作节拍必须涉及：
   - 一二以她擅长的方式行动（感知、解析、屏障、束缚等具体可视化效果），
   或
   - 布布执行保护/对抗导向的动作（如：阻挡、掩护、清除威胁）。
3) 微弧要求（因果链）：
   - 情况 → 动作 → 反应 → 新情况。
   - 章节必须以改变的状态、新线索或新约束结束（不能是"什么都没发生"的结尾）。

`)

	// (d) Hard continuity constraints for major set pieces.
	b.WriteString("多日大场面规则（MULTI-DAY SET PIECES）：\n")
	fmt.Fprintf(&b, "重大冲突识别（服务器端检测结果）：\n- set_piece.isMajor = %t\n- set_piece.type = %s\n- 匹配的关键词：%s\n\n",
		in.Verdict.IsMajor, in.Verdict.Type, joinOrNone(in.Verdict.MatchedKeywords))

	if in.Verdict.IsMajor {
		b.WriteString(`**重要：今日事件是重大冲突，必须严格应用以下硬性结尾规则，即使模型自己的判断不同。**
1) **禁止完全解决**：
   - 不要击败/杀死/捕获主要敌人
   - 不要以平静的"收尾 + 展望明天上路"结束
2) **必须悬疑结尾**：
   章节必须以未解决的时刻结束，自然地延续到明天，例如：
   - 突然的反击 / 敌人展现新能力
   - 地形崩塌 / 火势蔓延 / 能见度丧失
   - 武器损坏 / 盾牌开裂 / 魔法几乎耗尽
   - 被迫撤退到特定地点/物体（与锚点A关联）
   - 冲突中涌现新线索或约束（与锚点B/C关联）
3) **状态变化仍必须发生**：
   即使没有解决，章节必须以改变的情况结束：新伤、新约束、新战术位置、新线索、危险升级
4) 锚点要求：
   - anchors.B **必须**捕捉未解决的核心（例如："敌人的弱点尚未确认/它在守护某物"）
   - anchors.C **必须**捕捉此阶段产生的具体限制（例如："魔力只够维持屏障一次/右臂麻木"）
   - tomorrow_suggestions **必须**包含至少2个直接延续同一大场面的选项（不要切换到旅行/平静场景）

`)
	} else {
		b.WriteString("非重大冲突日：正常章节可以解决小冲突，但仍不得结束主任务。\n\n")
	}

	// (c) Anti-filler.
	b.WriteString(`反废话/低浪费（ANTI-FLUFF）：
1) 环境描写仅在以下情况允许：
   - 直接影响动作（能见度、立足点、声音、寒冷、隐藏、追踪），
   - 引入/更新具体锚点A（地点/物体），
   - 创建与锚点C相关的即时约束（受伤、魔法限制、时间压力）。
   否则压缩为一句短语或省略。
2) 连续不超过2句没有物理动作/决策/后果的句子。
3) 每个段落必须包含至少一个：物理动作、决策、后果或新线索。
4) 优先使用动词而非形容词；每个场景最多使用1-2个具体感官细节，仅在影响动作时使用。
5) 仅通过动作展现情感；不要明确标注情感（如"他很害怕/她很感动"）。

`)

	// (e) Output contract.
	fmt.Fprintf(&b, `输出要求（按优先级）：
**CRITICAL：chapter字段必须达到%d-%d中文字符，这是最重要的输出。如果章节少于%d字符，输出将被视为失败。**

1. event_keywords: 从"今日事件"中直接提取2-4个短短语（每个1-12个字符），必须是今日事件中的具体名词或动作，不要发明新词。
2. title: %d-%d个中文字符，符合世界语调，不要标点符号，不要透露主任务结局。
   **重要约束：标题必须包含至少一个event_keywords中的关键词作为字面子串（完全匹配，区分大小写）。**
3. chapter: 故事文本，动作密集，低废话，符合上述所有规则。
4. next_story_state_summary: 2-3句话的权威摘要，涵盖整个故事至今的关键信息。
5. anchors:
   - A: 具体地点/物品（例如："古老的石桥"、"破损的地图"）
   - B: 未解决的线索/伏笔（例如："远处传来的低语"、"地图上的标记"）
   - C: 角色状态/限制（例如："布布的疲惫"、"魔法的消耗"）
6. tomorrow_suggestions: 恰好5个明日事件建议，每个必须：
   - 明确引用至少一个锚点（usesAnchors数组，值为["A"]、["B"]、["C"]、["A","B"]等）
   - 包含具体的动作动词
   - 不要透露主任务结局，不要引入过多新元素（最多1个新元素）

请严格按照以下JSON格式输出（只输出JSON，不要其他内容）：

{
  "event_keywords": ["关键词1", "关键词2", "关键词3"],
  "title": "章节标题",
  "chapter": "故事文本",
  "next_story_state_summary": "2-3句话的权威摘要",
  "anchors": {"A": "具体地点/物品", "B": "未解决的线索/伏笔", "C": "角色状态/限制"},
  "tomorrow_suggestions": [
    {"text": "建议1", "usesAnchors": ["A"]},
    {"text": "建议2", "usesAnchors": ["B"]},
    {"text": "建议3", "usesAnchors": ["C"]},
    {"text": "建议4", "usesAnchors": ["A", "B"]},
    {"text": "建议5", "usesAnchors": ["A", "B", "C"]}
  ]
}`,
		c.bands.ChapterMinChars, c.bands.ChapterMaxChars, c.bands.ChapterMinChars,
		c.bands.TitleMinChars, c.bands.TitleMaxChars)

	return b.String()
}

// entryTruncRunes bounds each chapter's contribution to the summary-replay
// prompt so the prompt size stays capped for long stories.
const entryTruncRunes = 300

// SummaryReplay renders the compression-only prompt that rebuilds the
// authoritative summary from all entries before upToDay.
func (c *Composer) SummaryReplay(entries []models.StoryEntry, upToDay int) string {
	var parts []string
	for _, e := range entries {
		if e.Day >= upToDay {
			continue
		}
		chapter := e.Chapter
		if r := []rune(chapter); len(r) > entryTruncRunes {
			chapter = string(r[:entryTruncRunes])
		}
		parts = append(parts, fmt.Sprintf("第%d天：%s\n%s", e.Day, e.UserEvent, chapter))
	}

	return fmt.Sprintf(`请根据以下故事章节，生成一个2-3句话的权威摘要，涵盖从第1天到第%d天的所有关键信息：

%s

请输出2-3句话的摘要，只输出摘要，不要其他内容。`, upToDay-1, strings.Join(parts, "\n\n"))
}

// SummarySystemInstruction is the fixed system message for summary replay.
func (c *Composer) SummarySystemInstruction() string {
	return "你负责生成简洁准确的故事摘要。"
}

func joinOrNone(keywords []string) string {
	if len(keywords) == 0 {
		return "无"
	}
	return strings.Join(keywords, "、")
}
