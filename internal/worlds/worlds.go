// Package worlds holds the immutable world configurations. A world fixes the
// narrative tone, the scene boundaries and the entity-introduction policy for
// every chapter generated in it. The registry is loaded once at startup and
// read-only afterwards.
package worlds

import "strings"

// EntityPolicy controls whether the generator may introduce new named
// characters or places.
type EntityPolicy string

const (
	PolicyForbidden EntityPolicy = "forbidden"
	PolicyLimited   EntityPolicy = "limited"
	PolicyAllowed   EntityPolicy = "allowed"
)

// World is one immutable world configuration.
type World struct {
	ID             string
	DisplayName    string
	Description    string
	InitialSummary string

	// PromptSnippet is the base world-identity block injected into every
	// chapter prompt.
	PromptSnippet string

	// BoundaryRules restricts where scenes may occur.
	BoundaryRules string

	// ActionStyle describes the preferred action types for this world.
	ActionStyle string

	NewNamedCharacters EntityPolicy
	NewNamedPlaces     EntityPolicy

	// LongArc is the pacing guidance for multi-day progression.
	LongArc string
}

// FullPromptSnippet renders the world identity block with boundary rules,
// action style and the entity policy expressed as natural-language rules.
func (w *World) FullPromptSnippet() string {
	var b strings.Builder
	b.WriteString(w.PromptSnippet)

	if w.BoundaryRules != "" {
		b.WriteString("\n\n")
		b.WriteString(w.BoundaryRules)
	}
	if w.ActionStyle != "" {
		b.WriteString("\n\n")
		b.WriteString(w.ActionStyle)
	}

	rules := entityPolicyRules(w.NewNamedCharacters, w.NewNamedPlaces)
	if len(rules) > 0 {
		b.WriteString("\n\n实体引入规则：")
		for _, rule := range rules {
			b.WriteString("\n- ")
			b.WriteString(rule)
		}
	}

	return b.String()
}

func entityPolicyRules(characters, places EntityPolicy) []string {
	var rules []string

	switch characters {
	case PolicyForbidden:
		rules = append(rules, "新命名角色：禁止引入，故事应围绕现有角色展开")
	case PolicyLimited:
		rules = append(rules, "新命名角色：有限引入，不要一次引入多个，优先使用现有角色")
	case PolicyAllowed:
		rules = append(rules, "新命名角色：允许引入，但应适度且符合故事需要")
	}

	switch places {
	case PolicyForbidden:
		rules = append(rules, "新命名地点：禁止引入，使用现有地点或通用描述（如\"古老的石桥\"、\"森林深处\"）")
	case PolicyLimited:
		rules = append(rules, "新命名地点：有限引入，优先使用现有地点，新地点应服务于情节")
	case PolicyAllowed:
		rules = append(rules, "新命名地点：允许引入，但应适度且符合故事需要")
	}

	return rules
}

// Registry is the fixed set of available worlds.
var Registry = []World{
	{
		ID:          "middle_earth",
		DisplayName: "中土世界 (Middle Earth)",
		Description: "托尔金式高奇幻世界，寻找「月影宝石」的史诗旅程",
		InitialSummary: "一二和布布是一对伴侣，他们踏上了寻找「月影宝石」的旅程。" +
			"一二擅长魔法，性格沉静；布布勇敢坚强，擅长近战。他们相互扶持，在奇幻世界中前行。",
		PromptSnippet: `世界设定：
- 类型：托尔金式高奇幻
- 语调：史诗、温暖、克制（无现代俚语，无喜剧）
- 主任务：寻找「月影宝石」
- 主题：陪伴、勇气、安静的选择

角色：
- 一二（女性）：沉静、深思、擅长魔法
- 布布（男性）：勇敢、保护性强、擅长近战
- 关系：他们是伴侣；情感通过行动展现，而非说明`,
		BoundaryRules: `叙事边界规则：
- 重点：长途旅行、荒野探索、古老遗迹、跨地域的旅程
- 避免：频繁引入新的命名角色和地点
- 场景应围绕：荒野、森林、山脉、废墟、古道、河流、洞穴
- 故事推进通过：旅程中的遭遇、环境挑战、古老线索、资源限制`,
		ActionStyle: `动作风格：
- 优先动作类型：旅行、战斗、生存、保护、资源管理、地形导航
- 动作应体现：长途跋涉的疲惫、野外生存的智慧、战斗中的配合、对环境的适应
- 避免：室内场景过多、静态对话、重复性日常活动`,
		NewNamedCharacters: PolicyForbidden,
		NewNamedPlaces:     PolicyForbidden,
		LongArc:            "逐日递进的线索披露与资源耗散，保持旅途节奏",
	},
	{
		ID:          "wizard_school",
		DisplayName: "魔法学院 (Wizard School)",
		Description: "魔法学院背景，探索古老魔法与学院秘密",
		InitialSummary: "一二和布布是魔法学院的学生，他们发现了学院中隐藏的秘密。" +
			"一二擅长理论魔法，性格冷静；布布擅长实战魔法，保护欲强。他们一起探索学院的奥秘。",
		PromptSnippet: `世界设定：
- 类型：魔法学院奇幻（学院内部与其相关区域）
- 语调：神秘、克制、紧张而温暖（无现代俚语，无喜剧）
- 世界重心：学习、规则、隐藏的危险、未被理解的魔法
- 核心驱动力：事件的连锁反应，而非远征或战争
- 主线方向：探索学院中逐渐浮现的秘密（不得快速揭示或一次性解决）

角色：
- 一二（女性）：冷静、理性，擅长精细与感知型魔法，习惯先观察再行动
- 布布（男性）：勇敢、反应迅速，偏向防护、对抗与实用魔法，常在关键时刻挡在前方
- 关系：他们是伴侣；信任与情感通过行动、站位与选择体现，而非直接说明`,
		BoundaryRules: `叙事边界规则：
- 重点：学院内部场景（教室、走廊、塔楼、图书馆、禁地、训练场）
- 避免：长途旅行、跨地域的史诗旅程、频繁离开学院
- 场景应围绕：学院建筑、魔法设施、秘密通道、古老教室、禁书区
- 故事推进通过：学院事件、规则冲突、秘密发现、魔法事故、决斗、调查`,
		ActionStyle: `动作风格：
- 优先动作类型：施法、决斗、调查、意外事件、规则违反、潜行、解谜
- 动作应体现：魔法的具体效果、学院生活的节奏、秘密探索的紧张、学术与实战的平衡
- 避免：长时间旅行、野外生存、大规模战斗、远离学院的场景`,
		NewNamedCharacters: PolicyLimited,
		NewNamedPlaces:     PolicyLimited,
		LongArc:            "多日事件分阶段展开（异常显现 → 应对 → 新限制）",
	},
	{
		ID:          "future_city",
		DisplayName: "未来城市 (Future City)",
		Description: "高密度未来城市，系统、权限与异常信号交织的科幻叙事",
		InitialSummary: "一二和布布生活在一座高度系统化的未来城市中。城市由层层权限、自动系统与无处不在的监控维系运转。" +
			"当异常开始出现，他们被迫在城市的缝隙中行动，寻找真相与出路。",
		PromptSnippet: `世界设定：
- 类型：未来城市科幻
- 语调：冷静、紧张、克制而真实（无现代俚语，无喜剧）
- 世界重心：系统、权限、信息不对称、被忽视的异常
- 核心张力：城市"看似正常"的运转正在偏离
- 主线方向：逐步揭开城市系统背后的异常（不得快速揭示或一次性解决）

角色：
- 一二（女性）：冷静、分析能力强，擅长感知系统异常、解析数据与制定最小暴露策略
- 布布（男性）：反应迅速，擅长物理行动、干扰系统与在关键时刻保护撤离
- 关系：他们是伴侣；信任通过站位、分工与撤退决策体现，而非说明`,
		BoundaryRules: `叙事边界规则：
- 重点：城市内部结构（街区、通道、平台、节点、维护空间、监控盲区）
- 避免：长途旅行、自然风景、远离城市的场景
- 场景应围绕：城市建筑、系统节点、数据流、权限边界、隐藏通道
- 故事推进通过：系统异常、权限冲突、追踪与反追踪、时间窗口压力`,
		ActionStyle: `动作风格：
- 优先动作类型：系统操作、潜行、快速移动、物理干预、时间争取
- 动作应体现：系统反应的即时性、权限的约束、追踪的紧迫、选择的代价
- 避免：长时间静态对话、大规模战斗、远离系统核心的场景`,
		NewNamedCharacters: PolicyLimited,
		NewNamedPlaces:     PolicyLimited,
		LongArc:            "逐日揭露系统异常 → 权限冲突 → 限时窗口压力",
	},
}

// ByID returns the world with the given id, or nil.
func ByID(id string) *World {
	for i := range Registry {
		if Registry[i].ID == id {
			return &Registry[i]
		}
	}
	return nil
}

// DefaultID is used when a story was created without an explicit world.
const DefaultID = "middle_earth"
