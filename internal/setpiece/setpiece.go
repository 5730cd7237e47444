// Package setpiece detects major multi-day conflicts (set pieces) in the
// user's daily event. The verdict drives the hard continuity constraints in
// the chapter prompt: a major conflict must not be resolved within a single
// chapter.
package setpiece

import "strings"

// Type classifies the kind of set piece.
type Type string

const (
	TypeBossFight Type = "boss_fight"
	TypeEscape    Type = "escape"
	TypeSiege     Type = "siege"
	TypeDisaster  Type = "disaster"
	TypeUnknown   Type = "unknown"
)

// Verdict is the deterministic classification of one event text.
type Verdict struct {
	IsMajor         bool     `json:"isMajor"`
	Type            Type     `json:"type"`
	MatchedKeywords []string `json:"matched"`
}

// Keyword sets. Matching is raw substring containment against the event
// text: no tokenization, no stemming. Downstream prompt behavior depends on
// these exact semantics.
var (
	enemyKeywords = []string{
		"巨龙", "恶龙", "古龙", "龙", "魔王", "巨兽", "巨人", "亡灵军团", "军团",
	}

	conflictKeywords = []string{
		"搏斗", "死战", "血战", "决战", "大战", "围攻", "突围", "追杀", "逃亡", "破阵",
	}

	escapeTriggers   = []string{"逃亡", "突围", "追杀"}
	siegeTriggers    = []string{"围攻", "军团"}
	decisiveTriggers = []string{"决战", "死战", "搏斗"}

	disasterKeywords = []string{
		"崩塌", "灾变", "暴走", "失控", "爆裂", "封印松动", "封印失效",
	}
)

func matchAny(event string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(event, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func containsAny(hits []string, triggers []string) bool {
	for _, h := range hits {
		for _, t := range triggers {
			if h == t {
				return true
			}
		}
	}
	return false
}

// Classify returns the set-piece verdict for today's user event. It is a
// pure function: same input, same output, across calls and restarts.
func Classify(eventText string) Verdict {
	event := strings.TrimSpace(eventText)

	var matched []string
	verdict := Verdict{Type: TypeUnknown}

	enemyHits := matchAny(event, enemyKeywords)
	if len(enemyHits) > 0 {
		matched = append(matched, enemyHits...)
		verdict.Type = TypeBossFight
		verdict.IsMajor = true
	}

	conflictHits := matchAny(event, conflictKeywords)
	if len(conflictHits) > 0 {
		matched = append(matched, conflictHits...)

		switch {
		case containsAny(conflictHits, escapeTriggers):
			verdict.Type = TypeEscape
			verdict.IsMajor = true
		case containsAny(conflictHits, siegeTriggers) ||
			strings.Contains(event, "围城") || strings.Contains(event, "攻城"):
			verdict.Type = TypeSiege
			verdict.IsMajor = true
		case containsAny(conflictHits, decisiveTriggers):
			verdict.Type = TypeBossFight
			verdict.IsMajor = true
		case !verdict.IsMajor:
			// Remaining conflict words (大战, 血战, 破阵) still mark a major
			// set piece.
			verdict.Type = TypeBossFight
			verdict.IsMajor = true
		}
	}

	// Disaster takes classification priority over any earlier type.
	disasterHits := matchAny(event, disasterKeywords)
	if len(disasterHits) > 0 {
		matched = append(matched, disasterHits...)
		verdict.Type = TypeDisaster
		verdict.IsMajor = true
	}

	// Enemy plus conflict is definitely major.
	if len(enemyHits) > 0 && len(conflictHits) > 0 {
		verdict.IsMajor = true
		if verdict.Type == TypeUnknown {
			verdict.Type = TypeBossFight
		}
	}

	verdict.MatchedKeywords = dedup(matched)
	return verdict
}

func dedup(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
