package worlds

import (
	"strings"
	"testing"
)

func TestRegistryIsComplete(t *testing.T) {
	want := []string{"middle_earth", "wizard_school", "future_city"}
	if len(Registry) != len(want) {
		t.Fatalf("registry has %d worlds, want %d", len(Registry), len(want))
	}
	for _, id := range want {
		w := ByID(id)
		if w == nil {
			t.Fatalf("world %s missing", id)
		}
		if w.InitialSummary == "" || w.PromptSnippet == "" || w.BoundaryRules == "" || w.ActionStyle == "" {
			t.Errorf("world %s has empty prompt material", id)
		}
	}
	if ByID(DefaultID) == nil {
		t.Errorf("default world %s not in registry", DefaultID)
	}
	if ByID("atlantis") != nil {
		t.Error("unknown id must return nil")
	}
}

func TestFullPromptSnippetRendersPolicies(t *testing.T) {
	me := ByID("middle_earth")
	snippet := me.FullPromptSnippet()

	for _, section := range []string{"世界设定：", "叙事边界规则：", "动作风格：", "实体引入规则："} {
		if !strings.Contains(snippet, section) {
			t.Errorf("snippet missing section %q", section)
		}
	}
	// Both entity policies are forbidden in middle_earth.
	if !strings.Contains(snippet, "新命名角色：禁止引入") || !strings.Contains(snippet, "新命名地点：禁止引入") {
		t.Error("forbidden policies not rendered")
	}

	school := ByID("wizard_school")
	if !strings.Contains(school.FullPromptSnippet(), "新命名角色：有限引入") {
		t.Error("limited policy not rendered for wizard_school")
	}
}
