package setpiece

import (
	"reflect"
	"testing"
)

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		wantMajor bool
		wantType  Type
	}{
		{
			name:      "dragon combat",
			event:     "布布和巨龙搏斗，一二释放魔法支援",
			wantMajor: true,
			wantType:  TypeBossFight,
		},
		{
			name:      "undead army siege",
			event:     "他们被亡灵军团围攻",
			wantMajor: true,
			wantType:  TypeSiege,
		},
		{
			name:      "forced flight",
			event:     "一二和布布被迫逃亡",
			wantMajor: true,
			wantType:  TypeEscape,
		},
		{
			name:      "castle collapse and broken seal",
			event:     "古堡崩塌，封印失效",
			wantMajor: true,
			wantType:  TypeDisaster,
		},
		{
			name:      "quiet discovery",
			event:     "一二在森林中发现了一处古老的遗迹",
			wantMajor: false,
			wantType:  TypeUnknown,
		},
		{
			name:      "siege by literal compound",
			event:     "敌军开始攻城，大战一触即发",
			wantMajor: true,
			wantType:  TypeSiege,
		},
		{
			name:      "disaster overrides combat",
			event:     "决战中地面突然崩塌",
			wantMajor: true,
			wantType:  TypeDisaster,
		},
		{
			name:      "empty event",
			event:     "",
			wantMajor: false,
			wantType:  TypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.event)
			if got.IsMajor != tt.wantMajor {
				t.Errorf("IsMajor = %v, want %v", got.IsMajor, tt.wantMajor)
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	event := "布布和巨龙搏斗，一二释放魔法支援"
	first := Classify(event)
	for i := 0; i < 50; i++ {
		got := Classify(event)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: verdict diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassifyNoHitsHasEmptyMatches(t *testing.T) {
	got := Classify("他们在河边休息了一天")
	if len(got.MatchedKeywords) != 0 {
		t.Errorf("expected no matched keywords, got %v", got.MatchedKeywords)
	}
}

func TestClassifyDedupsMatches(t *testing.T) {
	got := Classify("亡灵军团的军团长率军围攻")
	seen := map[string]int{}
	for _, kw := range got.MatchedKeywords {
		seen[kw]++
		if seen[kw] > 1 {
			t.Errorf("keyword %q appears more than once in %v", kw, got.MatchedKeywords)
		}
	}
}
