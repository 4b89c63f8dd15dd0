package cache

import (
	"slices"
	"testing"
)

func TestRetention_Garbage(t *testing.T) {
	r := NewRetention("v2")
	before := []string{"v1-static", "v2-static", OfflineFallbackTier, ConversationSnapshotsTier}

	garbage := r.Garbage(before)
	if !slices.Equal(garbage, []string{"v1-static"}) {
		t.Errorf("Garbage() = %v, want [v1-static]", garbage)
	}

	var kept []string
	for _, name := range before {
		if r.Keep(name) {
			kept = append(kept, name)
		}
	}
	want := []string{"v2-static", OfflineFallbackTier, ConversationSnapshotsTier}
	if !slices.Equal(kept, want) {
		t.Errorf("kept = %v, want %v", kept, want)
	}
}

func TestRetention_Visible(t *testing.T) {
	got := NewRetention("v7").Visible()
	want := []string{"v7-static", OfflineFallbackTier, ConversationSnapshotsTier}
	if !slices.Equal(got, want) {
		t.Errorf("Visible() = %v, want %v", got, want)
	}

	got = NewRetention("").Visible()
	want = []string{OfflineFallbackTier, ConversationSnapshotsTier}
	if !slices.Equal(got, want) {
		t.Errorf("Visible() without generation = %v, want %v", got, want)
	}
}

func TestRetention_UnknownTiersAreGarbage(t *testing.T) {
	r := NewRetention("v3")
	if r.Keep("legacy-cache") {
		t.Error("unknown tiers should not be kept")
	}
}

func TestParseTierName(t *testing.T) {
	tests := []struct {
		name   string
		want   TierInfo
		wantOK bool
	}{
		{"v2-static", TierInfo{Name: "v2-static", Purpose: PurposeStaticAssets, Generation: "v2"}, true},
		{OfflineFallbackTier, TierInfo{Name: OfflineFallbackTier, Purpose: PurposeOfflineFallback}, true},
		{ConversationSnapshotsTier, TierInfo{Name: ConversationSnapshotsTier, Purpose: PurposeConversationSnapshots}, true},
		{"-static", TierInfo{}, false},
		{"random", TierInfo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTierName(tt.name)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseTierName(%q) = (%+v, %v), want (%+v, %v)", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPurposeString(t *testing.T) {
	if PurposeStaticAssets.String() != "static-assets" {
		t.Errorf("got %q", PurposeStaticAssets.String())
	}
	if Purpose(99).String() != "unknown" {
		t.Errorf("got %q", Purpose(99).String())
	}
}
