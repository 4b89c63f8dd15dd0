package cache

import (
	"slices"
	"strings"
)

// Long-lived tier names. These survive generation changes.
const (
	OfflineFallbackTier       = "offline-fallback"
	ConversationSnapshotsTier = "conversation-snapshots"
)

// OfflineDocumentKey holds the root document in the offline-fallback tier.
// It is not a request key, so lookups by URL never match it.
const OfflineDocumentKey = "GET offline:root-document"

const staticSuffix = "-static"

// Purpose identifies what a tier holds.
type Purpose int

const (
	PurposeStaticAssets Purpose = iota
	PurposeOfflineFallback
	PurposeConversationSnapshots
)

// String returns the string representation of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeStaticAssets:
		return "static-assets"
	case PurposeOfflineFallback:
		return "offline-fallback"
	case PurposeConversationSnapshots:
		return "conversation-snapshots"
	default:
		return "unknown"
	}
}

// TierInfo describes a tier name.
type TierInfo struct {
	Name       string
	Purpose    Purpose
	Generation string // empty for long-lived tiers
}

// StaticTierName returns the static-assets tier name for a generation.
func StaticTierName(generation string) string {
	return generation + staticSuffix
}

// ParseTierName classifies a tier name. Returns false for names that follow
// none of the known conventions.
func ParseTierName(name string) (TierInfo, bool) {
	switch name {
	case OfflineFallbackTier:
		return TierInfo{Name: name, Purpose: PurposeOfflineFallback}, true
	case ConversationSnapshotsTier:
		return TierInfo{Name: name, Purpose: PurposeConversationSnapshots}, true
	}
	if gen, ok := strings.CutSuffix(name, staticSuffix); ok && gen != "" {
		return TierInfo{Name: name, Purpose: PurposeStaticAssets, Generation: gen}, true
	}
	return TierInfo{}, false
}

// Retention decides which tiers belong to a generation.
//
// The visible set is the generation's static tier plus the exempt
// long-lived tiers; every other tier is garbage once the generation takes
// control.
type Retention struct {
	// Generation is the current deployment generation.
	Generation string

	// Exempt lists long-lived tiers kept across generations.
	// Default: offline-fallback, conversation-snapshots
	Exempt []string
}

// NewRetention returns the default retention for a generation.
func NewRetention(generation string) Retention {
	return Retention{
		Generation: generation,
		Exempt:     []string{OfflineFallbackTier, ConversationSnapshotsTier},
	}
}

// StaticTier returns the current static-assets tier name.
func (r Retention) StaticTier() string {
	return StaticTierName(r.Generation)
}

// Keep reports whether the named tier survives activation.
func (r Retention) Keep(name string) bool {
	return name == r.StaticTier() || slices.Contains(r.Exempt, name)
}

// Visible returns the tiers consulted on lookup, in lookup order. Before
// any generation controls only the exempt tiers are visible.
func (r Retention) Visible() []string {
	out := make([]string, 0, len(r.Exempt)+1)
	if r.Generation != "" {
		out = append(out, r.StaticTier())
	}
	return append(out, r.Exempt...)
}

// Garbage returns the names from names that do not survive activation,
// in their original order.
func (r Retention) Garbage(names []string) []string {
	var out []string
	for _, name := range names {
		if !r.Keep(name) {
			out = append(out, name)
		}
	}
	return out
}
