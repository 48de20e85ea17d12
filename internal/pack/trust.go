package pack

import "strings"

// Tier is the closed set of trust classifications a candidate can carry.
type Tier string

const (
	TierTrusted    Tier = "trusted"
	TierUntrusted  Tier = "untrusted"
	TierQuarantine Tier = "quarantined"
	TierUnknown    Tier = "unknown"
)

var trustAliases = map[string]Tier{
	"trusted":     TierTrusted,
	"untrusted":   TierUntrusted,
	"quarantined": TierQuarantine,
	"quarantine":  TierQuarantine,
}

// NormalizeTrust accepts detail.trust, detail.trust_tier, or nested
// detail.provenance.* values and maps them onto the closed tier set;
// anything else, or absence, yields TierUnknown.
func NormalizeTrust(detail map[string]any) Tier {
	if detail == nil {
		return TierUnknown
	}
	if v, ok := detail["trust"]; ok {
		if t, ok := parseTrustValue(v); ok {
			return t
		}
	}
	if v, ok := detail["trust_tier"]; ok {
		if t, ok := parseTrustValue(v); ok {
			return t
		}
	}
	if prov, ok := detail["provenance"].(map[string]any); ok {
		for _, key := range []string{"trust", "trust_tier"} {
			if v, ok := prov[key]; ok {
				if t, ok := parseTrustValue(v); ok {
					return t
				}
			}
		}
	}
	return TierUnknown
}

func parseTrustValue(v any) (Tier, bool) {
	s, ok := v.(string)
	if !ok {
		return TierUnknown, false
	}
	t, ok := trustAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}
