package analysis

import (
	"regexp"
	"strings"

	"github.com/chainsentry/chainsentry/types"
)

// Keyword tiers matched case-insensitively against verified source code.
var sourceKeywords = []struct {
	keyword string
	tier    types.Severity
}{
	{"selfdestruct", types.SeverityHigh},
	{"delegatecall", types.SeverityHigh},
	{"callcode", types.SeverityHigh},
	{"tx.origin", types.SeverityHigh},
	{"ecrecover", types.SeverityHigh},
	{"reentrancy", types.SeverityMedium},
	{"assembly", types.SeverityMedium},
	{"create2", types.SeverityMedium},
	{"iszero", types.SeverityMedium},
	{"shadows", types.SeverityLow},
	{"hidden", types.SeverityLow},
	{"onlyowner", types.SeverityLow},
	{"mint", types.SeverityLow},
	{"burn", types.SeverityLow},
}

// scanKeywords returns the tiered keyword hits in the source.
func scanKeywords(source string) []types.KeywordHit {
	lowered := strings.ToLower(source)
	var hits []types.KeywordHit
	for _, kw := range sourceKeywords {
		if strings.Contains(lowered, kw.keyword) {
			hits = append(hits, types.KeywordHit{Keyword: kw.keyword, Tier: kw.tier})
		}
	}
	return hits
}

// hiddenApproveWindow bounds how far past a transfer override an approve
// call still counts as hidden.
const hiddenApproveWindow = 500

var (
	transferOverrideRe = regexp.MustCompile(`function\s+(_transfer|transferFrom|transfer)\s*\([^)]*\)[^{]*\boverride\b`)
	hardcodedBlockRe   = regexp.MustCompile(`require\s*\(\s*\w*[sS]ender\w*\s*!=\s*0x[0-9a-fA-F]{40}`)
	obfuscatedRe       = regexp.MustCompile(`string\.concat\(\s*"[^"]*"\s*,\s*abi\.encodePacked`)
	safeMathRe         = regexp.MustCompile(`using\s+SafeMath\s+for\s+uint256`)
	pragma08Re         = regexp.MustCompile(`pragma\s+solidity\s*[\^>=\s]*0\.8`)
)

// scanHoneypot runs the source-level honeypot heuristics on the original
// (unlowered) source text.
func scanHoneypot(source string) types.HoneypotFlags {
	var flags types.HoneypotFlags

	for _, loc := range transferOverrideRe.FindAllStringIndex(source, -1) {
		end := loc[1] + hiddenApproveWindow
		if end > len(source) {
			end = len(source)
		}
		if strings.Contains(source[loc[1]:end], "approve(") {
			flags.HiddenApprove = true
			break
		}
	}
	flags.HardcodedBlock = hardcodedBlockRe.MatchString(source)
	flags.ObfuscatedEncoding = obfuscatedRe.MatchString(source)
	flags.UnnecessarySafeMath = safeMathRe.MatchString(source) && pragma08Re.MatchString(source)
	return flags
}

// honeypotSeverity maps the flags onto the finding severity scale.
func honeypotSeverity(flags types.HoneypotFlags) types.Severity {
	switch {
	case flags.HiddenApprove:
		return types.SeverityCritical
	case flags.HardcodedBlock:
		return types.SeverityHigh
	case flags.ObfuscatedEncoding:
		return types.SeverityMedium
	case flags.UnnecessarySafeMath:
		return types.SeverityLow
	default:
		return types.SeverityInfo
	}
}

// needsAISummary gates the AI call: only sources with a HIGH or MEDIUM
// keyword, or the hidden-approve flag, are worth a summary.
func needsAISummary(hits []types.KeywordHit, flags types.HoneypotFlags) bool {
	if flags.HiddenApprove {
		return true
	}
	for _, h := range hits {
		if h.Tier == types.SeverityHigh || h.Tier == types.SeverityMedium {
			return true
		}
	}
	return false
}
