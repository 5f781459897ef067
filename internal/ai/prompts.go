package ai

import (
	"fmt"
	"strings"
)

// LanguageInstruction returns the language instruction for prompts
func LanguageInstruction(lang string) string {
	switch lang {
	case "ru":
		return "\n\nIMPORTANT: Respond in Russian (Русский). All text fields (explanation, remediation, indicators) must be in Russian."
	case "es":
		return "\n\nIMPORTANT: Respond in Spanish (Español). All text fields (explanation, remediation, indicators) must be in Spanish."
	case "de":
		return "\n\nIMPORTANT: Respond in German (Deutsch). All text fields (explanation, remediation, indicators) must be in German."
	default:
		return ""
	}
}

// QuickFilterSystemPrompt is used for fast triage with Haiku
const QuickFilterSystemPrompt = `You are a malware analyst triaging behavioral signature hits from a Windows sandbox.
Decide whether a hit needs deep analysis or is routine behavior of benign software.

OUTPUT: Valid JSON only, no markdown formatting.
{"needs_analysis": true|false, "reason": "brief explanation (max 100 chars)", "confidence": 0-100}`

// TriageSystemPrompt is used for deep analysis of a single finding
const TriageSystemPrompt = `You are a senior malware analyst reviewing behavioral signature hits produced by a sandbox.
Each hit names the signature, its MITRE ATT&CK techniques and the evidence it matched
(registry keys, files, mutexes, command lines, process paths or API calls).

Judge whether the evidence shows malicious intent, given the submitted target and the
analysis package. Installers, browsers and document readers touch many sensitive
locations legitimately; weigh that against the technique.

OUTPUT: Valid JSON only, no markdown formatting.
{
  "verdict": "malicious|suspicious|false_positive|benign",
  "confidence": 0-100,
  "explanation": "what the evidence shows",
  "remediation": "recommended response, empty when benign",
  "indicators": ["concrete IOCs taken from the evidence"],
  "risk_level": "critical|high|medium|low"
}`

// BuildQuickFilterPrompt builds the Haiku pre-filter prompt
func BuildQuickFilterPrompt(req *TriageRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signature: %s (%s)\n", req.SignatureName, req.Severity)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	if req.TargetName != "" {
		fmt.Fprintf(&b, "Target: %s\n", req.TargetName)
	}
	writeEvidence(&b, req.Evidence, 5)
	return b.String()
}

// BuildTriagePrompt builds the deep analysis prompt
func BuildTriagePrompt(req *TriageRequest, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signature: %s\n", req.SignatureName)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	fmt.Fprintf(&b, "Severity: %s\n", req.Severity)
	if len(req.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(req.Categories, ", "))
	}
	if len(req.Families) > 0 {
		fmt.Fprintf(&b, "Families: %s\n", strings.Join(req.Families, ", "))
	}
	if len(req.TTPs) > 0 {
		fmt.Fprintf(&b, "ATT&CK: %s\n", strings.Join(req.TTPs, ", "))
	}
	if req.TargetName != "" {
		fmt.Fprintf(&b, "Target: %s (%s)\n", req.TargetName, req.TargetType)
	}
	if req.Package != "" {
		fmt.Fprintf(&b, "Analysis package: %s\n", req.Package)
	}
	writeEvidence(&b, req.Evidence, 25)
	b.WriteString(LanguageInstruction(lang))
	return b.String()
}

func writeEvidence(b *strings.Builder, evidence []string, limit int) {
	if len(evidence) == 0 {
		return
	}
	b.WriteString("Evidence:\n")
	for i, e := range evidence {
		if i == limit {
			fmt.Fprintf(b, "  ... %d more\n", len(evidence)-limit)
			break
		}
		fmt.Fprintf(b, "  - %s\n", e)
	}
}
