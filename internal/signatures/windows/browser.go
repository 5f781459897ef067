package windows

import (
	"strings"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

var browserSecurityKeys = []string{
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Internet Explorer\\Privacy\\EnableInPrivateMode$`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Internet Explorer\\PhishingFilter\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\Zones\\[0-4]\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\ZoneMap\\Domains\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\ZoneMap\\EscDomains\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\ZoneMap\\EscRanges\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\ZoneMap\\IEHarden$`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Windows\\CurrentVersion\\Internet Settings\\CertificateRevocation$`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Internet Explorer\\Main\\NoUpdateCheck$`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Internet Explorer\\Security\\.*`,
	`.*\\SOFTWARE\\(Wow6432Node\\)?Microsoft\\Internet Explorer\\Main\\FeatureControl\\.*`,
}

// keys written by these programs are expected
var browserSecuritySafelist = []string{"zoom.exe"}

func browserSecurityDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "browser_security",
		Description: "Attempts to modify browser security settings",
		Severity:    models.SeverityMedium,
		Categories:  []string{"browser", "clickfraud", "banker"},
		Authors:     []string{"Kevin Ross", "Optiv"},
		Minimum:     "1.2",
		TTPs:        []string{"T1089", "T1112", "T1562", "T1562.001"},
		MBCs:        []string{"OB0006", "E1112", "F0004", "OC0008", "C0036", "C0036.001"},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runBrowserSecurity)
	})
}

// runBrowserSecurity collects every written browser security key
func runBrowserSecurity(ec *signatures.Context) (bool, error) {
	if ec.Report().Package() == "pdf" {
		return false, nil
	}

	for _, indicator := range browserSecurityKeys {
		keys, err := ec.All(matcher.DomainWriteKey, matcher.Regex(indicator))
		if err != nil {
			return false, err
		}
		for _, key := range keys {
			if !safelisted(key, browserSecuritySafelist) {
				ec.AddData("regkey", key)
			}
		}
	}
	return ec.HasData(), nil
}

func safelisted(value string, safelist []string) bool {
	lower := strings.ToLower(value)
	for _, item := range safelist {
		if strings.Contains(lower, item) {
			return true
		}
	}
	return false
}
