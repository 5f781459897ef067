package packer

import (
	"strings"

	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

func upxMeta() *models.SignatureMeta {
	return &models.SignatureMeta{
		Name:        "packer_upx",
		Description: "The executable is compressed using UPX",
		Severity:    models.SeverityLow,
		Categories:  []string{"packer"},
		Authors:     []string{"Michael Boman", "nex", "Optiv"},
		Minimum:     "1.3",
		TTPs:        []string{"T1045", "T1027", "T1027.002"},
		MBCs:        []string{"OB0001", "OB0002", "OB0006", "F0001", "F0001.008"},
	}
}

// runUPX records every section whose name starts with .upx
func runUPX(ec *signatures.Context) (bool, error) {
	matched := false
	for _, section := range peSections(ec.Report()) {
		if strings.HasPrefix(strings.ToLower(section.Name), ".upx") {
			ec.AddData("section", section)
			matched = true
		}
	}
	return matched, nil
}
