package packer

import (
	"fmt"

	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

const (
	// sections above this entropy count as compressed or encrypted
	highEntropy = 6.8
	// share of compressed bytes in the whole image needed to match
	compressedRatio = 0.2
)

func entropyMeta() *models.SignatureMeta {
	return &models.SignatureMeta{
		Name:        "packer_entropy",
		Description: "The binary likely contains encrypted or compressed data",
		Severity:    models.SeverityLow,
		Categories:  []string{"packer"},
		Authors:     []string{"Robby Zeitfuchs", "nex", "Optiv"},
		Minimum:     "1.3",
		TTPs:        []string{"T1045", "T1027", "T1027.002"},
		MBCs:        []string{"OB0001", "OB0002", "OB0006", "F0001"},
		References: []string{
			"http://www.forensickb.com/2013/03/file-entropy-explained.html",
			"http://virii.es/U/Using%20Entropy%20Analysis%20to%20Find%20Encrypted%20and%20Packed%20Malware.pdf",
		},
	}
}

// runEntropy matches when high-entropy sections make up more than a fifth of
// the raw section data
func runEntropy(ec *signatures.Context) (bool, error) {
	sections := peSections(ec.Report())
	if len(sections) == 0 {
		return false, nil
	}

	var total, compressed int64
	for _, section := range sections {
		size, err := ParseSize(section.SizeOfData)
		if err != nil {
			return false, fmt.Errorf("section %s: %w", section.Name, err)
		}
		total += size

		entropy, err := section.Entropy.Float64()
		if err != nil {
			return false, fmt.Errorf("section %s: invalid entropy %q: %w", section.Name, section.Entropy, err)
		}
		if entropy > highEntropy {
			ec.AddData("section", section)
			compressed += size
		}
	}

	return total > 0 && float64(compressed)/float64(total) > compressedRatio, nil
}
