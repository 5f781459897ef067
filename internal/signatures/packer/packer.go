// Package packer holds signatures over static PE metadata.
package packer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

// Definitions returns the packer signatures
func Definitions() []*signatures.Definition {
	return []*signatures.Definition{
		signatures.NewBatchDefinition(upxMeta(), func() signatures.Batch {
			return signatures.BatchFunc(runUPX)
		}),
		signatures.NewBatchDefinition(entropyMeta(), func() signatures.Batch {
			return signatures.BatchFunc(runEntropy)
		}),
	}
}

// peSections returns the sections of a file target, or nil for other targets
// and reports without PE data
func peSections(r *models.AnalysisReport) []*models.PESection {
	if !r.IsFileTarget() || r.TargetFile() == nil {
		return nil
	}
	return r.PESections()
}

// ParseSize parses a section size such as "0x00000400". Values without a
// prefix are read as hex, matching the static analyzer output.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid section size %q: %w", s, err)
	}
	return n, nil
}
