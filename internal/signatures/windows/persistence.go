package windows

import (
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

func persistenceServiceDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "persistence_service",
		Description: "Created a service that was not started",
		Severity:    models.SeverityMedium,
		Categories:  []string{"persistence"},
		Authors:     []string{"Optiv"},
		Minimum:     "1.2",
		TTPs:        []string{"T1050", "T1543", "T1543.003"},
		MBCs:        []string{"OB0012", "F0011"},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runPersistenceService)
	})
}

// runPersistenceService reports services that were created but never started
func runPersistenceService(ec *signatures.Context) (bool, error) {
	report := ec.Report()

	started := make(map[string]bool)
	for _, svc := range report.Summary(models.SummaryStartedServices) {
		started[svc] = true
	}

	seen := make(map[string]bool)
	for _, svc := range report.Summary(models.SummaryCreatedServices) {
		if started[svc] || seen[svc] {
			continue
		}
		seen[svc] = true
		ec.AddData("service", svc)
	}
	return ec.HasData(), nil
}
