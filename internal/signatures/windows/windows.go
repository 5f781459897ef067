// Package windows holds behavioral signatures for Windows analysis reports.
package windows

import "github.com/bartblaze/community/internal/signatures"

// Definitions returns the Windows signatures in registration order
func Definitions() []*signatures.Definition {
	return []*signatures.Definition{
		persistenceServiceDefinition(),
		browserSecurityDefinition(),
		registryCredentialDumpingDefinition(),
		registryCredentialStoreAccessDefinition(),
		rubeusDefinition(),
		lsassCredentialDumpingDefinition(),
		werLsassDumpDefinition(),
		martiansIEDefinition(),
	}
}
