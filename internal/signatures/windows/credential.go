package windows

import (
	"fmt"
	"strings"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

// Access masks that let the caller read another process's memory
var lsassReadAccess = map[string]bool{
	"0x00001010": true,
	"0x00001038": true,
}

func lsassCredentialDumpingDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:           "lsass_credential_dumping",
		Description:    "Requests access to read memory contents of lsass.exe potentially indicative of credential dumping",
		Severity:       models.SeverityMedium,
		Categories:     []string{"persistence", "lateral", "credential_dumping"},
		Authors:        []string{"Kevin Ross"},
		Minimum:        "1.3",
		TTPs:           []string{"T1003", "T1003.001"},
		MBCs:           []string{"OB0005"},
		FilterAPINames: []string{"NtOpenProcess", "Process32NextW", "ReadProcessMemory"},
		References: []string{
			"cyberwardog.blogspot.co.uk/2017/03/chronicles-of-threat-hunter-hunting-for_22.html",
			"cyberwardog.blogspot.co.uk/2017/04/chronicles-of-threat-hunter-hunting-for.html",
		},
	}
	return signatures.NewEventedDefinition(meta, func() signatures.Evented {
		return newLsassDumping()
	})
}

// lsassDumping correlates process enumeration, an elevated open and a memory
// read against lsass.exe
type lsassDumping struct {
	signatures.Completion

	pids         map[string]bool // lsass process identifiers seen in enumeration
	handles      map[string]bool // handles opened with read access
	readAccess   map[string]bool // process names that obtained a handle
	credDumpers  map[string]bool // process names that read lsass memory
	targetName   string
	accessValues map[string]bool
}

func newLsassDumping() *lsassDumping {
	return &lsassDumping{
		pids:         make(map[string]bool),
		handles:      make(map[string]bool),
		readAccess:   make(map[string]bool),
		credDumpers:  make(map[string]bool),
		targetName:   "lsass.exe",
		accessValues: lsassReadAccess,
	}
}

// OnCall advances the per-process correlation
func (s *lsassDumping) OnCall(ec *signatures.Context, call *models.Call, proc *models.Process) error {
	switch call.API {
	case "Process32NextW":
		if strings.EqualFold(ec.Argument(call, "ProcessName"), s.targetName) {
			if pid := ec.Argument(call, "ProcessId"); pid != "" {
				s.pids[pid] = true
			}
		}

	case "NtOpenProcess":
		if !s.pids[ec.Argument(call, "ProcessIdentifier")] || !s.accessValues[ec.Argument(call, "DesiredAccess")] {
			return nil
		}
		pname := proc.LowerName()
		if s.readAccess[pname] {
			return nil
		}
		s.readAccess[pname] = true
		s.handles[ec.Argument(call, "ProcessHandle")] = true
		ec.AddData("lsass read access", fmt.Sprintf("The process %s requested read access to the lsass.exe process", pname))
		ec.MarkCall()

	case "ReadProcessMemory":
		if !s.handles[ec.Argument(call, "ProcessHandle")] {
			return nil
		}
		pname := proc.LowerName()
		if s.credDumpers[pname] {
			return nil
		}
		s.credDumpers[pname] = true
		ec.Refine("Locates and dumps memory from the lsass.exe process indicative of credential dumping", models.SeverityHigh)
		ec.AddData("lsass credential dumping", fmt.Sprintf("The process %s is reading memory from the lsass.exe process", pname))
		ec.MarkCall()
	}
	return nil
}

func werLsassDumpDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:           "dump_lsa_via_windows_error_reporting",
		Description:    "Attempts to create LSASS crash dump via Windows Error Reporting process",
		Severity:       models.SeverityMedium,
		Categories:     []string{"credential_access", "credential_dumping"},
		Authors:        []string{"@para0x0dise"},
		Minimum:        "0.5",
		TTPs:           []string{"T1003"},
		FilterAPINames: []string{"NtCreateFile"},
		References: []string{
			"https://github.com/elastic/protections-artifacts/blob/main/behavior/rules/windows/credential_access_lsa_dump_via_windows_error_reporting.toml",
		},
	}
	return signatures.NewEventedDefinition(meta, func() signatures.Evented {
		return &werLsassDump{seen: make(map[string]bool)}
	})
}

// werLsassDump flags lsass dump files created by the error reporting process
type werLsassDump struct {
	signatures.Completion
	seen map[string]bool
}

func (s *werLsassDump) OnCall(ec *signatures.Context, call *models.Call, proc *models.Process) error {
	switch proc.LowerName() {
	case "werfaultsecure.exe", "werfault.exe":
	default:
		return nil
	}

	filename := ec.Argument(call, "FileName")
	lower := strings.ToLower(filename)
	if !strings.HasSuffix(lower, ".dmp") || !strings.Contains(lower, "lsass_") || s.seen[filename] {
		return nil
	}
	s.seen[filename] = true
	ec.AddData("file", filename)
	ec.MarkCall()
	return nil
}

func registryCredentialDumpingDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "registry_credential_dumping",
		Description: "Dumps credentials from the registry using the Windows reg utility",
		Severity:    models.SeverityMedium,
		Categories:  []string{"persistence", "lateral", "credential_dumping"},
		Authors:     []string{"Kevin Ross"},
		Minimum:     "1.3",
		TTPs:        []string{"T1003", "T1003.002"},
		MBCs:        []string{"OB0005"},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runRegistryCredentialDumping)
	})
}

// runRegistryCredentialDumping looks for `reg save` of the SAM or SYSTEM hives
func runRegistryCredentialDumping(ec *signatures.Context) (bool, error) {
	for _, cmdline := range ec.Report().Summary(models.SummaryExecutedCommands) {
		lower := strings.ToLower(cmdline)
		if strings.Contains(lower, "reg") && strings.Contains(lower, "save") &&
			(strings.Contains(lower, `hklm\system`) || strings.Contains(lower, `hklm\sam`)) {
			ec.AddData("command", cmdline)
		}
	}
	return ec.HasData(), nil
}

var credentialStoreKeys = []string{
	`HKEY_LOCAL_MACHINE\\SAM$`,
	`HKEY_LOCAL_MACHINE\\SYSTEM$`,
}

func registryCredentialStoreAccessDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "registry_credential_store_access",
		Description: "Accessed credential storage registry keys",
		Severity:    models.SeverityMedium,
		Categories:  []string{"persistence", "lateral", "credential_dumping"},
		Authors:     []string{"Kevin Ross"},
		Minimum:     "1.3",
		TTPs:        []string{"T1003", "T1003.002"},
		MBCs:        []string{"OB0005"},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runRegistryCredentialStoreAccess)
	})
}

// runRegistryCredentialStoreAccess matches the SAM and SYSTEM hive roots.
// PDF readers touch these keys routinely, so PDF targets are downgraded.
func runRegistryCredentialStoreAccess(ec *signatures.Context) (bool, error) {
	for _, indicator := range credentialStoreKeys {
		key, ok, err := ec.First(matcher.DomainKey, matcher.Regex(indicator))
		if err != nil {
			return false, err
		}
		if ok {
			ec.AddData("regkey", key)
		}
	}
	if strings.Contains(ec.Report().FileType(), "PDF") {
		ec.Refine("", models.SeverityInfo)
	}
	return ec.HasData(), nil
}

var rubeusArguments = []string{
	"asreproast",
	"dump /service:krbtgt",
	"dump /luid",
	"kerberoast",
	"createnetonly /program",
	"ptt /ticket",
	"/impersonateuser",
	"renew /ticket",
	"asktgt /user",
	"asktgs /ticket",
	"harvest /interval",
	"s4u /user",
	"s4u /ticket",
	"hash /password",
	"tgtdeleg",
	"golden /des",
	"golden /rc4",
	"golden /aes128",
	"golden /aes256",
	"changepw /ticket",
}

func rubeusDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "kerberos_credential_access_via_rubeus",
		Description: "Attempts to manipulate/abuse Kerberos Ticketing System via Rubeus toolset",
		Severity:    models.SeverityMedium,
		Categories:  []string{"credential_access", "credential_dumping"},
		Authors:     []string{"@para0x0dise"},
		Minimum:     "0.5",
		TTPs:        []string{"T1003"},
		References: []string{
			"https://github.com/elastic/protections-artifacts/blob/main/behavior/rules/windows/credential_access_potential_credential_access_via_rubeus.toml",
		},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runRubeus)
	})
}

// runRubeus matches the first command line invoking a Rubeus verb
func runRubeus(ec *signatures.Context) (bool, error) {
	for _, cmdline := range ec.Report().Summary(models.SummaryExecutedCommands) {
		lower := strings.ToLower(cmdline)
		if !strings.Contains(lower, "rubeus") {
			continue
		}
		for _, arg := range rubeusArguments {
			if strings.Contains(lower, arg) {
				ec.AddData("command", cmdline)
				return true, nil
			}
		}
	}
	return false, nil
}
