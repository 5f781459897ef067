package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

func evaluate(t *testing.T, d *signatures.Definition, summary map[string][]string) (*signatures.Context, bool) {
	t.Helper()
	report := &models.AnalysisReport{Behavior: &models.Behavior{Summary: summary}}
	ec := signatures.NewContext(report, d.Meta, nil)
	matched, err := d.NewBatch().Run(ec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return ec, matched
}

func parseOne(t *testing.T, pack string) *signatures.Definition {
	t.Helper()
	defs, err := NewLoader("").WithoutBuiltin().parse([]byte(pack))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("parse() = %d definitions, want 1", len(defs))
	}
	return defs[0]
}

func TestLoader_Builtin(t *testing.T) {
	reg := signatures.NewRegistry()
	n, err := NewLoader("").LoadInto(reg)
	if err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if n == 0 || n != reg.Len() {
		t.Fatalf("LoadInto() = %d, registry holds %d", n, reg.Len())
	}

	for _, name := range []string{"antisandbox_fortinet_files", "gandcrab_mutexes", "file_credential_store_write"} {
		d, ok := reg.Get(name)
		if !ok {
			t.Errorf("built-in rule %s not loaded", name)
			continue
		}
		if d.Mode != signatures.ModeBatch {
			t.Errorf("%s: Mode = %v, want batch", name, d.Mode)
		}
	}

	// file_credential_store_write only sees written files
	d, _ := reg.Get("file_credential_store_write")
	if _, matched := evaluate(t, d, map[string][]string{
		models.SummaryFiles: {`C:\Windows\system32\config\SAM`},
	}); matched {
		t.Error("write-only rule matched a file that was only accessed")
	}
	ec, matched := evaluate(t, d, map[string][]string{
		models.SummaryWriteFiles: {`C:\Windows\system32\config\SAM`},
	})
	if !matched || ec.Data()[0].Label != "file" {
		t.Errorf("write-only rule = %v, data %+v", matched, ec.Data())
	}
}

func TestLoader_FortinetWithoutLabel(t *testing.T) {
	defs, err := NewLoader("").Load()
	if err != nil {
		t.Fatal(err)
	}
	var d *signatures.Definition
	for _, def := range defs {
		if def.Name() == "antisandbox_fortinet_files" {
			d = def
		}
	}
	if d == nil {
		t.Fatal("antisandbox_fortinet_files missing")
	}

	ec, matched := evaluate(t, d, map[string][]string{models.SummaryFiles: {`c:\TRACER\fortitracer.exe`}})
	if !matched {
		t.Error("matched = false, want true")
	}
	if ec.HasData() {
		t.Errorf("records = %+v, want none for an unlabeled rule", ec.Data())
	}
}

func TestRule_FirstMatch(t *testing.T) {
	d := parseOne(t, `
rules:
  - name: first_only
    severity: 2
    domain: mutex
    label: mutex
    indicators: [alpha, beta]
`)
	if d.Meta.Severity != models.SeverityLow {
		t.Errorf("Severity = %v, want low", d.Meta.Severity)
	}

	ec, matched := evaluate(t, d, map[string][]string{models.SummaryMutexes: {"BETA", "Alpha"}})
	if !matched {
		t.Fatal("matched = false, want true")
	}
	if data := ec.Data(); len(data) != 1 || data[0].Value != "Alpha" {
		t.Errorf("records = %+v, want only the first indicator's match", data)
	}
}

func TestRule_All(t *testing.T) {
	d := parseOne(t, `
rules:
  - name: every_match
    domain: key
    regex: true
    all: true
    label: regkey
    indicators:
      - 'HKEY_CURRENT_USER\\Software\\Evil\\.*'
      - 'HKEY_CURRENT_USER\\Software\\Other$'
`)
	if d.Meta.Severity != models.SeverityMedium {
		t.Errorf("Severity = %v, want default medium", d.Meta.Severity)
	}

	ec, matched := evaluate(t, d, map[string][]string{models.SummaryKeys: {
		`HKEY_CURRENT_USER\Software\Evil\a`,
		`HKEY_CURRENT_USER\Software\Evil\b`,
		`HKEY_CURRENT_USER\Software\Other`,
		`HKEY_CURRENT_USER\Software\Clean`,
	}})
	if !matched || len(ec.Data()) != 3 {
		t.Errorf("matched = %v, records = %d, want true, 3", matched, len(ec.Data()))
	}
}

func TestRule_CaseSensitive(t *testing.T) {
	d := parseOne(t, `
rules:
  - name: cased
    domain: mutex
    case_sensitive: true
    label: mutex
    indicators: [Global\Marker]
`)
	if _, matched := evaluate(t, d, map[string][]string{models.SummaryMutexes: {`global\marker`}}); matched {
		t.Error("case-sensitive rule matched a differently cased value")
	}
}

func TestRule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		pack string
	}{
		{"no name", "rules:\n  - domain: mutex\n    indicators: [a]\n"},
		{"no indicators", "rules:\n  - name: x\n    domain: mutex\n"},
		{"unknown domain", "rules:\n  - name: x\n    domain: network\n    indicators: [a]\n"},
		{"bad regex", "rules:\n  - name: x\n    domain: file\n    regex: true\n    indicators: ['(open']\n"},
		{"write-only mutex", "rules:\n  - name: x\n    domain: mutex\n    write_only: true\n    indicators: [a]\n"},
		{"malformed yaml", "rules: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader("").WithoutBuiltin().parse([]byte(tt.pack)); err == nil {
				t.Error("parse() error = nil, want error")
			}
		})
	}
}

func TestLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	pack := `
rules:
  - name: custom_rule
    domain: command
    regex: true
    label: command
    indicators: ['.*vssadmin.*delete\s+shadows']
`
	if err := os.WriteFile(filepath.Join(dir, "custom.yml"), []byte(pack), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	defs, err := NewLoader(dir).WithoutBuiltin().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Name() != "custom_rule" {
		t.Fatalf("Load() = %v, want custom_rule", defs)
	}

	_, matched := evaluate(t, defs[0], map[string][]string{
		models.SummaryExecutedCommands: {"cmd /c vssadmin.exe Delete Shadows /all /quiet"},
	})
	if !matched {
		t.Error("custom rule did not match")
	}
}

func TestLoader_MissingDirectory(t *testing.T) {
	defs, err := NewLoader(filepath.Join(t.TempDir(), "absent")).WithoutBuiltin().Load()
	if err != nil || len(defs) != 0 {
		t.Errorf("Load() = %v, %v, want empty and no error", defs, err)
	}
}

func TestLoader_SharedCache(t *testing.T) {
	l := NewLoader("")
	l.cache = matcher.NewCache()
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if l.cache.Len() == 0 {
		t.Error("Load() did not precompile regex indicators")
	}
}
