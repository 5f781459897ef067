package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/internal/engine"
	"github.com/bartblaze/community/internal/filesystem"
	"go.uber.org/zap"
)

const sampleReport = `{
  "info": {"id": 4711, "package": "exe"},
  "target": {
    "category": "file",
    "file": {
      "name": "invoice.exe",
      "type": "PE32 executable (GUI) Intel 80386, for MS Windows",
      "pe": {"sections": [
        {"name": ".UPX0", "size_of_data": "0x00000000", "entropy": 0},
        {"name": ".UPX1", "size_of_data": "0x00012000", "entropy": "7.92"},
        {"name": ".rsrc", "size_of_data": "0x00001000", "entropy": 4.1}
      ]}
    }
  },
  "behavior": {
    "summary": {
      "mutexes": ["AversSucksForever"],
      "keys": ["HKEY_LOCAL_MACHINE\\SAM", "HKEY_LOCAL_MACHINE\\SAM\\SAM\\Domains"],
      "executed_commands": ["reg save HKLM\\SAM C:\\Users\\Public\\sam.hiv"],
      "created_services": ["updsvc"]
    },
    "processtree": [
      {"pid": 1000, "name": "invoice.exe", "module_path": "C:\\Users\\Public\\invoice.exe"}
    ],
    "apistream": [
      {"process_id": 1000, "process_name": "invoice.exe", "calls": [
        {"api": "Process32NextW", "arguments": [
          {"name": "ProcessName", "value": "lsass.exe"},
          {"name": "ProcessId", "value": "612"}
        ]},
        {"api": "NtOpenProcess", "arguments": [
          {"name": "ProcessIdentifier", "value": "612"},
          {"name": "DesiredAccess", "value": "0x00001010"},
          {"name": "ProcessHandle", "value": "0x000002a4"}
        ]},
        {"api": "ReadProcessMemory", "arguments": [
          {"name": "ProcessHandle", "value": "0x000002a4"}
        ]}
      ]}
    ]
  }
}`

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte(sampleReport), 0644); err != nil {
		t.Fatalf("Failed to write report: %v", err)
	}
	return path
}

func TestEvaluate_EndToEnd(t *testing.T) {
	report, err := filesystem.ReadReport(writeReport(t), filesystem.ParseSize("1M"))
	if err != nil {
		t.Fatalf("ReadReport() error = %v", err)
	}

	cfg := &config.Config{Workers: 4, SignatureTimeout: 5000}
	eng := engine.New(cfg, zap.NewNop())
	if err := eng.RegisterBuiltins(); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	results, err := eng.Evaluate(context.Background(), report)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results.Failures) != 0 {
		t.Errorf("Failures = %+v", results.Failures)
	}

	want := []string{
		"packer_upx",
		"packer_entropy",
		"persistence_service",
		"registry_credential_dumping",
		"registry_credential_store_access",
		"lsass_credential_dumping",
		"gandcrab_mutexes",
	}
	var got []string
	for _, f := range results.Findings {
		got = append(got, f.Name)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Findings = %v, want %v", got, want)
	}

	for _, f := range results.Findings {
		if f.Name == "lsass_credential_dumping" && len(f.MarkedCalls) != 2 {
			t.Errorf("lsass MarkedCalls = %+v, want 2", f.MarkedCalls)
		}
	}
}

func TestEvalCommand_JSONReport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	cmd := exec.Command("go", "run", "../../cmd/sandsig", "eval", "-r", "json", "-o", out, "--min-severity", "medium", writeReport(t))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("Command failed: %v, stderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Report not written: %v", err)
	}

	var decoded struct {
		Findings []struct {
			Name     string `json:"name"`
			Severity int    `json:"severity"`
		} `json:"findings"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Invalid JSON report: %v", err)
	}
	if len(decoded.Findings) == 0 {
		t.Fatal("Expected findings in report")
	}
	for _, f := range decoded.Findings {
		if f.Severity < 3 {
			t.Errorf("Finding %s below min severity: %d", f.Name, f.Severity)
		}
	}
}

func TestEvalCommand_DirectoryOutput(t *testing.T) {
	reports := t.TempDir()
	for _, name := range []string{"first.json", "second.json"} {
		if err := os.WriteFile(filepath.Join(reports, name), []byte(sampleReport), 0644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.json")

	cmd := exec.Command("go", "run", "../../cmd/sandsig", "eval", "-r", "json", "-o", out, reports)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("Command failed: %v, stderr: %s", err, stderr.String())
	}

	for _, name := range []string{"out-first.json", "out-second.json"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("Report %s not written: %v", name, err)
			continue
		}
		var decoded struct {
			Source string `json:"source"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Invalid JSON report %s: %v", name, err)
		}
		want := strings.TrimPrefix(name, "out-")
		if filepath.Base(decoded.Source) != want {
			t.Errorf("%s holds results of %s, want %s", name, decoded.Source, want)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Shared output path was written for a directory evaluation")
	}
}

func TestEvalCommand_InvalidSeverity(t *testing.T) {
	cmd := exec.Command("go", "run", "../../cmd/sandsig", "eval", "--min-severity", "extreme", writeReport(t))
	output, err := cmd.CombinedOutput()

	if err == nil {
		t.Error("Expected error for invalid severity, got nil")
	}
	if !strings.Contains(string(output), "--min-severity must be one of") {
		t.Errorf("Expected validation error, got: %s", output)
	}
}

func TestExtractCommand_RedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"C2": "91.92.1.7:40676", "Botnet": "cheat"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command("go", "run", "../../cmd/sandsig", "extract", "RedLine", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("Command failed: %v, stderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"hostname": "91.92.1.7"`) || !strings.Contains(stdout.String(), `"port": 40676`) {
		t.Errorf("Unexpected output: %s", stdout.String())
	}
}

func TestExtractCommand_FileNotFound(t *testing.T) {
	cmd := exec.Command("go", "run", "../../cmd/sandsig", "extract", "RedLine", "/nonexistent/config.json")
	if _, err := cmd.CombinedOutput(); err == nil {
		t.Error("Expected error for nonexistent file, got nil")
	}
}
