package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/internal/report"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Workers:          4,
		SignatureTimeout: 1000,
		MinSeverity:      "info",
	}
}

func batch(name string, severity models.Severity, fn signatures.BatchFunc) *signatures.Definition {
	meta := &models.SignatureMeta{Name: name, Description: name, Severity: severity, Categories: []string{"test"}}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch { return fn })
}

func matchWith(label, value string) signatures.BatchFunc {
	return func(ec *signatures.Context) (bool, error) {
		ec.AddData(label, value)
		return true, nil
	}
}

func testReport() *models.AnalysisReport {
	return &models.AnalysisReport{
		Source: "report.json",
		Behavior: &models.Behavior{
			Summary: map[string][]string{models.SummaryMutexes: {"m"}},
			APIStream: []*models.Process{
				{ProcessID: 10, ProcessName: "a.exe", Calls: []*models.Call{
					{API: "Wanted"}, {API: "Other"}, {API: "Wanted"},
				}},
				{ProcessID: 20, ProcessName: "b.exe", Calls: []*models.Call{
					{API: "Wanted"},
				}},
			},
		},
	}
}

func TestEvaluate_RegistrationOrder(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	for i := 0; i < 12; i++ {
		delay := time.Duration(12-i) * time.Millisecond
		name := fmt.Sprintf("sig_%02d", i)
		if err := e.Register(batch(name, models.SeverityLow, func(ec *signatures.Context) (bool, error) {
			time.Sleep(delay)
			ec.AddData("name", ec.Meta().Name)
			return true, nil
		})); err != nil {
			t.Fatal(err)
		}
	}

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results.Findings) != 12 {
		t.Fatalf("Findings = %d, want 12", len(results.Findings))
	}
	for i, f := range results.Findings {
		if want := fmt.Sprintf("sig_%02d", i); f.Name != want {
			t.Errorf("Findings[%d] = %v, want %v", i, f.Name, want)
		}
	}
	if results.RunID == "" || results.Source != "report.json" || results.Version != Version {
		t.Errorf("results header = %q/%q/%q", results.RunID, results.Source, results.Version)
	}
}

func TestEvaluate_FailureIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.SignatureTimeout = 50
	e := New(cfg, zap.NewNop())

	defs := []*signatures.Definition{
		batch("before", models.SeverityLow, matchWith("k", "v")),
		batch("panics", models.SeverityLow, func(ec *signatures.Context) (bool, error) {
			ec.AddData("partial", "x")
			panic("boom")
		}),
		batch("errors", models.SeverityLow, func(ec *signatures.Context) (bool, error) {
			return false, errors.New("bad input")
		}),
		batch("hangs", models.SeverityLow, func(ec *signatures.Context) (bool, error) {
			time.Sleep(2 * time.Second)
			ec.AddData("late", "x")
			return true, nil
		}),
		batch("after", models.SeverityLow, matchWith("k", "v")),
	}
	if err := e.Register(defs...); err != nil {
		t.Fatal(err)
	}

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(results.Findings) != 2 || results.Findings[0].Name != "before" || results.Findings[1].Name != "after" {
		t.Errorf("Findings = %+v, want before and after", results.Findings)
	}

	kinds := make(map[string]models.FailureKind)
	for _, f := range results.Failures {
		kinds[f.Signature] = f.Kind
	}
	want := map[string]models.FailureKind{
		"panics": models.FailurePanic,
		"errors": models.FailureError,
		"hangs":  models.FailureTimeout,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("failure %s = %q, want %q", name, kinds[name], kind)
		}
	}
	if results.Stats.Failed != 3 || results.Stats.TimedOut != 1 {
		t.Errorf("Stats = %+v", results.Stats)
	}
}

type callRecorder struct {
	signatures.Completion
}

func (callRecorder) OnCall(ec *signatures.Context, call *models.Call, proc *models.Process) error {
	ec.AddData("call", fmt.Sprintf("%d:%s", proc.ProcessID, call.API))
	ec.MarkCall()
	return nil
}

func TestEvaluate_EventedDelivery(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	meta := &models.SignatureMeta{Name: "evented", Severity: models.SeverityMedium, FilterAPINames: []string{"Wanted"}}
	if err := e.Register(signatures.NewEventedDefinition(meta, func() signatures.Evented { return callRecorder{} })); err != nil {
		t.Fatal(err)
	}

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results.Findings) != 1 {
		t.Fatalf("Findings = %d, want 1", len(results.Findings))
	}

	f := results.Findings[0]
	want := []string{"10:Wanted", "10:Wanted", "20:Wanted"}
	if len(f.Data) != len(want) {
		t.Fatalf("Data = %+v, want %v", f.Data, want)
	}
	for i := range want {
		if f.Data[i].Value != want[i] {
			t.Errorf("Data[%d] = %v, want %v", i, f.Data[i].Value, want[i])
		}
	}
	if len(f.MarkedCalls) != 3 || f.MarkedCalls[1].Index != 2 {
		t.Errorf("MarkedCalls = %+v", f.MarkedCalls)
	}
	if results.Stats.CallsDelivered != 3 || results.Stats.EventedSigs != 1 {
		t.Errorf("Stats = %+v", results.Stats)
	}
}

type failingCall struct {
	signatures.Completion
}

func (failingCall) OnCall(ec *signatures.Context, call *models.Call, proc *models.Process) error {
	return errors.New("unexpected argument")
}

func TestEvaluate_EventedError(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	meta := &models.SignatureMeta{Name: "failing", Severity: models.SeverityMedium}
	e.Register(signatures.NewEventedDefinition(meta, func() signatures.Evented { return failingCall{} }))

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results.Failures) != 1 || results.Failures[0].Kind != models.FailureError {
		t.Errorf("Failures = %+v", results.Failures)
	}
}

func TestEvaluate_FreshInstances(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	meta := &models.SignatureMeta{Name: "counter", Severity: models.SeverityLow}
	e.Register(signatures.NewEventedDefinition(meta, func() signatures.Evented { return callRecorder{} }))

	for run := 0; run < 2; run++ {
		results, err := e.Evaluate(context.Background(), testReport())
		if err != nil {
			t.Fatal(err)
		}
		if n := len(results.Findings[0].Data); n != 4 {
			t.Errorf("run %d: Data = %d records, want 4", run, n)
		}
	}
}

func TestEvaluate_MinSeverity(t *testing.T) {
	cfg := testConfig()
	cfg.MinSeverity = "medium"
	e := New(cfg, zap.NewNop())
	e.Register(
		batch("low", models.SeverityLow, matchWith("k", "v")),
		batch("high", models.SeverityHigh, matchWith("k", "v")),
		batch("refined_down", models.SeverityHigh, func(ec *signatures.Context) (bool, error) {
			ec.Refine("", models.SeverityInfo)
			ec.AddData("k", "v")
			return true, nil
		}),
	)

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(results.Findings) != 1 || results.Findings[0].Name != "high" {
		t.Errorf("Findings = %+v, want only high", results.Findings)
	}
}

func TestEvaluate_Selection(t *testing.T) {
	cfg := testConfig()
	cfg.Disable = []string{"two"}
	e := New(cfg, zap.NewNop())
	e.Register(
		batch("one", models.SeverityLow, matchWith("k", "v")),
		batch("two", models.SeverityLow, matchWith("k", "v")),
	)

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if results.Stats.Signatures != 1 || len(results.Findings) != 1 || results.Findings[0].Name != "one" {
		t.Errorf("Findings = %+v, Stats = %+v", results.Findings, results.Stats)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	e.Register(batch("one", models.SeverityLow, matchWith("k", "v")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Evaluate(ctx, testReport()); !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestEvaluate_AIDeclined(t *testing.T) {
	cfg := testConfig()
	cfg.AI = config.AIConfig{Enabled: true, Model: "haiku"}
	e := New(cfg, zap.NewNop())
	e.Register(batch("one", models.SeverityLow, matchWith("k", "v")))

	asked := false
	e.SetAIConfirmCallback(func(estimate *ai.CostEstimate) bool {
		asked = true
		if estimate.FindingsCount != 1 {
			t.Errorf("FindingsCount = %d, want 1", estimate.FindingsCount)
		}
		return false
	})

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if !asked {
		t.Error("confirm callback was not called")
	}
	if results.Findings[0].Metadata != nil {
		t.Errorf("Metadata = %v, want untouched findings", results.Findings[0].Metadata)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	dir := t.TempDir()
	pack := "rules:\n  - name: local_rule\n    domain: mutex\n    label: mutex\n    indicators: [m]\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(pack), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.RulesPath = dir
	e := New(cfg, zap.NewNop())
	if err := e.RegisterBuiltins(); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	all := e.Registry().All()
	if all[0].Name() != "packer_upx" {
		t.Errorf("first signature = %v, want packer_upx", all[0].Name())
	}
	if all[len(all)-1].Name() != "local_rule" {
		t.Errorf("last signature = %v, want local_rule", all[len(all)-1].Name())
	}

	results, err := e.Evaluate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(results.Failures) != 0 {
		t.Errorf("Failures = %+v, want none", results.Failures)
	}
	if len(results.Findings) != 1 || results.Findings[0].Name != "local_rule" {
		t.Errorf("Findings = %+v, want local_rule", results.Findings)
	}
}

func TestRegisterBuiltins_Duplicate(t *testing.T) {
	cfg := testConfig()
	cfg.NoBuiltinRules = true
	e := New(cfg, zap.NewNop())
	if err := e.RegisterBuiltins(); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterBuiltins(); err == nil {
		t.Error("second RegisterBuiltins() error = nil, want duplicate error")
	}
}

func TestEvaluate_BatchRepeatable(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	e.Register(batch("repeat", models.SeverityMedium, func(ec *signatures.Context) (bool, error) {
		for _, m := range ec.Report().Summary(models.SummaryMutexes) {
			ec.AddData("mutex", m)
		}
		ec.Refine("refined", models.SeverityHigh)
		return ec.HasData(), nil
	}))

	var findings []*models.Finding
	for run := 0; run < 2; run++ {
		results, err := e.Evaluate(context.Background(), testReport())
		if err != nil {
			t.Fatal(err)
		}
		if len(results.Findings) != 1 {
			t.Fatalf("run %d: Findings = %d, want 1", run, len(results.Findings))
		}
		f := *results.Findings[0]
		f.Duration = 0
		findings = append(findings, &f)
	}

	if !reflect.DeepEqual(findings[0], findings[1]) {
		t.Errorf("re-evaluation differs:\n%+v\n%+v", findings[0], findings[1])
	}
}

type stubTriager struct{}

func (stubTriager) Triage(ctx context.Context, req *ai.TriageRequest, lang string) (*ai.TriageResponse, error) {
	return &ai.TriageResponse{FindingID: req.FindingID, Verdict: ai.VerdictMalicious, Confidence: 90, TokensUsed: 10}, nil
}

func (stubTriager) QuickFilter(ctx context.Context, req *ai.TriageRequest) (*ai.QuickFilterResult, error) {
	return &ai.QuickFilterResult{FindingID: req.FindingID, NeedsAnalysis: true}, nil
}

func (stubTriager) Model() string { return "stub-model" }

func TestRun_TriageReachesReport(t *testing.T) {
	cfg := testConfig()
	cfg.AI = config.AIConfig{Enabled: true, Model: "haiku", Language: "en"}
	e := New(cfg, zap.NewNop())
	e.SetTriager(stubTriager{})
	e.Register(batch("one", models.SeverityLow, matchWith("k", "v")))

	results, triage, err := e.Run(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if triage == nil || triage.Model != "stub-model" || triage.MaliciousCount != 1 {
		t.Fatalf("Run() triage = %+v", triage)
	}
	if results.Findings[0].Metadata["ai_verdict"] != "malicious" {
		t.Errorf("Metadata = %v", results.Findings[0].Metadata)
	}

	data, err := report.Render("json", results, triage)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"ai_triage"`) || !strings.Contains(string(data), "stub-model") {
		t.Errorf("rendered report lacks the triage summary:\n%s", data)
	}
}

func TestRun_TriageDisabled(t *testing.T) {
	e := New(testConfig(), zap.NewNop())
	e.SetTriager(stubTriager{})
	e.Register(batch("one", models.SeverityLow, matchWith("k", "v")))

	_, triage, err := e.Run(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if triage != nil {
		t.Errorf("Run() triage = %+v, want nil with AI disabled", triage)
	}
}
