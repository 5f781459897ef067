// Package engine evaluates registered signatures against analysis reports.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bartblaze/community/internal/ai"
	"github.com/bartblaze/community/internal/config"
	"github.com/bartblaze/community/internal/matcher"
	"github.com/bartblaze/community/internal/rules"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/internal/signatures/packer"
	"github.com/bartblaze/community/internal/signatures/windows"
	"github.com/bartblaze/community/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Version is reported in every evaluation result
const Version = "0.1.0"

// ProgressCallback is called to report evaluation progress
type ProgressCallback func(phase string, current, total int, message string)

// AIConfirmCallback is called before triage with the estimated cost.
// Returning false skips triage.
type AIConfirmCallback func(estimate *ai.CostEstimate) bool

// Engine evaluates signatures against analysis reports. A single engine may
// evaluate several reports concurrently.
type Engine struct {
	config   *config.Config
	logger   *zap.Logger
	registry *signatures.Registry
	matcher  *matcher.Matcher

	progressCallback  ProgressCallback
	aiConfirmCallback AIConfirmCallback
	triager           ai.Triager
}

// New creates an engine with an empty registry
func New(cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		config:   cfg,
		logger:   logger,
		registry: signatures.NewRegistry(),
		matcher:  matcher.New(nil),
	}
}

// SetProgressCallback sets the progress callback function
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

// SetAIConfirmCallback sets the AI confirmation callback function
func (e *Engine) SetAIConfirmCallback(cb AIConfirmCallback) {
	e.aiConfirmCallback = cb
}

func (e *Engine) reportProgress(phase string, current, total int, message string) {
	if e.progressCallback != nil {
		e.progressCallback(phase, current, total, message)
	}
}

// SetTriager sets the client used for AI triage instead of the Anthropic
// client built from the AI configuration
func (e *Engine) SetTriager(t ai.Triager) {
	e.triager = t
}

// Register adds signature definitions in order
func (e *Engine) Register(defs ...*signatures.Definition) error {
	for _, d := range defs {
		if err := e.registry.Register(d); err != nil {
			return err
		}
		e.logger.Debug("Registered signature",
			zap.String("name", d.Name()),
			zap.String("mode", d.Mode.String()),
			zap.Int("severity", int(d.Meta.Severity)))
	}
	return nil
}

// RegisterBuiltins registers the compiled-in signatures followed by the
// YAML rule packs
func (e *Engine) RegisterBuiltins() error {
	if err := e.Register(packer.Definitions()...); err != nil {
		return err
	}
	if err := e.Register(windows.Definitions()...); err != nil {
		return err
	}

	loader := rules.NewLoader(e.config.RulesPath)
	if e.config.NoBuiltinRules {
		loader.WithoutBuiltin()
	}
	defs, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load rule packs: %w", err)
	}
	if err := e.Register(defs...); err != nil {
		return err
	}

	e.logger.Info("Initialized signatures",
		zap.Int("count", e.registry.Len()),
		zap.Int("rules", len(defs)))
	return nil
}

// Registry returns the engine's signature registry
func (e *Engine) Registry() *signatures.Registry {
	return e.registry
}

// outcome is the result of evaluating one signature
type outcome struct {
	finding *models.Finding
	failure *models.Failure
	calls   int
}

// Evaluate runs every selected signature against the report. Findings keep
// registration order regardless of completion order.
func (e *Engine) Evaluate(ctx context.Context, report *models.AnalysisReport) (*models.EvaluationResults, error) {
	results, _, err := e.Run(ctx, report)
	return results, err
}

// Run is Evaluate that also returns the AI triage report, nil when triage
// was disabled, declined or failed
func (e *Engine) Run(ctx context.Context, report *models.AnalysisReport) (*models.EvaluationResults, *ai.TriageReport, error) {
	results := models.NewEvaluationResults()
	results.RunID = uuid.NewString()
	results.Source = report.Source
	results.Version = Version
	results.StartTime = time.Now()

	defs := e.registry.Filter(func(d *signatures.Definition) bool {
		return e.config.ShouldEvaluate(d.Meta)
	}).All()

	workers := e.config.Workers
	if workers <= 0 {
		workers = 1
	}
	results.Stats.WorkersUsed = workers
	results.Stats.Signatures = len(defs)

	e.logger.Info("Starting evaluation",
		zap.String("run_id", results.RunID),
		zap.String("source", report.Source),
		zap.Int("signatures", len(defs)))

	outcomes := make([]outcome, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range defs {
		i, d := i, d
		g.Go(func() error {
			outcomes[i] = e.evaluate(gctx, report, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	minSeverity := e.config.MinSeverityLevel()
	for i, d := range defs {
		o := outcomes[i]
		if d.Mode == signatures.ModeEvented {
			results.Stats.EventedSigs++
		} else {
			results.Stats.BatchSignatures++
		}
		results.Stats.CallsDelivered += o.calls

		switch {
		case o.failure != nil:
			e.logger.Warn("Signature failed",
				zap.String("signature", o.failure.Signature),
				zap.String("kind", string(o.failure.Kind)),
				zap.String("error", o.failure.Error))
			results.AddFailure(o.failure)
		case o.finding != nil && o.finding.Severity >= minSeverity:
			results.AddFinding(o.finding)
		}
	}

	triage := e.triage(ctx, results, report)

	results.EndTime = time.Now()
	results.Duration = results.EndTime.Sub(results.StartTime)

	e.logger.Info("Evaluation completed",
		zap.String("run_id", results.RunID),
		zap.Duration("duration", results.Duration),
		zap.Int("matched", results.Stats.Matched),
		zap.Int("failed", results.Stats.Failed))

	return results, triage, nil
}

// evaluate runs one signature under the configured timeout. A signature that
// overruns is abandoned and its partial result discarded.
func (e *Engine) evaluate(ctx context.Context, report *models.AnalysisReport, d *signatures.Definition) outcome {
	timeout := e.config.Timeout()
	if timeout <= 0 {
		return e.run(ctx, report, d)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		done <- e.run(ctx, report, d)
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		kind := models.FailureTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = models.FailureError
		}
		return outcome{failure: &models.Failure{
			Signature: d.Name(),
			Kind:      kind,
			Error:     fmt.Sprintf("evaluation abandoned after %s: %v", timeout, ctx.Err()),
		}}
	}
}

// run evaluates one signature with a fresh instance and context. Panics and
// returned errors become failures.
func (e *Engine) run(ctx context.Context, report *models.AnalysisReport, d *signatures.Definition) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{failure: &models.Failure{
				Signature: d.Name(),
				Kind:      models.FailurePanic,
				Error:     fmt.Sprint(r),
			}}
		}
	}()

	start := time.Now()
	ec := signatures.NewContext(report, d.Meta, e.matcher)

	var matched bool
	var err error
	switch d.Mode {
	case signatures.ModeBatch:
		matched, err = d.NewBatch().Run(ec)
	case signatures.ModeEvented:
		matched, o.calls, err = deliver(ctx, ec, d, report)
	default:
		err = fmt.Errorf("unknown mode %d", d.Mode)
	}

	if err != nil {
		o.failure = &models.Failure{
			Signature: d.Name(),
			Kind:      models.FailureError,
			Error:     err.Error(),
		}
		return o
	}
	if matched {
		o.finding = ec.Finding(time.Since(start))
	}
	return o
}

// deliver feeds filtered calls to an evented signature, process by process in
// apistream order and call by call in captured order, then completes it
func deliver(ctx context.Context, ec *signatures.Context, d *signatures.Definition, report *models.AnalysisReport) (bool, int, error) {
	sig := d.NewEvented()
	delivered := 0

	for _, proc := range report.Processes() {
		if proc == nil {
			continue
		}
		for i, call := range proc.Calls {
			if call == nil || !d.Wants(call.API) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return false, delivered, err
			}

			ec.EnterCall(proc, i, call)
			err := sig.OnCall(ec, call, proc)
			ec.LeaveCall()
			delivered++

			if err != nil {
				return false, delivered, fmt.Errorf("%s in process %d: %w", call.API, proc.ProcessID, err)
			}
		}
	}

	matched, err := sig.OnComplete(ec)
	return matched, delivered, err
}

// triage runs optional AI triage over the findings and enriches them.
// Failures degrade to untriaged results.
func (e *Engine) triage(ctx context.Context, results *models.EvaluationResults, report *models.AnalysisReport) *ai.TriageReport {
	if !e.config.AI.Enabled || len(results.Findings) == 0 {
		return nil
	}

	estimate := ai.EstimateCost(e.config.AI.Model, len(results.Findings), e.config.AI.QuickFilter)
	if e.aiConfirmCallback != nil && !e.aiConfirmCallback(estimate) {
		e.reportProgress("ai_skipped", 0, 0, "AI triage skipped by user")
		return nil
	}

	var analyzer *ai.Analyzer
	if e.triager != nil {
		analyzer = ai.NewAnalyzerWithClient(e.triager, &e.config.AI, e.logger)
	} else {
		var err error
		analyzer, err = ai.NewAnalyzer(&e.config.AI, e.logger)
		if err != nil {
			e.reportProgress("ai_error", 0, 0, fmt.Sprintf("AI skipped: %s", err.Error()))
			e.logger.Debug("Failed to initialize AI analyzer", zap.Error(err))
			return nil
		}
	}
	analyzer.SetProgressCallback(func(current, total int, message string) {
		e.reportProgress("ai_analysis", current, total, message)
	})

	triage, err := analyzer.AnalyzeFindings(ctx, results, report)
	if err != nil {
		e.logger.Debug("AI triage failed", zap.Error(err))
		return nil
	}
	ai.Enrich(results, triage)
	e.reportProgress("ai_complete", triage.TotalTokensUsed, triage.AnalyzedCount, "AI triage complete")
	return triage
}
