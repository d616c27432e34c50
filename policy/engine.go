// Package policy evaluates Rego policies over normalized resource
// entries and reports advisory findings.
//
// OBSERVABILITY ONLY: findings are recommendations. The engine never
// executes actions or modifies infrastructure.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

// Engine holds compiled policies and evaluates them per entry.
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// Input is the document a policy sees for one entry.
type Input struct {
	Entry     types.ResourceEntry `json:"entry"`
	Timestamp time.Time           `json:"timestamp"`
}

// Finding is one advisory result from policy evaluation.
type Finding struct {
	Policy       string `json:"policy"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	CacheKey     string `json:"cache_key"`
	Severity     string `json:"severity"` // "info", "warning", "critical"
	Message      string `json:"message"`

	// Metadata carries policy-specific context. Policies attach
	// arbitrary shapes here, so this stays a map.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEngine creates an empty policy engine.
func NewEngine(logger *telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewLogger("policy-engine")
	}
	return &Engine{
		logger:  logger,
		tracer:  otel.Tracer("policy-engine"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPolicy compiles one Rego module. Policies live in the
// data.kartta namespace and publish findings under data.kartta.findings.
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.kartta.findings"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// LoadDir compiles every .rego file in dir.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read policy dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		code, err := os.ReadFile(path) // #nosec G304 -- operator-supplied policy dir
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		if err := e.LoadPolicy(ctx, entry.Name(), string(code)); err != nil {
			return err
		}
	}
	return nil
}

// Policies returns the names of the loaded policies.
func (e *Engine) Policies() []string {
	names := make([]string, 0, len(e.queries))
	for name := range e.queries {
		names = append(names, name)
	}
	return names
}

// Evaluate runs every loaded policy against every entry. Evaluation
// failures are logged and skipped so one broken policy cannot hide the
// rest of the findings.
func (e *Engine) Evaluate(ctx context.Context, entries []types.ResourceEntry) ([]Finding, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.evaluate",
		trace.WithAttributes(attribute.Int("entries.count", len(entries))))
	defer span.End()

	if len(e.queries) == 0 {
		return nil, nil
	}

	var findings []Finding
	now := time.Now().UTC()

	for i := range entries {
		input := Input{Entry: entries[i], Timestamp: now}
		for name, query := range e.queries {
			results, err := query.Eval(ctx, rego.EvalInput(input))
			if err != nil {
				e.logger.WithContext(ctx).Error().
					Err(err).
					Str("policy_name", name).
					Str("resource_id", entries[i].ResourceID).
					Msg("policy evaluation failed")
				continue
			}
			findings = append(findings, parseFindings(name, &entries[i], results)...)
		}
	}

	e.logger.WithContext(ctx).Info().
		Int("entries", len(entries)).
		Int("findings", len(findings)).
		Msg("policy evaluation complete")

	return findings, nil
}

// parseFindings extracts finding objects from an eval result set. The
// expression value is the set data.kartta.findings evaluated to, an
// array of objects with at least a message.
func parseFindings(policy string, entry *types.ResourceEntry, results rego.ResultSet) []Finding {
	var findings []Finding

	for _, res := range results {
		for _, expr := range res.Expressions {
			items, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range items {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				findings = append(findings, buildFinding(policy, entry, obj))
			}
		}
	}

	return findings
}

func buildFinding(policy string, entry *types.ResourceEntry, obj map[string]interface{}) Finding {
	finding := Finding{
		Policy:       policy,
		ResourceID:   entry.ResourceID,
		ResourceType: entry.ResourceType,
		CacheKey:     entry.CacheKey(),
		Severity:     "info",
		Metadata:     make(map[string]any),
	}

	for key, value := range obj {
		switch key {
		case "severity":
			if s, ok := value.(string); ok {
				finding.Severity = s
			}
		case "message", "msg":
			if s, ok := value.(string); ok {
				finding.Message = s
			}
		default:
			finding.Metadata[key] = value
		}
	}

	return finding
}
