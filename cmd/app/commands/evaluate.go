package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hordu-ma/wuhao-tutor-sub002/internal/app"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/config"
	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
	guardUseCase "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/usecase"
	"github.com/hordu-ma/wuhao-tutor-sub002/internal/identity"
)

// EvaluateInput holds the parameters of a one-shot evaluation.
type EvaluateInput struct {
	UserID      string
	Role        string
	Resource    string
	Fields      []string // key=value pairs
	FileSize    int64
	FileType    string
	Confirmed   bool
	Permissions []string
	ClassIDs    []string
	Format      string // "text" or "json"
}

// RunEvaluateCommand loads configuration and the rule set, then runs one
// evaluation. rulesPath overrides the configured rule set when non-empty.
func RunEvaluateCommand(ctx context.Context, rulesPath string, input EvaluateInput, out io.Writer) error {
	cfg := config.Load()
	if rulesPath != "" {
		cfg.GuardRulesPath = rulesPath
	}
	// One-shot runs never need the metrics stack.
	cfg.MetricsEnabled = false

	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	engine, err := container.Engine()
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	return RunEvaluate(ctx, engine, logger, out, input)
}

// RunEvaluate evaluates one action against the engine and writes the decision
// to out in the requested format.
func RunEvaluate(
	ctx context.Context,
	engine guardUseCase.Engine,
	logger *slog.Logger,
	out io.Writer,
	input EvaluateInput,
) error {
	if input.Resource == "" {
		return fmt.Errorf("resource must not be empty")
	}

	subject, err := buildSubject(input)
	if err != nil {
		return err
	}

	evalCtx, err := buildEvalContext(input)
	if err != nil {
		return err
	}

	logger.Debug("evaluating",
		slog.String("resource", input.Resource),
		slog.String("user_id", subject.UserID),
		slog.String("role", string(subject.Role)))

	decision := engine.Evaluate(ctx, subject, input.Resource, evalCtx)

	if input.Format == "json" {
		return outputDecisionJSON(out, decision)
	}
	outputDecisionText(out, decision)
	return nil
}

// buildSubject converts command-line identity flags into a domain subject.
// An unknown role is rejected rather than silently downgraded: a typo on the
// command line should be visible.
func buildSubject(input EvaluateInput) (*guardDomain.Subject, error) {
	role := guardDomain.GuestRole
	if input.Role != "" {
		role = guardDomain.Role(strings.ToLower(input.Role))
		if !guardDomain.ValidRole(role) {
			return nil, fmt.Errorf("invalid role: %s (valid options: student, parent, teacher, admin, guest)", input.Role)
		}
	}

	subject := &guardDomain.Subject{
		UserID:        input.UserID,
		Role:          role,
		Authenticated: input.UserID != "",
		TokenValid:    input.UserID != "",
		Permissions:   input.Permissions,
	}
	if len(input.ClassIDs) > 0 {
		subject.Memberships = map[string][]string{identity.MembershipClassIDs: input.ClassIDs}
	}
	return subject, nil
}

// buildEvalContext converts the key=value field flags and file facts into an
// evaluation context, or nil when the input carries none.
func buildEvalContext(input EvaluateInput) (*guardDomain.EvalContext, error) {
	fields := make(map[string]string, len(input.Fields))
	for _, pair := range input.Fields {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid field %q: must be key=value", pair)
		}
		fields[key] = value
	}

	if len(fields) == 0 && input.FileSize == 0 && input.FileType == "" && !input.Confirmed {
		return nil, nil
	}
	return &guardDomain.EvalContext{
		Fields:    fields,
		FileSize:  input.FileSize,
		FileType:  input.FileType,
		Confirmed: input.Confirmed,
	}, nil
}

// outputDecisionText writes the decision in human-readable text format.
func outputDecisionText(out io.Writer, decision *guardDomain.Decision) {
	if decision.Allowed() {
		fmt.Fprintf(out, "ALLOWED %s (reason: %s)\n", decision.ResourceKey, decision.Reason)
	} else {
		fmt.Fprintf(out, "DENIED %s (reason: %s)\n", decision.ResourceKey, decision.Reason)
	}
	if decision.Message != "" {
		fmt.Fprintf(out, "  %s\n", decision.Message)
	}
}

// outputDecisionJSON writes the decision in JSON format for machine consumption.
func outputDecisionJSON(out io.Writer, decision *guardDomain.Decision) error {
	result := map[string]any{
		"allowed":      decision.Allowed(),
		"reason":       string(decision.Reason),
		"message":      decision.Message,
		"resource_key": decision.ResourceKey,
		"evaluated_at": decision.EvaluatedAt,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(out, string(jsonBytes))
	return nil
}
