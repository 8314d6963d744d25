package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"courier/pkg/models"
)

// Evaluator compiles and runs filter expressions over published events.
// Expressions see the event envelope fields plus the payload map, e.g.
// `event_type == "message.status.updated" && payload.status == "failed"`.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_id", cel.StringType),
		cel.Variable("correlation_id", cel.StringType),
		cel.Variable("idempotency_id", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("source_service", cel.StringType),
		cel.Variable("timestamp", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, event *models.Event) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}

	return e.RunFilter(ctx, program, event)
}

// CompileFilter type-checks the expression once so a hot consumer loop does
// not recompile per event.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) RunFilter(ctx context.Context, program cel.Program, event *models.Event) (bool, error) {
	payload := event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	vars := map[string]interface{}{
		"event_id":       event.EventID,
		"correlation_id": event.CorrelationID,
		"idempotency_id": event.IdempotencyID,
		"event_type":     event.EventType,
		"source_service": event.SourceService,
		"timestamp":      event.Timestamp,
		"payload":        payload,
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
