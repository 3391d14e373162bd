package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/agui/internal/llm"
	"github.com/haasonsaas/agui/internal/tokens"
	"github.com/haasonsaas/agui/internal/tools"
	"github.com/haasonsaas/agui/pkg/models"
)

// maxConsecutiveParseFailures bounds malformed model output before the
// run fails with a parse error.
const maxConsecutiveParseFailures = 2

// execution is the outcome of phase 4's reason-act loop.
type execution struct {
	Status     string
	Result     string
	Decisions  []models.AgentDecision
	ToolCalls  []models.ToolResult
	TokensUsed int
	Depth      int
	Err        *models.ErrorInfo
}

// runExecution drives the reason-act loop: call the model, parse its
// decision, and either finish, recurse with a new prompt, or dispatch a
// tool. The loop is bounded by the effective recursion depth; hitting the
// bound completes with a synthesized answer rather than failing.
// Cancellation surfaces as an error outcome so serialization still runs.
func (e *Engine) runExecution(ctx context.Context, job *models.RunJob, constraints models.PolicyConstraints) *execution {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.execution")
	defer span.End()
	defer e.observePhase(models.PhaseExecution, started)

	out := &execution{
		Status:    models.RunComplete,
		Decisions: []models.AgentDecision{},
		ToolCalls: []models.ToolResult{},
		Depth:     job.CurrentDepth,
	}
	dctx := &tools.DispatchContext{CorrelationID: job.CorrelationID, UserID: job.UserID}

	prompt := job.Prompt
	accumulated := job.PreviousContext
	parseFailures := 0
	toolBudgetUsed := len(job.ToolResults)

	for out.Depth < constraints.MaxRecursionDepth {
		if errInfo := e.checkContextBudget(accumulated, prompt, constraints.ContextWindowLimit); errInfo != nil {
			out.Status = models.RunError
			out.Err = errInfo
			return out
		}

		completion, err := e.completeOnce(ctx, contextualPrompt(accumulated, prompt))
		if err != nil {
			out.Status = models.RunError
			out.Err = classifyErrorInfo(err)
			return out
		}
		out.TokensUsed += completion.TokensUsed

		decision, err := e.schemas.ValidateDecision([]byte(completion.Content))
		if err != nil {
			parseFailures++
			out.Depth++
			e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseExecution, "DECISION_PARSE_FAILED", map[string]any{
				"consecutiveFailures": parseFailures,
				"error":               err.Error(),
			})
			if parseFailures >= maxConsecutiveParseFailures {
				out.Status = models.RunError
				out.Err = &models.ErrorInfo{
					Code:    CodeParseFailure,
					Message: fmt.Sprintf("model produced %d consecutive unparseable decisions", parseFailures),
				}
				return out
			}
			// Tell the model what went wrong before retrying the prompt.
			accumulated = appendContext(accumulated, "The previous response was not a valid decision: "+err.Error())
			continue
		}
		parseFailures = 0
		out.Decisions = append(out.Decisions, *decision)
		e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseExecution, "AGENT_DECISION", map[string]any{
			"actionType": string(decision.ActionType),
			"depth":      out.Depth,
		})

		switch decision.ActionType {
		case models.ActionFinalAnswer:
			out.Result = decision.FinalAnswer
			e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseExecution, "EXECUTION_COMPLETE", map[string]any{
				"depth":      out.Depth,
				"tokensUsed": out.TokensUsed,
			})
			return out

		case models.ActionLLMCall:
			if decision.Reasoning != "" {
				accumulated = appendContext(accumulated, decision.Reasoning)
			}
			prompt = decision.NextPrompt
			out.Depth++

		case models.ActionToolCall:
			if !constraints.ToolAllowed(decision.ToolName) {
				out.Status = models.RunError
				out.Err = &models.ErrorInfo{
					Code:    CodeToolNotAllowed,
					Message: fmt.Sprintf("tool %q is not in the allowed tool list", decision.ToolName),
					Details: map[string]any{"toolName": decision.ToolName, "allowedTools": constraints.AllowedTools},
				}
				return out
			}
			if toolBudgetUsed+len(out.ToolCalls) >= constraints.MaxToolCalls {
				out.Status = models.RunError
				out.Err = &models.ErrorInfo{
					Code:    CodeToolCallsExceeded,
					Message: fmt.Sprintf("tool call budget of %d exhausted", constraints.MaxToolCalls),
					Details: map[string]any{"maxToolCalls": constraints.MaxToolCalls},
				}
				return out
			}
			result := e.dispatcher.Dispatch(ctx, decision.ToolName, decision.ToolArguments, dctx)
			out.ToolCalls = append(out.ToolCalls, *result)
			accumulated = appendContext(accumulated, prompt)
			prompt = toolFollowupPrompt(result)
			out.Depth++

		default:
			out.Status = models.RunError
			out.Err = &models.ErrorInfo{
				Code:    CodeParseFailure,
				Message: fmt.Sprintf("unknown action type %q", decision.ActionType),
			}
			return out
		}
	}

	// Depth bound reached: complete with what was gathered rather than
	// failing the run.
	out.Result = fmt.Sprintf("Reached the maximum reasoning depth of %d before producing a final answer.", constraints.MaxRecursionDepth)
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseExecution, "DEPTH_LIMIT_REACHED", map[string]any{
		"depth":      out.Depth,
		"tokensUsed": out.TokensUsed,
	})
	return out
}

func (e *Engine) checkContextBudget(accumulated, prompt string, limit int) *models.ErrorInfo {
	validation := tokens.ValidateText(contextualPrompt(accumulated, prompt), limit)
	if validation.OK {
		return nil
	}
	return &models.ErrorInfo{
		Code:    CodeContextExceeded,
		Message: fmt.Sprintf("accumulated context of %d estimated tokens exceeds the effective limit of %d", validation.Estimated, validation.Effective),
		Details: map[string]any{
			"estimated": validation.Estimated,
			"limit":     validation.Limit,
			"effective": validation.Effective,
		},
	}
}

func (e *Engine) completeOnce(ctx context.Context, prompt string) (*llm.Completion, error) {
	callStart := e.now()
	completion, err := e.client.Complete(ctx, prompt, nil)
	if e.metrics != nil {
		e.metrics.LLMRequestDuration.Observe(time.Since(callStart).Seconds())
		if err != nil {
			e.metrics.LLMRequestCounter.WithLabelValues("error").Inc()
		} else {
			e.metrics.LLMRequestCounter.WithLabelValues("success").Inc()
			e.metrics.LLMTokensUsed.Add(float64(completion.TokensUsed))
		}
	}
	return completion, err
}

func classifyErrorInfo(err error) *models.ErrorInfo {
	var classified *llm.ClassifiedError
	if errors.As(err, &classified) {
		info := &models.ErrorInfo{Code: classified.Code, Message: classified.Error()}
		if classified.RetryAfter > 0 {
			info.Details = map[string]any{"retryAfterSeconds": int(classified.RetryAfter.Seconds())}
		}
		return info
	}
	return &models.ErrorInfo{Code: llm.CodeUnknown, Message: err.Error()}
}

func contextualPrompt(accumulated, prompt string) string {
	if accumulated == "" {
		return prompt
	}
	return accumulated + tokens.Separator + prompt
}

func appendContext(accumulated, addition string) string {
	if accumulated == "" {
		return addition
	}
	return accumulated + tokens.Separator + addition
}

func toolFollowupPrompt(result *models.ToolResult) string {
	if result.Error != "" {
		return fmt.Sprintf("Tool %s failed: %s. Decide the next action.", result.ToolName, result.Error)
	}
	return fmt.Sprintf("Tool %s returned: %v. Decide the next action.", result.ToolName, result.Result)
}
