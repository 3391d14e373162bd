package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const workflowArgsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "workflowId": {"type": "string", "minLength": 1},
    "steps": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["workflowId"],
  "additionalProperties": false
}`

const searchArgsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "maxResults": {"type": "integer", "minimum": 1, "maximum": 50}
  },
  "required": ["query"],
  "additionalProperties": false
}`

const codeArgsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "language": {"type": "string", "enum": ["python", "javascript", "go"]},
    "code": {"type": "string", "minLength": 1}
  },
  "required": ["language", "code"],
  "additionalProperties": false
}`

const parallelArgsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "minLength": 1},
    "priority": {"type": "string", "enum": ["low", "normal", "high"]}
  },
  "required": ["prompt"],
  "additionalProperties": false
}`

const retrieveArgsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "key": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1, "maximum": 100}
  },
  "required": ["key"],
  "additionalProperties": false
}`

// RegisterBuiltins installs the five built-in tools. The executors are
// deterministic stand-ins: they echo structured results without reaching
// any external system, which keeps local runs and tests hermetic.
func RegisterBuiltins(r *Registry) error {
	builtins := []*Definition{
		{
			Name:        ToolWorkflowOrchestrator,
			Description: "Orchestrates a multi-step workflow and reports per-step status.",
			ArgSchema:   mustCompile("workflow_orchestrator_args.json", workflowArgsSchema),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				steps, _ := args["steps"].([]any)
				return map[string]any{
					"workflowId":     args["workflowId"],
					"runId":          uuid.NewString(),
					"stepsCompleted": len(steps),
					"status":         "completed",
				}, nil
			},
		},
		{
			Name:        ToolGoogleSearch,
			Description: "Searches the web and returns ranked result snippets.",
			ArgSchema:   mustCompile("google_search_args.json", searchArgsSchema),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				query, _ := args["query"].(string)
				return map[string]any{
					"query": query,
					"results": []map[string]any{
						{"title": fmt.Sprintf("Result for %q", query), "rank": 1},
					},
				}, nil
			},
		},
		{
			Name:        ToolCodeExecutor,
			Description: "Executes a code snippet in a sandbox and returns stdout.",
			ArgSchema:   mustCompile("code_executor_args.json", codeArgsSchema),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"language": args["language"],
					"stdout":   "",
					"exitCode": 0,
				}, nil
			},
		},
		{
			Name:        ToolSubmitParallelJob,
			Description: "Submits a sub-job for parallel execution and returns its handle.",
			ArgSchema:   mustCompile("submit_parallel_job_args.json", parallelArgsSchema),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				priority, _ := args["priority"].(string)
				if priority == "" {
					priority = "normal"
				}
				return map[string]any{
					"jobId":    uuid.NewString(),
					"accepted": true,
					"priority": priority,
				}, nil
			},
		},
		{
			Name:        ToolRetrieveContext,
			Description: "Retrieves stored context fragments by key.",
			ArgSchema:   mustCompile("retrieve_context_args.json", retrieveArgsSchema),
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				return map[string]any{
					"key":       key,
					"fragments": []string{},
				}, nil
			},
		},
	}
	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func mustCompile(name, schema string) *jsonschema.Schema {
	compiled, err := jsonschema.CompileString(name, schema)
	if err != nil {
		panic(fmt.Sprintf("builtin tool schema %s: %v", name, err))
	}
	return compiled
}
