package graph

// Config is the tagged variant carrying a block's kind-specific parameters.
// String fields may contain {{...}} reference templates; the engine resolves
// Params() against the run state right before dispatch.
type Config interface {
	// Params flattens the config into the named inputs the block's handler
	// consumes. Template strings are still unresolved at this point.
	Params() map[string]any
}

// StarterConfig seeds the run with the workflow's initial input.
type StarterConfig struct {
	Input map[string]any
}

func (c *StarterConfig) Params() map[string]any {
	return map[string]any{"input": c.Input}
}

// AgentConfig composes a model call: which model, the prompt template, and
// generation parameters. ToolID selects the model provider tool; the loader
// fills the default when the author leaves it empty.
type AgentConfig struct {
	Model        string
	Prompt       string
	SystemPrompt string
	GenParams    map[string]any
	ToolID       string
}

func (c *AgentConfig) Params() map[string]any {
	return map[string]any{
		"model":        c.Model,
		"prompt":       c.Prompt,
		"systemPrompt": c.SystemPrompt,
		"params":       c.GenParams,
	}
}

// ApiConfig describes an outbound HTTP call. Every field may be a template.
type ApiConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

func (c *ApiConfig) Params() map[string]any {
	headers := make(map[string]any, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return map[string]any{
		"url":     c.URL,
		"method":  c.Method,
		"headers": headers,
		"body":    c.Body,
	}
}

// ConditionConfig holds the boolean expression deciding the true/false branch.
type ConditionConfig struct {
	Expression string
}

func (c *ConditionConfig) Params() map[string]any {
	return map[string]any{"expression": c.Expression}
}

// RouterConfig holds a selection expression and the route keys it may yield.
// Each route key must match the SourceHandle of exactly one outgoing edge.
type RouterConfig struct {
	Expression string
	Routes     []string
}

func (c *RouterConfig) Params() map[string]any {
	routes := make([]any, len(c.Routes))
	for i, r := range c.Routes {
		routes[i] = r
	}
	return map[string]any{"expression": c.Expression, "routes": routes}
}

// FunctionConfig carries user-supplied code executed in the sandbox.
type FunctionConfig struct {
	Code string
}

func (c *FunctionConfig) Params() map[string]any {
	return map[string]any{"code": c.Code}
}

// EvaluatorConfig scores an upstream value against a rubric expression.
// The rubric must evaluate to a number; Threshold decides pass/fail.
type EvaluatorConfig struct {
	Target    string
	Rubric    string
	Threshold float64
}

func (c *EvaluatorConfig) Params() map[string]any {
	return map[string]any{
		"target":    c.Target,
		"rubric":    c.Rubric,
		"threshold": c.Threshold,
	}
}

// LoopType selects fixed-count or collection-driven iteration.
type LoopType string

const (
	LoopFor     LoopType = "for"
	LoopForEach LoopType = "forEach"
)

// LoopConfig configures a loop container block. Collection is a template
// resolving to an array or mapping for forEach loops.
type LoopConfig struct {
	LoopType   LoopType
	Count      int
	Collection string
}

func (c *LoopConfig) Params() map[string]any {
	return map[string]any{
		"loopType":   string(c.LoopType),
		"count":      c.Count,
		"collection": c.Collection,
	}
}

// ParallelType selects fixed-count or collection-driven fan-out.
type ParallelType string

const (
	ParallelCount      ParallelType = "count"
	ParallelCollection ParallelType = "collection"
)

// FailurePolicy decides the aggregate status of a parallel block when some
// instances error. Validation requires it on every parallel block; the file
// loader fills in FailAnyError when a definition omits it.
type FailurePolicy string

const (
	// FailAnyError marks the parallel block errored if any instance errors.
	FailAnyError FailurePolicy = "any-error"
	// FailAllErrors marks it errored only when every instance errors.
	FailAllErrors FailurePolicy = "all-errors"
)

// ParallelConfig configures a parallel container block.
type ParallelConfig struct {
	ParallelType  ParallelType
	Count         int
	Collection    string
	FailurePolicy FailurePolicy
}

func (c *ParallelConfig) Params() map[string]any {
	return map[string]any{
		"parallelType":  string(c.ParallelType),
		"count":         c.Count,
		"collection":    c.Collection,
		"failurePolicy": string(c.FailurePolicy),
	}
}

// ResponseConfig selects the fields frozen as the run's final result.
// Values are templates resolved when the response block executes.
type ResponseConfig struct {
	Fields map[string]any
}

func (c *ResponseConfig) Params() map[string]any {
	return map[string]any{"fields": c.Fields}
}

// GenericConfig dispatches to an arbitrary tool through the invocation
// boundary. The catch-all for block kinds without a dedicated handler.
type GenericConfig struct {
	ToolID string
	Args   map[string]any
}

func (c *GenericConfig) Params() map[string]any {
	return map[string]any{"toolId": c.ToolID, "args": c.Args}
}
