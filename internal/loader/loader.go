// Package loader parses workflow definitions from JSON, YAML, or HCL files
// into validated graph.Workflow values. All three formats share one wire
// shape; format detection goes by file extension.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
)

// fileWorkflow is the serialized shape shared by the JSON and YAML formats.
// The HCL front end translates its own block structure into it.
type fileWorkflow struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Variables map[string]any `json:"variables" yaml:"variables"`
	Blocks    []fileBlock    `json:"blocks" yaml:"blocks"`
	Edges     []fileEdge     `json:"edges" yaml:"edges"`
	Groups    []fileGroup    `json:"groups" yaml:"groups"`
}

type fileBlock struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Kind    string         `json:"kind" yaml:"kind"`
	Enabled *bool          `json:"enabled" yaml:"enabled"`
	OnError string         `json:"onError" yaml:"onError"`
	Timeout string         `json:"timeout" yaml:"timeout"`
	Retry   *fileRetry     `json:"retry" yaml:"retry"`
	Config  map[string]any `json:"config" yaml:"config"`
	Outputs []string       `json:"outputs" yaml:"outputs"`
}

type fileRetry struct {
	MaxRetries int    `json:"maxRetries" yaml:"maxRetries"`
	Backoff    string `json:"backoff" yaml:"backoff"`
	MaxBackoff string `json:"maxBackoff" yaml:"maxBackoff"`
}

type fileEdge struct {
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
}

type fileGroup struct {
	Owner  string   `json:"owner" yaml:"owner"`
	Kind   string   `json:"kind" yaml:"kind"`
	Blocks []string `json:"blocks" yaml:"blocks"`
	Entry  string   `json:"entry" yaml:"entry"`
	Exit   string   `json:"exit" yaml:"exit"`
}

// Load reads and validates a workflow definition. The file extension picks
// the format: .json, .yaml/.yml, or .hcl.
func Load(ctx context.Context, path string) (*graph.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workflow definition.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".hcl":
		return ParseHCL(path, data)
	default:
		return nil, fmt.Errorf("unsupported workflow format %q (want .json, .yaml, or .hcl)", filepath.Ext(path))
	}
}

// ParseJSON decodes a JSON workflow definition and validates it.
func ParseJSON(data []byte) (*graph.Workflow, error) {
	var fw fileWorkflow
	if err := json.Unmarshal(data, &fw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON workflow: %w", err)
	}
	return buildWorkflow(&fw)
}

// ParseYAML decodes a YAML workflow definition and validates it.
func ParseYAML(data []byte) (*graph.Workflow, error) {
	var fw fileWorkflow
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return nil, fmt.Errorf("failed to decode YAML workflow: %w", err)
	}
	return buildWorkflow(&fw)
}

// buildWorkflow translates the wire shape into the typed graph model and
// runs structural validation, so a returned Workflow is always executable.
func buildWorkflow(fw *fileWorkflow) (*graph.Workflow, error) {
	if fw.ID == "" {
		return nil, fmt.Errorf("workflow is missing an id")
	}

	wf := &graph.Workflow{
		ID:        fw.ID,
		Name:      fw.Name,
		Variables: fw.Variables,
	}

	for _, fb := range fw.Blocks {
		b, err := buildBlock(&fb)
		if err != nil {
			return nil, err
		}
		wf.Blocks = append(wf.Blocks, b)
	}
	for _, fe := range fw.Edges {
		wf.Edges = append(wf.Edges, graph.Edge{
			Source:       fe.Source,
			Target:       fe.Target,
			SourceHandle: fe.SourceHandle,
		})
	}
	for _, fg := range fw.Groups {
		kind, err := groupKind(fg.Kind)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", fg.Owner, err)
		}
		wf.Groups = append(wf.Groups, graph.Group{
			Owner:  fg.Owner,
			Kind:   kind,
			Blocks: fg.Blocks,
			Entry:  fg.Entry,
			Exit:   fg.Exit,
		})
	}

	if err := graph.Validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func buildBlock(fb *fileBlock) (*graph.Block, error) {
	cfg, err := buildConfig(graph.Kind(fb.Kind), fb.Config)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", fb.ID, err)
	}

	b := &graph.Block{
		ID:      fb.ID,
		Name:    fb.Name,
		Kind:    graph.Kind(fb.Kind),
		Enabled: fb.Enabled == nil || *fb.Enabled,
		Config:  cfg,
		Outputs: fb.Outputs,
	}

	switch fb.OnError {
	case "", string(graph.ErrorHalt):
		b.OnError = graph.ErrorHalt
	case string(graph.ErrorContinue):
		b.OnError = graph.ErrorContinue
	default:
		return nil, fmt.Errorf("block %q: unknown error policy %q", fb.ID, fb.OnError)
	}

	if fb.Timeout != "" {
		d, err := time.ParseDuration(fb.Timeout)
		if err != nil {
			return nil, fmt.Errorf("block %q: bad timeout: %w", fb.ID, err)
		}
		b.Timeout = d
	}

	if fb.Retry != nil {
		rp := &graph.RetryPolicy{MaxRetries: fb.Retry.MaxRetries}
		if fb.Retry.Backoff != "" {
			if rp.Backoff, err = time.ParseDuration(fb.Retry.Backoff); err != nil {
				return nil, fmt.Errorf("block %q: bad retry backoff: %w", fb.ID, err)
			}
		}
		if fb.Retry.MaxBackoff != "" {
			if rp.MaxBackoff, err = time.ParseDuration(fb.Retry.MaxBackoff); err != nil {
				return nil, fmt.Errorf("block %q: bad retry max backoff: %w", fb.ID, err)
			}
		}
		b.Retry = rp
	}

	return b, nil
}

// buildConfig constructs the typed config variant for a kind. The parallel
// failure policy defaults to any-error here, at parse time; a Workflow
// assembled in code still has to state it explicitly.
func buildConfig(kind graph.Kind, m map[string]any) (graph.Config, error) {
	switch kind {
	case graph.KindStarter:
		return &graph.StarterConfig{Input: cfgMap(m, "input")}, nil
	case graph.KindAgent:
		return &graph.AgentConfig{
			Model:        cfgString(m, "model"),
			Prompt:       cfgString(m, "prompt"),
			SystemPrompt: cfgString(m, "systemPrompt"),
			GenParams:    cfgMap(m, "params"),
			ToolID:       cfgString(m, "toolId"),
		}, nil
	case graph.KindApi:
		return &graph.ApiConfig{
			URL:     cfgString(m, "url"),
			Method:  cfgString(m, "method"),
			Headers: cfgStringMap(m, "headers"),
			Body:    m["body"],
		}, nil
	case graph.KindCondition:
		return &graph.ConditionConfig{Expression: cfgString(m, "expression")}, nil
	case graph.KindRouter:
		return &graph.RouterConfig{
			Expression: cfgString(m, "expression"),
			Routes:     cfgStrings(m, "routes"),
		}, nil
	case graph.KindFunction:
		return &graph.FunctionConfig{Code: cfgString(m, "code")}, nil
	case graph.KindEvaluator:
		return &graph.EvaluatorConfig{
			Target:    cfgString(m, "target"),
			Rubric:    cfgString(m, "rubric"),
			Threshold: cfgFloat(m, "threshold"),
		}, nil
	case graph.KindLoop:
		return &graph.LoopConfig{
			LoopType:   graph.LoopType(cfgString(m, "loopType")),
			Count:      cfgInt(m, "count"),
			Collection: cfgString(m, "collection"),
		}, nil
	case graph.KindParallel:
		policy := graph.FailurePolicy(cfgString(m, "failurePolicy"))
		if policy == "" {
			policy = graph.FailAnyError
		}
		return &graph.ParallelConfig{
			ParallelType:  graph.ParallelType(cfgString(m, "parallelType")),
			Count:         cfgInt(m, "count"),
			Collection:    cfgString(m, "collection"),
			FailurePolicy: policy,
		}, nil
	case graph.KindResponse:
		return &graph.ResponseConfig{Fields: cfgMap(m, "fields")}, nil
	case graph.KindGeneric:
		return &graph.GenericConfig{
			ToolID: cfgString(m, "toolId"),
			Args:   cfgMap(m, "args"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown block kind %q", kind)
	}
}

func groupKind(s string) (graph.GroupKind, error) {
	switch graph.GroupKind(s) {
	case graph.GroupLoop:
		return graph.GroupLoop, nil
	case graph.GroupParallel:
		return graph.GroupParallel, nil
	default:
		return "", fmt.Errorf("unknown group kind %q", s)
	}
}

func cfgString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func cfgMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func cfgStringMap(m map[string]any, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func cfgStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// cfgInt tolerates the numeric types the three decoders produce: JSON and
// cty hand back float64, YAML hands back int.
func cfgInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cfgFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
