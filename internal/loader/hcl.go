package loader

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/blockflow/blockflow/internal/graph"
)

// hclRoot decodes the top level of a workflow HCL file.
type hclRoot struct {
	Workflows []*hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	ID        string      `hcl:"id,label"`
	Name      string      `hcl:"name,optional"`
	Variables cty.Value   `hcl:"variables,optional"`
	Blocks    []*hclBlock `hcl:"block,block"`
	Edges     []*hclEdge  `hcl:"edge,block"`
	Groups    []*hclGroup `hcl:"group,block"`
}

type hclBlock struct {
	ID      string    `hcl:"id,label"`
	Kind    string    `hcl:"kind"`
	Name    string    `hcl:"name,optional"`
	Enabled *bool     `hcl:"enabled,optional"`
	OnError string    `hcl:"on_error,optional"`
	Timeout string    `hcl:"timeout,optional"`
	Config  cty.Value `hcl:"config,optional"`
	Retry   *hclRetry `hcl:"retry,block"`
	Outputs []string  `hcl:"outputs,optional"`
}

type hclRetry struct {
	MaxRetries int    `hcl:"max_retries"`
	Backoff    string `hcl:"backoff,optional"`
	MaxBackoff string `hcl:"max_backoff,optional"`
}

type hclEdge struct {
	Source       string `hcl:"source"`
	Target       string `hcl:"target"`
	SourceHandle string `hcl:"source_handle,optional"`
}

type hclGroup struct {
	Owner  string   `hcl:"owner,label"`
	Kind   string   `hcl:"kind"`
	Blocks []string `hcl:"blocks"`
	Entry  string   `hcl:"entry"`
	Exit   string   `hcl:"exit"`
}

// ParseHCL decodes an HCL workflow definition and validates it. The file
// must contain exactly one workflow block.
func ParseHCL(filename string, data []byte) (*graph.Workflow, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL workflow: %w", diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL workflow: %w", diags)
	}
	if len(root.Workflows) != 1 {
		return nil, fmt.Errorf("expected exactly one workflow block, found %d", len(root.Workflows))
	}

	fw, err := translateHCLWorkflow(root.Workflows[0])
	if err != nil {
		return nil, err
	}
	return buildWorkflow(fw)
}

// translateHCLWorkflow lowers the HCL structure onto the shared wire shape
// so all three formats funnel through the same graph construction.
func translateHCLWorkflow(hw *hclWorkflow) (*fileWorkflow, error) {
	fw := &fileWorkflow{ID: hw.ID, Name: hw.Name}

	if vars, err := ctyToNative(hw.Variables); err != nil {
		return nil, fmt.Errorf("workflow %q: bad variables: %w", hw.ID, err)
	} else if vars != nil {
		m, ok := vars.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("workflow %q: variables must be an object", hw.ID)
		}
		fw.Variables = m
	}

	for _, hb := range hw.Blocks {
		cfg, err := ctyToNative(hb.Config)
		if err != nil {
			return nil, fmt.Errorf("block %q: bad config: %w", hb.ID, err)
		}
		cfgValues, _ := cfg.(map[string]any)
		if cfgValues == nil {
			cfgValues = map[string]any{}
		}
		fb := fileBlock{
			ID:      hb.ID,
			Name:    hb.Name,
			Kind:    hb.Kind,
			Enabled: hb.Enabled,
			OnError: hb.OnError,
			Timeout: hb.Timeout,
			Config:  cfgValues,
			Outputs: hb.Outputs,
		}
		if hb.Retry != nil {
			fb.Retry = &fileRetry{
				MaxRetries: hb.Retry.MaxRetries,
				Backoff:    hb.Retry.Backoff,
				MaxBackoff: hb.Retry.MaxBackoff,
			}
		}
		fw.Blocks = append(fw.Blocks, fb)
	}

	for _, he := range hw.Edges {
		fw.Edges = append(fw.Edges, fileEdge{
			Source:       he.Source,
			Target:       he.Target,
			SourceHandle: he.SourceHandle,
		})
	}
	for _, hg := range hw.Groups {
		fw.Groups = append(fw.Groups, fileGroup{
			Owner:  hg.Owner,
			Kind:   hg.Kind,
			Blocks: hg.Blocks,
			Entry:  hg.Entry,
			Exit:   hg.Exit,
		})
	}
	return fw, nil
}

// ctyToNative recursively converts a cty.Value into its natural Go
// counterpart. Numbers become float64, objects and maps become
// map[string]any, lists and tuples become []any.
func ctyToNative(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0)
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
