package subagent

import (
	"strings"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/tool"
)

type promptArgs struct {
	Prompt string `json:"prompt" description:"Self-contained task for the sub-agent"`
}

// AsTool exposes r as a tool named after Config.ToolName. The tool result is
// the sub-agent analysis; a degraded run is flagged in the text but does not
// fail the call. The tool is read-only when every sub-agent tool is.
func AsTool(r *Runner, description string) tool.Tool {
	readOnly := true
	for _, t := range r.cfg.Tools {
		if !tool.IsReadOnly(t) {
			readOnly = false
			break
		}
	}

	return tool.NewFunctionToolFromStruct(r.cfg.ToolName, description, promptArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			prompt, _ := args["prompt"].(string)
			if strings.TrimSpace(prompt) == "" {
				return nil, tool.NewToolError(r.cfg.ToolName, ErrEmptyPrompt.Error(), tool.CodeValidation)
			}

			res := r.Run(tc.Context(), prompt)
			if res.Degraded {
				return res.Analysis + "\n\n[sub-agent incomplete: " + res.Err + "]", nil
			}

			return res.Analysis, nil
		},
		func(o *tool.FunctionOptions) { o.ReadOnly = readOnly },
	)
}
