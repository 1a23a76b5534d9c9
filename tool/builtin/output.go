package builtin

import (
	"github.com/stancld/rossum-agents-sub001/artifact"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// WriteOutputFileName is the name of the output file tool.
const WriteOutputFileName = "write_output_file"

type writeOutputArgs struct {
	Filename string `json:"filename" description:"Plain file name, no directories"`
	Content  string `json:"content" description:"File content"`
}

// WriteOutputFile returns the tool that stores a file in the run's output
// location and announces it through the file-created callback.
func WriteOutputFile(store artifact.Store) tool.Tool {
	return tool.NewFunctionToolFromStruct(WriteOutputFileName,
		"Write a file (report, export, script) that the user can download after the conversation.",
		writeOutputArgs{},
		func(tc *core.ToolContext, raw map[string]any) (any, error) {
			args, err := decode[writeOutputArgs](raw)
			if err != nil {
				return nil, err
			}

			name, err := artifact.CleanName(args.Filename)
			if err != nil {
				return nil, tool.NewToolError(WriteOutputFileName, err.Error(), tool.CodeValidation)
			}

			rc := tc.RequestContext()

			loc, err := store.Save(tc.Context(), rc.OutputNamespace(), name, []byte(args.Content))
			if err != nil {
				return nil, err
			}

			info := core.FileInfo{Name: name, Path: loc, Size: len(args.Content)}
			rc.ReportFileCreated(info)

			return info, nil
		},
		func(o *tool.FunctionOptions) { o.ReadOnly = true },
	)
}
