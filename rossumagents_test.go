package rossumagents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/runner"
	"github.com/stancld/rossum-agents-sub001/subagent"
	"github.com/stancld/rossum-agents-sub001/tool/builtin"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_RegistersBuiltins(t *testing.T) {
	e, err := New(model.NewMockModel("mock", "test"), func(o *Options) { o.OutputRoot = t.TempDir() })
	require.NoError(t, err)

	names := e.Registry().Names()
	for _, want := range []string{
		builtin.CreateTaskName, builtin.UpdateTaskName, builtin.ListTasksName,
		builtin.LoadToolCategoryName, builtin.WriteOutputFileName,
	} {
		assert.Contains(t, names, want)
	}
}

func TestRunSync_WritesOutputFile(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(
		model.ToolCallResponse("", core.ToolCall{ID: "c1", Name: builtin.WriteOutputFileName, Arguments: map[string]any{
			"filename": "report.md",
			"content":  "# Queues\n",
		}}),
		model.TextResponse("Report written."),
	)

	root := t.TempDir()
	e, err := New(m, func(o *Options) {
		o.OutputRoot = root
		o.DisableStreaming = true
	})
	require.NoError(t, err)

	var files []core.FileInfo
	run, err := e.StartRun(context.Background(), "conv", "write a report", func(o *runner.RunOptions) {
		o.Callbacks.OnFileCreated = func(f core.FileInfo) { files = append(files, f) }
	})
	require.NoError(t, err)

	steps, err := Collect(run)
	require.NoError(t, err)
	assert.Equal(t, core.KindFinalAnswer, steps[len(steps)-1].Kind())

	dir, err := run.OutputDir()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Queues\n", string(data))

	stored, err := e.Artifacts().Get(context.Background(), run.RequestContext().OutputNamespace(), "report.md")
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.Len(t, files, 1)
	assert.Equal(t, "report.md", files[0].Name)
}

func TestRunSync_SubAgentTool(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(
		model.ToolCallResponse("", core.ToolCall{ID: "c1", Name: "analyze_schema", Arguments: map[string]any{"prompt": "check fields"}}),
		model.TextResponse("Field amount_due is missing."),
		model.TextResponse("The schema lacks amount_due."),
	)

	var progress []string
	e, err := New(m, func(o *Options) {
		o.OutputRoot = t.TempDir()
		o.DisableStreaming = true
		o.SubAgents = []SubAgent{{
			Config:      subagent.Config{ToolName: "analyze_schema", SystemPrompt: "You analyze schemas."},
			Description: "Analyze a schema in depth",
		}}
	})
	require.NoError(t, err)

	steps, err := e.RunSync(context.Background(), "conv", "is my schema complete?", func(o *runner.RunOptions) {
		o.Callbacks.OnProgress = func(p core.SubAgentProgress) { progress = append(progress, p.Phase) }
	})
	require.NoError(t, err)

	var results []core.ToolResult
	for _, s := range steps {
		if r, ok := s.(core.ToolResultStep); ok {
			results = append(results, r.Results...)
		}
	}
	require.Len(t, results, 1)
	assert.Equal(t, "Field amount_due is missing.", results[0].Content)
	assert.Contains(t, progress, core.PhaseCompleted)

	final := steps[len(steps)-1].(core.FinalAnswerStep)
	assert.Equal(t, "The schema lacks amount_due.", final.Text)
}

func TestCancelRun_UnknownConversation(t *testing.T) {
	e, err := New(model.NewMockModel("mock", "test"), func(o *Options) { o.OutputRoot = t.TempDir() })
	require.NoError(t, err)

	assert.False(t, e.CancelRun("nope"))
}

func TestRunSync_ReadOnlyInstruction(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("ok"))

	e, err := New(m, func(o *Options) {
		o.OutputRoot = t.TempDir()
		o.DisableStreaming = true
	})
	require.NoError(t, err)

	steps, err := e.RunSync(context.Background(), "conv", "look only", func(o *runner.RunOptions) { o.Mode = core.ReadOnly })
	require.NoError(t, err)
	assert.Equal(t, core.KindFinalAnswer, steps[len(steps)-1].Kind())

	require.Equal(t, 1, m.CallCount())
	assert.Contains(t, m.Calls()[0].System[0].Text, "This conversation is read-only")
}
