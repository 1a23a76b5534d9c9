package builtin

import (
	"errors"
	"fmt"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/task"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// Task tool names.
const (
	CreateTaskName = "create_task"
	UpdateTaskName = "update_task"
	ListTasksName  = "list_tasks"
)

type createTaskArgs struct {
	Subject     string `json:"subject" description:"Short task title. Prefix with \"1. \", \"2. \" to fix the display order."`
	Description string `json:"description,omitempty" description:"Optional details"`
}

type updateTaskArgs struct {
	TaskID      string  `json:"task_id" description:"Id returned by create_task"`
	Status      string  `json:"status,omitempty" enum:"pending,in_progress,completed"`
	Subject     *string `json:"subject,omitempty" description:"New title"`
	Description *string `json:"description,omitempty" description:"New details"`
}

// TaskTools returns create_task, update_task and list_tasks. They operate on
// the tracker of the calling run and publish the full list after each change.
func TaskTools() []tool.Tool {
	readOnly := func(o *tool.FunctionOptions) { o.ReadOnly = true }

	return []tool.Tool{
		tool.NewFunctionToolFromStruct(CreateTaskName,
			"Add a task to the visible progress checklist of this conversation.",
			createTaskArgs{}, createTask, readOnly),
		tool.NewFunctionToolFromStruct(UpdateTaskName,
			"Change the status, title or details of a task.",
			updateTaskArgs{}, updateTask, readOnly),
		tool.NewFunctionTool(ListTasksName,
			"List the tasks of this conversation in display order.",
			map[string]any{"type": "object", "properties": map[string]any{}},
			listTasks, readOnly),
	}
}

func createTask(tc *core.ToolContext, raw map[string]any) (any, error) {
	args, err := decode[createTaskArgs](raw)
	if err != nil {
		return nil, err
	}

	rc := tc.RequestContext()
	created, snapshot := rc.Tracker().CreateAndSnapshot(args.Subject, args.Description)
	rc.ReportTaskSnapshot(snapshot)

	return created, nil
}

func updateTask(tc *core.ToolContext, raw map[string]any) (any, error) {
	args, err := decode[updateTaskArgs](raw)
	if err != nil {
		return nil, err
	}

	var patch task.Patch
	if args.Status != "" {
		st, err := task.ParseStatus(args.Status)
		if err != nil {
			return nil, tool.NewToolError(UpdateTaskName, err.Error(), tool.CodeValidation)
		}
		patch.Status = &st
	}
	patch.Subject = args.Subject
	patch.Description = args.Description

	rc := tc.RequestContext()

	updated, snapshot, err := rc.Tracker().UpdateAndSnapshot(args.TaskID, patch)
	if errors.Is(err, task.ErrNotFound) {
		return nil, tool.NewToolError(UpdateTaskName, fmt.Sprintf("no task with id %q", args.TaskID), tool.CodeValidation)
	}
	if err != nil {
		return nil, err
	}

	rc.ReportTaskSnapshot(snapshot)

	return updated, nil
}

func listTasks(tc *core.ToolContext, _ map[string]any) (any, error) {
	return tc.RequestContext().Tracker().Snapshot(), nil
}
