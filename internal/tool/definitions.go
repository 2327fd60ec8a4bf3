package tool

import "github.com/conclave-ai/conclave/pkg/models"

// Built-in tool definitions. Schemas are plain JSON Schema; the registry
// compiles them at registration time.

func objSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// Work management.

var publishDef = models.ToolDef{
	Name:        "publish",
	Description: "Finalize your work on this item. Moves scratch/ to published/, marks the item complete.",
	Parameters: objSchema(map[string]any{
		"summary": strProp("Summary of what you produced"),
	}, "summary"),
	Guidance: "Call this when you're genuinely done. Review scratch/ files before publishing.",
}

var checkpointDef = models.ToolDef{
	Name:        "checkpoint",
	Description: "Signal that you've completed this stage of work.",
	Parameters: objSchema(map[string]any{
		"summary": strProp("Summary of progress so far"),
	}, "summary"),
}

var createWorkItemDef = models.ToolDef{
	Name:        "create_work_item",
	Description: "Create a sub-task on the work board. It will be picked up by a worker.",
	Parameters: objSchema(map[string]any{
		"task": strProp("Task description / spec for the new item"),
		"deps": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Item IDs that must complete before this item can start",
		},
		"refs": map[string]any{
			"type":        "object",
			"description": "Pointers to other items' published data",
		},
	}, "task"),
}

var suggestNextDef = models.ToolDef{
	Name:        "suggest_next",
	Description: "Suggest a follow-up work item to the coordinator. The coordinator decides whether to create it.",
	Parameters: objSchema(map[string]any{
		"suggestion": strProp("What work should be done and why"),
	}, "suggestion"),
}

// Communication.

var sendMessageDef = models.ToolDef{
	Name:        "send_message",
	Description: "Send a message to another worker, the coordinator, or the human by name.",
	Parameters: objSchema(map[string]any{
		"to":      strProp("Recipient name (e.g. 'coordinator', 'Alice', 'human'), or 'all' to broadcast"),
		"content": strProp("Message content"),
	}, "to", "content"),
	Guidance: "Message when you have something useful to share. Don't message to say 'starting' or 'done'.",
}

var checkMessagesDef = models.ToolDef{
	Name:        "check_messages",
	Description: "Check for new messages from other workers, the coordinator, or the human.",
	Parameters:  objSchema(map[string]any{}),
	Guidance:    "Check periodically, especially on long tasks. Coordinator messages may contain updated instructions.",
}

var askHumanDef = models.ToolDef{
	Name:        "ask_human",
	Description: "Ask the human a question. Your work pauses until they respond. Use sparingly.",
	Parameters: objSchema(map[string]any{
		"question": strProp("The question to ask"),
	}, "question"),
	Guidance: "Only use when genuinely stuck. Try to figure it out yourself first.",
}

// File I/O.

var readFileDef = models.ToolDef{
	Name:        "read_file",
	Description: "Read a file from the workspace.",
	Parameters: objSchema(map[string]any{
		"path": strProp("File path relative to the run root"),
	}, "path"),
}

var writeFileDef = models.ToolDef{
	Name:        "write_file",
	Description: "Write a file to your item's scratch/ directory or your worker files.",
	Parameters: objSchema(map[string]any{
		"path":    strProp("File path relative to the run root"),
		"content": strProp("File content"),
	}, "path", "content"),
	Guidance: "Write to scratch/ for WIP. Name files descriptively. Keep files focused.",
}

var listFilesDef = models.ToolDef{
	Name:        "list_files",
	Description: "List files in a directory.",
	Parameters: objSchema(map[string]any{
		"path": strProp("Directory path relative to the run root"),
	}, "path"),
}

var readRefDef = models.ToolDef{
	Name:        "read_ref",
	Description: "Read a referenced upstream item's published output by ref name.",
	Parameters: objSchema(map[string]any{
		"ref_name": strProp("Key from _refs.json"),
	}, "ref_name"),
}

// Execution.

var bashDef = models.ToolDef{
	Name:        "bash",
	Description: "Execute a shell command.",
	Parameters: objSchema(map[string]any{
		"command": strProp("The command to run"),
		"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds"},
	}, "command"),
	Guidance: "Use for running code, installing packages, git operations, CLI tools.\n" +
		"Always check output. Don't retry the same failing command.\n" +
		"Chain with && so later steps don't run if earlier ones fail.",
}

// Research.

var webSearchDef = models.ToolDef{
	Name:        "web_search",
	Description: "Search the web. Returns titles, URLs, and snippets.",
	Parameters: objSchema(map[string]any{
		"query": strProp("Search query"),
	}, "query"),
	Guidance: "Be specific in queries. Search multiple times with different angles.\n" +
		"Don't trust snippets blindly; use web_fetch on promising URLs.",
}

var webFetchDef = models.ToolDef{
	Name:        "web_fetch",
	Description: "Fetch a webpage and return its content as text.",
	Parameters: objSchema(map[string]any{
		"url": strProp("URL to fetch"),
	}, "url"),
	Guidance: "Content truncated at ~15K chars. Extract data and write to scratch/.",
}

// Memory.

var memoryWriteDef = models.ToolDef{
	Name:        "memory_write",
	Description: "Write to your long-term memory. Survives across sessions.",
	Parameters: objSchema(map[string]any{
		"path":    strProp("Key relative to the memory/ directory"),
		"content": strProp("Content to write"),
	}, "path", "content"),
	Guidance: "Distill insights, don't dump raw data. Organize by topic.",
}

var memoryReadDef = models.ToolDef{
	Name:        "memory_read",
	Description: "Read from your long-term memory.",
	Parameters: objSchema(map[string]any{
		"path": strProp("Key relative to the memory/ directory"),
	}, "path"),
}

var memorySearchDef = models.ToolDef{
	Name:        "memory_search",
	Description: "Search your memory for relevant notes.",
	Parameters: objSchema(map[string]any{
		"query": strProp("Search query"),
	}, "query"),
}

// Scheduling.

var scheduleDef = models.ToolDef{
	Name:        "schedule",
	Description: "Schedule a future action (delayed, at_time, cron, or heartbeat).",
	Parameters: objSchema(map[string]any{
		"type": map[string]any{
			"type":        "string",
			"enum":        []any{"delayed", "at_time", "cron", "heartbeat"},
			"description": "Trigger type",
		},
		"config": map[string]any{
			"type":        "object",
			"description": "Type-specific config: {delay_seconds}, {at: RFC3339}, {cron: str}, {interval_seconds}",
		},
		"action": strProp("Task description for when the trigger fires"),
	}, "type", "config", "action"),
}

var listTriggersDef = models.ToolDef{
	Name:        "list_triggers",
	Description: "List all your active scheduled triggers.",
	Parameters:  objSchema(map[string]any{}),
}

var cancelTriggerDef = models.ToolDef{
	Name:        "cancel_trigger",
	Description: "Cancel a scheduled trigger by ID.",
	Parameters: objSchema(map[string]any{
		"trigger_id": strProp("Trigger ID to cancel"),
	}, "trigger_id"),
}

// Coordinator-only.

var assignWorkerDef = models.ToolDef{
	Name:        "assign_worker",
	Description: "Assign a specific worker to a work item.",
	Parameters: objSchema(map[string]any{
		"item_id":   strProp("Work item ID"),
		"worker_id": strProp("Worker ID"),
	}, "item_id", "worker_id"),
	CoordinatorOnly: true,
}

var spawnWorkerDef = models.ToolDef{
	Name:        "spawn_worker",
	Description: "Create a new worker. Can be model-driven (react), an external coding agent (agent-cli), or a file-bridged external process (file-bridge).",
	Parameters: objSchema(map[string]any{
		"name": strProp("Worker name (e.g. 'Alice')"),
		"role": strProp("Worker role description"),
		"type": map[string]any{
			"type": "string",
			"enum": []any{"react", "agent-cli", "file-bridge"},
		},
		"model": strProp("Model for react workers (e.g. 'anthropic/claude-sonnet-4-5')"),
		"max_iterations": map[string]any{
			"type":        "integer",
			"description": "Max ReAct loop iterations",
		},
	}, "name", "role"),
	CoordinatorOnly: true,
}

var checkBoardDef = models.ToolDef{
	Name:            "check_board",
	Description:     "View all work items and their current status.",
	Parameters:      objSchema(map[string]any{}),
	CoordinatorOnly: true,
}

var reconveneDef = models.ToolDef{
	Name:        "reconvene",
	Description: "End the current stage. Read all outputs and plan next steps.",
	Parameters: objSchema(map[string]any{
		"assessment": strProp("Your analysis of current progress"),
	}, "assessment"),
	CoordinatorOnly: true,
}

var finishDef = models.ToolDef{
	Name:        "finish",
	Description: "Goal achieved. Wrap up and stop the run.",
	Parameters: objSchema(map[string]any{
		"summary": strProp("Final summary of what was accomplished"),
	}, "summary"),
	CoordinatorOnly: true,
}
