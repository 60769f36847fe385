package tools

import "pointer/pkg/llm"

func obj(required []string, props map[string]any) map[string]any {
	p := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		p["required"] = required
	}
	return p
}

func str(desc string) map[string]any  { return map[string]any{"type": "string", "description": desc} }
func num(desc string) map[string]any  { return map[string]any{"type": "integer", "description": desc} }
func flag(desc string) map[string]any { return map[string]any{"type": "boolean", "description": desc} }

func noArgs() map[string]any { return obj(nil, map[string]any{}) }

// DefaultSchemas is the tool list sent to the model on every request.
func DefaultSchemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "read_file",
			Description: "Read the contents of a file",
			Parameters: obj([]string{"file_path"}, map[string]any{
				"file_path":   str("The path to the file to read (can be relative to workspace)"),
				"target_file": str("Alternative path to the file to read (takes precedence over file_path, can be relative)"),
			}),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file",
			Parameters: obj([]string{"file_path"}, map[string]any{
				"file_path":   str("Path to the file to delete (can be relative to workspace)"),
				"target_file": str("Alternative path to the file to delete (takes precedence over file_path, can be relative)"),
			}),
		},
		{
			Name:        "move_file",
			Description: "Move or rename a file",
			Parameters: obj([]string{"source_path", "destination_path"}, map[string]any{
				"source_path":        str("Current path of the file (can be relative to workspace)"),
				"destination_path":   str("New path for the file (can be relative to workspace)"),
				"create_directories": flag("Whether to create parent directories if they don't exist (default: true)"),
			}),
		},
		{
			Name:        "copy_file",
			Description: "Copy a file to a new location",
			Parameters: obj([]string{"source_path", "destination_path"}, map[string]any{
				"source_path":        str("Path of the file to copy (can be relative to workspace)"),
				"destination_path":   str("Path where the copy should be created (can be relative to workspace)"),
				"create_directories": flag("Whether to create parent directories if they don't exist (default: true)"),
			}),
		},
		{
			Name:        "list_directory",
			Description: "List the contents of a directory",
			Parameters: obj([]string{"directory_path"}, map[string]any{
				"directory_path": str("The path to the directory to list (can be relative to workspace)"),
			}),
		},
		{
			Name:        "web_search",
			Description: "Search the web for information",
			Parameters: obj([]string{"search_term"}, map[string]any{
				"search_term": str("The search query"),
				"query":       str("Alternative search query (search_term takes precedence)"),
				"num_results": num("Number of results to return (default: 3)"),
			}),
		},
		{
			Name:        "fetch_webpage",
			Description: "Fetch and extract content from a webpage",
			Parameters: obj([]string{"url"}, map[string]any{
				"url": str("The URL of the webpage to fetch"),
			}),
		},
		{
			Name:        "grep_search",
			Description: "Search for a pattern in files",
			Parameters: obj([]string{"query"}, map[string]any{
				"query":           str("The pattern to search for"),
				"include_pattern": str("Optional file pattern to include (e.g. '*.ts')"),
				"exclude_pattern": str("Optional file pattern to exclude (e.g. 'node_modules')"),
				"case_sensitive":  flag("Whether the search should be case sensitive"),
			}),
		},
		{
			Name: "run_terminal_cmd",
			Description: "Execute a terminal/console command and return the output. You MUST provide the 'command' parameter " +
				"with the actual shell command to execute (e.g., 'ls -la', 'npm run build', 'git status'). " +
				"Returns stdout, stderr and exit code.",
			Parameters: obj([]string{"command"}, map[string]any{
				"command":           str("The shell command to execute"),
				"working_directory": str("Optional directory to run the command in (relative to workspace)"),
				"timeout":           num("Optional maximum seconds to wait for completion (default: 30)"),
			}),
		},
		{
			Name:        "get_codebase_overview",
			Description: "Get a comprehensive overview of the current codebase",
			Parameters:  noArgs(),
		},
		{
			Name:        "search_codebase",
			Description: "Search for code elements in the indexed codebase",
			Parameters: obj([]string{"query"}, map[string]any{
				"query":         str("Search query for code element names or signatures"),
				"element_types": str("Optional comma-separated list of element types to filter by (function, class, interface, component, type)"),
				"limit":         num("Maximum number of results to return"),
			}),
		},
		{
			Name:        "get_file_overview",
			Description: "Get an overview of a specific file including its code elements",
			Parameters: obj([]string{"file_path"}, map[string]any{
				"file_path": str("Path to the file to get overview for"),
			}),
		},
		{
			Name:        "get_codebase_indexing_info",
			Description: "Get information about the current codebase indexing setup",
			Parameters:  noArgs(),
		},
		{
			Name:        "cleanup_old_codebase_cache",
			Description: "Clean up old .pointer_cache directory in the workspace",
			Parameters:  noArgs(),
		},
		{
			Name:        "get_ai_codebase_context",
			Description: "Get a comprehensive AI-friendly summary of the entire codebase",
			Parameters:  noArgs(),
		},
		{
			Name:        "query_codebase_natural_language",
			Description: "Ask natural language questions about the codebase structure and content",
			Parameters: obj([]string{"query"}, map[string]any{
				"query": str("Natural language question about the codebase"),
			}),
		},
		{
			Name:        "get_relevant_codebase_context",
			Description: "Get relevant code context for a specific task or query",
			Parameters: obj([]string{"query"}, map[string]any{
				"query":     str("Description of what you're working on or need context for"),
				"max_files": num("Maximum number of relevant files to return (default: 5)"),
			}),
		},
		{
			Name:        "force_codebase_reindex",
			Description: "Force a fresh reindex of the current codebase to ensure up-to-date information",
			Parameters:  noArgs(),
		},
		{
			Name:        "cleanup_codebase_database",
			Description: "Clean up stale entries from the codebase database (files that no longer exist)",
			Parameters:  noArgs(),
		},
	}
}
