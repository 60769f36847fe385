package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pointer/pkg/llm"
)

// ToolID enumerates the tools the model may call.
type ToolID int

const (
	ToolUnknown ToolID = iota
	ReadFile
	DeleteFile
	MoveFile
	CopyFile
	ListDirectory
	WebSearch
	FetchWebpage
	GrepSearch
	RunTerminalCmd
	GetCodebaseOverview
	SearchCodebase
	GetFileOverview
	GetCodebaseIndexingInfo
	CleanupOldCodebaseCache
	GetAICodebaseContext
	QueryCodebaseNaturalLanguage
	GetRelevantCodebaseContext
	ForceCodebaseReindex
	CleanupCodebaseDatabase

	toolCount
)

// canonicalNames is the wire name of every tool.
var canonicalNames = map[ToolID]string{
	ReadFile:                     "read_file",
	DeleteFile:                   "delete_file",
	MoveFile:                     "move_file",
	CopyFile:                     "copy_file",
	ListDirectory:                "list_directory",
	WebSearch:                    "web_search",
	FetchWebpage:                 "fetch_webpage",
	GrepSearch:                   "grep_search",
	RunTerminalCmd:               "run_terminal_cmd",
	GetCodebaseOverview:          "get_codebase_overview",
	SearchCodebase:               "search_codebase",
	GetFileOverview:              "get_file_overview",
	GetCodebaseIndexingInfo:      "get_codebase_indexing_info",
	CleanupOldCodebaseCache:      "cleanup_old_codebase_cache",
	GetAICodebaseContext:         "get_ai_codebase_context",
	QueryCodebaseNaturalLanguage: "query_codebase_natural_language",
	GetRelevantCodebaseContext:   "get_relevant_codebase_context",
	ForceCodebaseReindex:         "force_codebase_reindex",
	CleanupCodebaseDatabase:      "cleanup_codebase_database",
}

// nameAliases are alternative names models commonly emit.
var nameAliases = map[string]ToolID{
	"run_command": RunTerminalCmd,
	"search_web":  WebSearch,
	"list_dir":    ListDirectory,
	"grep":        GrepSearch,
	"open_file":   ReadFile,
	"view_file":   ReadFile,
}

func (id ToolID) String() string {
	if name, ok := canonicalNames[id]; ok {
		return name
	}
	return fmt.Sprintf("ToolID(%d)", int(id))
}

// ArgRule is a required argument and the alternative keys accepted for it.
type ArgRule struct {
	Key     string
	Aliases []string
}

func (r ArgRule) keys() []string {
	return append([]string{r.Key}, r.Aliases...)
}

var (
	filePathArg = ArgRule{Key: "file_path", Aliases: []string{"target_file", "path"}}
	queryArg    = ArgRule{Key: "query"}
)

// requiredArgs lists the arguments each tool cannot run without.
var requiredArgs = map[ToolID][]ArgRule{
	ReadFile:        {filePathArg},
	DeleteFile:      {filePathArg},
	GetFileOverview: {filePathArg},
	MoveFile: {
		{Key: "source_path", Aliases: []string{"source"}},
		{Key: "destination_path", Aliases: []string{"destination"}},
	},
	CopyFile: {
		{Key: "source_path", Aliases: []string{"source"}},
		{Key: "destination_path", Aliases: []string{"destination"}},
	},
	ListDirectory:                {{Key: "directory_path", Aliases: []string{"path", "dir"}}},
	WebSearch:                    {{Key: "search_term", Aliases: []string{"query"}}},
	FetchWebpage:                 {{Key: "url"}},
	GrepSearch:                   {queryArg},
	RunTerminalCmd:               {{Key: "command", Aliases: []string{"cmd"}}},
	SearchCodebase:               {queryArg},
	QueryCodebaseNaturalLanguage: {queryArg},
	GetRelevantCodebaseContext:   {queryArg},
}

// ErrUnknownTool is matched by every UnknownToolError.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError rejects a call naming a tool outside the catalog.
type UnknownToolError struct {
	Name       string
	Suggestion string
}

func (e *UnknownToolError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown tool %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown tool %q", e.Name)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// MissingArgError rejects a call lacking a required argument.
type MissingArgError struct {
	Tool     string
	Arg      string
	Accepted []string
}

func (e *MissingArgError) Error() string {
	return fmt.Sprintf("tool %q requires argument %q (accepted keys: %s)", e.Tool, e.Arg, strings.Join(e.Accepted, ", "))
}

// Catalog is the validated allow-list of tools: schemas, names, aliases and
// argument rules.
type Catalog struct {
	schemas map[ToolID]llm.ToolSchema
	byName  map[string]ToolID
	aliases map[string]ToolID
}

// NewCatalog checks the enum, alias and argument tables against schemas and
// builds the lookup tables. Any tool, alias or required argument without a
// matching schema entry is an error.
func NewCatalog(schemas []llm.ToolSchema) (*Catalog, error) {
	c := &Catalog{
		schemas: make(map[ToolID]llm.ToolSchema, len(schemas)),
		byName:  make(map[string]ToolID, len(canonicalNames)),
		aliases: make(map[string]ToolID, len(nameAliases)),
	}
	for id, name := range canonicalNames {
		c.byName[name] = id
	}

	for _, s := range schemas {
		id, ok := c.byName[s.Name]
		if !ok {
			return nil, fmt.Errorf("schema %q has no tool id", s.Name)
		}
		if _, dup := c.schemas[id]; dup {
			return nil, fmt.Errorf("duplicate schema for %q", s.Name)
		}
		c.schemas[id] = s
	}
	for id := ToolUnknown + 1; id < toolCount; id++ {
		if _, ok := canonicalNames[id]; !ok {
			return nil, fmt.Errorf("tool id %d has no name", int(id))
		}
		if _, ok := c.schemas[id]; !ok {
			return nil, fmt.Errorf("tool %q has no schema", id)
		}
	}
	for alias, id := range nameAliases {
		if _, ok := c.schemas[id]; !ok {
			return nil, fmt.Errorf("alias %q maps to unmapped tool %d", alias, int(id))
		}
		if _, clash := c.byName[alias]; clash {
			return nil, fmt.Errorf("alias %q shadows a tool name", alias)
		}
		c.aliases[alias] = id
	}
	for id, rules := range requiredArgs {
		props, _ := c.schemas[id].Parameters["properties"].(map[string]any)
		for _, r := range rules {
			if _, ok := props[r.Key]; !ok {
				return nil, fmt.Errorf("tool %q requires %q but its schema does not declare it", id, r.Key)
			}
		}
	}
	return c, nil
}

// DefaultCatalog returns the catalog built from DefaultSchemas. It panics on
// an inconsistent table, which can only happen through a code change.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSchemas())
	if err != nil {
		panic("tools: " + err.Error())
	}
	return c
}

// Schemas returns the tool schema list in enum order.
func (c *Catalog) Schemas() []llm.ToolSchema {
	ids := make([]ToolID, 0, len(c.schemas))
	for id := range c.schemas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]llm.ToolSchema, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.schemas[id])
	}
	return out
}

// Names returns every canonical tool name in enum order.
func (c *Catalog) Names() []string {
	schemas := c.Schemas()
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

// Name returns the canonical name of id.
func (c *Catalog) Name(id ToolID) string {
	return canonicalNames[id]
}

// Resolve maps a name as emitted by a model to a tool. It accepts canonical
// names, a "functions." prefix and the alias table.
func (c *Catalog) Resolve(name string) (ToolID, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "functions.")
	if id, ok := c.byName[n]; ok {
		return id, true
	}
	if id, ok := c.aliases[n]; ok {
		return id, true
	}
	return ToolUnknown, false
}

// Suggest returns the tool name closest to name by substring containment,
// or "" when nothing is close.
func (c *Catalog) Suggest(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "functions.")
	if n == "" {
		return ""
	}

	best, bestScore := "", 0
	for _, candidate := range c.Names() {
		score := 0
		switch {
		case strings.Contains(candidate, n):
			score = len(n)
		case strings.Contains(n, candidate):
			score = len(candidate)
		default:
			// word level: "read" matches "read_file"
			for _, w := range strings.FieldsFunc(n, isNameSeparator) {
				if len(w) > 2 && strings.Contains(candidate, w) && len(w) > score {
					score = len(w)
				}
			}
		}
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}

func isNameSeparator(r rune) bool {
	return r == '_' || r == '-' || r == '.' || r == ' '
}

// Check resolves name and validates args. It returns the resolved id, or an
// *UnknownToolError or *MissingArgError.
func (c *Catalog) Check(name string, args map[string]any) (ToolID, error) {
	id, ok := c.Resolve(name)
	if !ok {
		return ToolUnknown, &UnknownToolError{Name: name, Suggestion: c.Suggest(name)}
	}
	for _, r := range requiredArgs[id] {
		if lookupArg(args, r) == nil {
			return id, &MissingArgError{Tool: c.Name(id), Arg: r.Key, Accepted: r.keys()}
		}
	}
	return id, nil
}

// Canonicalize returns a copy of args where every required argument given
// under an alias is also present under its canonical key.
func (c *Catalog) Canonicalize(id ToolID, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	for _, r := range requiredArgs[id] {
		if present(out[r.Key]) {
			continue
		}
		if v := lookupArg(args, r); v != nil {
			out[r.Key] = v
		}
	}
	return out
}

func lookupArg(args map[string]any, r ArgRule) any {
	for _, k := range r.keys() {
		if v, ok := args[k]; ok && present(v) {
			return v
		}
	}
	return nil
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	default:
		return true
	}
}
