// Package assistant maps typed user queries to shell actions. It is
// a deliberate keyword dispatcher: anything it does not recognize
// comes back as a help response rather than a guess.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

// Response is the assistant's answer to one query. Action, when set,
// names a shell-side effect the UI should perform (e.g. "navigate").
type Response struct {
	Text   string      `json:"text"`
	Action string      `json:"action,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Assistant turns one line of user input into a response.
type Assistant interface {
	ProcessQuery(ctx context.Context, text string) (*Response, error)
}

// ToolRunner is the slice of the MCP manager the assistant needs.
type ToolRunner interface {
	CallTool(ctx context.Context, call *mcp.ToolCall) *mcp.ToolResult
	DiscoverTools(ctx context.Context, serverID string) ([]mcp.ToolInfo, error)
	GetConnectedServers() []string
}

// HistorySearcher looks up browsing history.
type HistorySearcher interface {
	SearchHistory(ctx context.Context, query string, limit int) ([]store.HistoryEntry, error)
}

// ContextReader exposes the current page context.
type ContextReader interface {
	GetCurrentContext() (*pagecontext.PageContext, bool)
}

// CommandRegistry is the keyword-dispatch Assistant implementation.
type CommandRegistry struct {
	tools    ToolRunner
	history  HistorySearcher
	contexts ContextReader
	commands map[string]command
}

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, args []string) (*Response, error)
}

// New builds the registry with the standard command set.
func New(tools ToolRunner, history HistorySearcher, contexts ContextReader) *CommandRegistry {
	r := &CommandRegistry{
		tools:    tools,
		history:  history,
		contexts: contexts,
		commands: make(map[string]command),
	}
	r.register("open", "open <url>", "navigate to a page", r.cmdOpen)
	r.register("history", "history <query>", "search browsing history", r.cmdHistory)
	r.register("tools", "tools [server]", "list available tools", r.cmdTools)
	r.register("call", "call <server> <tool> [json]", "invoke a tool", r.cmdCall)
	r.register("servers", "servers", "list connected tool servers", r.cmdServers)
	r.register("context", "context", "show the current page context", r.cmdContext)
	r.register("help", "help", "show this help", r.cmdHelp)
	return r
}

func (r *CommandRegistry) register(name, usage, summary string, run func(context.Context, []string) (*Response, error)) {
	r.commands[name] = command{usage: usage, summary: summary, run: run}
}

// ProcessQuery dispatches one line of input to the matching command.
// Unrecognized input returns the help response, never an error.
func (r *CommandRegistry) ProcessQuery(ctx context.Context, text string) (*Response, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return r.cmdHelp(ctx, nil)
	}

	cmd, ok := r.commands[strings.ToLower(fields[0])]
	if !ok {
		resp, err := r.cmdHelp(ctx, nil)
		if err != nil {
			return nil, err
		}
		resp.Text = fmt.Sprintf("I don't understand %q.\n%s", fields[0], resp.Text)
		return resp, nil
	}
	return cmd.run(ctx, fields[1:])
}

func (r *CommandRegistry) cmdOpen(_ context.Context, args []string) (*Response, error) {
	if len(args) == 0 {
		return &Response{Text: "Usage: open <url>"}, nil
	}
	url := args[0]
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	return &Response{
		Text:   fmt.Sprintf("Opening %s", url),
		Action: "navigate",
		Data:   url,
	}, nil
}

func (r *CommandRegistry) cmdHistory(ctx context.Context, args []string) (*Response, error) {
	if len(args) == 0 {
		return &Response{Text: "Usage: history <query>"}, nil
	}
	query := strings.Join(args, " ")
	entries, err := r.history.SearchHistory(ctx, query, 10)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}
	if len(entries) == 0 {
		return &Response{Text: fmt.Sprintf("No history matching %q.", query)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d pages matching %q:\n", len(entries), query)
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s — %s\n", e.Title, e.URL)
	}
	return &Response{Text: strings.TrimRight(b.String(), "\n"), Data: entries}, nil
}

func (r *CommandRegistry) cmdTools(ctx context.Context, args []string) (*Response, error) {
	servers := r.tools.GetConnectedServers()
	if len(args) > 0 {
		servers = []string{args[0]}
	}
	if len(servers) == 0 {
		return &Response{Text: "No tool servers connected."}, nil
	}

	var b strings.Builder
	listed := 0
	for _, id := range servers {
		tools, err := r.tools.DiscoverTools(ctx, id)
		if err != nil {
			fmt.Fprintf(&b, "%s: %v\n", id, err)
			continue
		}
		for _, tool := range tools {
			fmt.Fprintf(&b, "%s: %s — %s\n", id, tool.Name, tool.Description)
			listed++
		}
	}
	if listed == 0 && b.Len() == 0 {
		return &Response{Text: "No tools available."}, nil
	}
	return &Response{Text: strings.TrimRight(b.String(), "\n")}, nil
}

func (r *CommandRegistry) cmdCall(ctx context.Context, args []string) (*Response, error) {
	if len(args) < 2 {
		return &Response{Text: "Usage: call <server> <tool> [json]"}, nil
	}
	serverID, toolName := args[0], args[1]

	params := map[string]interface{}{}
	if len(args) > 2 {
		raw := strings.Join(args[2:], " ")
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return &Response{Text: fmt.Sprintf("Invalid tool arguments: %v", err)}, nil
		}
	}

	result := r.tools.CallTool(ctx, &mcp.ToolCall{
		ServerID: serverID,
		ToolName: toolName,
		Params:   params,
	})
	if !result.Success {
		return &Response{Text: fmt.Sprintf("Tool call failed: %s", result.Error), Data: result}, nil
	}
	return &Response{Text: fmt.Sprintf("%v", result.Data), Data: result}, nil
}

func (r *CommandRegistry) cmdServers(_ context.Context, _ []string) (*Response, error) {
	servers := r.tools.GetConnectedServers()
	if len(servers) == 0 {
		return &Response{Text: "No tool servers connected."}, nil
	}
	return &Response{
		Text: "Connected servers: " + strings.Join(servers, ", "),
		Data: servers,
	}, nil
}

func (r *CommandRegistry) cmdContext(_ context.Context, _ []string) (*Response, error) {
	pc, ok := r.contexts.GetCurrentContext()
	if !ok {
		return &Response{Text: "No page context captured yet."}, nil
	}
	text := fmt.Sprintf("Current page: %s (%s)", pc.Title, pc.URL)
	if pc.Selection != "" {
		text += fmt.Sprintf("\nSelection: %s", pc.Selection)
	}
	return &Response{Text: text, Data: pc}, nil
}

func (r *CommandRegistry) cmdHelp(_ context.Context, _ []string) (*Response, error) {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		cmd := r.commands[name]
		fmt.Fprintf(&b, "  %-28s %s\n", cmd.usage, cmd.summary)
	}
	return &Response{Text: strings.TrimRight(b.String(), "\n")}, nil
}
