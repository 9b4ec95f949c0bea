package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/worlds"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// programs run with a step delay and can take a while
			Timeout: 2 * time.Minute,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Charles",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Charles - MCP Interface

Charles is a robot on a walled grid. He can step forward, turn left or right,
put a ball on his cell and pick a ball up. Stepping into a wall, picking up
from an empty cell or putting a ball on an occupied cell is illegal: the
action is rejected and nothing changes.

This is a thin client that proxies all requests to the REST API server.

AVAILABLE TOOLS:
- create_session: Create a world (a saved world name or a layout name)
- list_sessions / get_session: Inspect sessions
- world_state: Grid, robot position and heading
- act: One action (step, turn_left, turn_right, put_ball, get_ball)
- run_program: Run a robot script
- reset_world, set_step_delay: Session controls
- generate_layout, load_world, save_world, list_worlds: Worlds
- action_history: Past actions
- robot_instructions: The script language reference`),
	)

	c.registerTools()
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func numberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

var sessionProp = stringProp("Session ID")

func (c *Client) registerTools() {
	// Sessions
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new session. world may name a saved world or a layout (empty, ball_string, ball_chaos, ball_path, cave, church).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"world": stringProp("World or layout name (optional)"),
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all sessions, most recently used first",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProp},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Robot
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "world_state",
		Description: "Show the grid with the robot, its heading and the 3x3 view around it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProp},
			Required:   []string{"session_id"},
		},
	}, c.handleWorldState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "act",
		Description: "Perform one robot action - explain your intent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"action":     stringProp("step, turn_left, turn_right, put_ball or get_ball"),
				"intent":     stringProp("Why you are taking this action"),
			},
			Required: []string{"session_id", "action", "intent"},
		},
	}, c.handleAct)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_program",
		Description: "Run a robot script. It stops at the first illegal action and reports the line.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"source":     stringProp("Script source, see robot_instructions"),
				"intent":     stringProp("What the program is meant to do"),
			},
			Required: []string{"session_id", "source", "intent"},
		},
	}, c.handleRunProgram)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_world",
		Description: "Reset to the empty bordered world with the robot at its start",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProp},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_step_delay",
		Description: "Set the pause after each successful action, in milliseconds",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"ms":         numberProp("Delay in milliseconds"),
			},
			Required: []string{"session_id", "ms"},
		},
	}, c.handleSetStepDelay)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "action_history",
		Description: "View past actions with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"page":       numberProp("Page number (default 1)"),
				"limit":      numberProp("Actions per page (default 20, max 100)"),
				"order":      stringProp("asc or desc (default desc)"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleHistory)

	// Worlds
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "generate_layout",
		Description: "Replace the world with a generated layout",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"layout":     stringProp("empty, ball_string, ball_chaos, ball_path, cave or church"),
				"seed":       numberProp("Random seed for a reproducible layout (optional)"),
			},
			Required: []string{"session_id", "layout"},
		},
	}, c.handleGenerate)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "load_world",
		Description: "Load a saved world into a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"world":      stringProp("World name"),
			},
			Required: []string{"session_id", "world"},
		},
	}, c.handleLoadWorld)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "save_world",
		Description: "Save the session's walls and robot start as a named world",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp,
				"world":      stringProp("World name"),
			},
			Required: []string{"session_id", "world"},
		},
	}, c.handleSaveWorld)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_worlds",
		Description: "List the saved worlds",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}, c.handleListWorlds)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "robot_instructions",
		Description: "Rules of the world and the robot script language",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) apiCall(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func sessionPath(args map[string]any, suffix string) (string, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + url.PathEscape(id) + suffix, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	world, _ := arguments(request)["world"].(string)

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", map[string]string{"world": world}, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Created session: %s\nWorld: %s\n\n%s", info.ID, info.World, formatState(info.State))
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                    `json:"count"`
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sessions: %d\n", response.Count)
	for _, s := range response.Sessions {
		b.WriteString(formatSessionInfo(s))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info) + "\n" + formatState(info.State)), nil
}

func (c *Client) handleWorldState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var state engine.State
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatState(&state)), nil
}

func (c *Client) handleAct(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/act")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, _ := args["action"].(string)

	var result service.ActionResult
	if err := c.apiCall(ctx, "POST", path, map[string]string{"action": action}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatActionResult(&result)), nil
}

func (c *Client) handleRunProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/program")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, _ := args["source"].(string)

	var result service.ProgramResult
	if err := c.apiCall(ctx, "POST", path, map[string]string{"source": source}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatProgramResult(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/reset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var response struct {
		Message string        `json:"message"`
		State   *engine.State `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(response.Message + "\n\n" + formatState(response.State)), nil
}

func (c *Client) handleSetStepDelay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/delay")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ms, ok := args["ms"].(float64)
	if !ok {
		return mcp.NewToolResultError("ms must be a number"), nil
	}

	var state engine.State
	if err := c.apiCall(ctx, "POST", path, map[string]int{"ms": int(ms)}, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Step delay: %dms", state.StepDelayMs)), nil
}

func (c *Client) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/history")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if page, ok := args["page"].(float64); ok {
		query.Set("page", fmt.Sprint(int(page)))
	}
	if limit, ok := args["limit"].(float64); ok {
		query.Set("limit", fmt.Sprint(int(limit)))
	}
	if order, ok := args["order"].(string); ok && order != "" {
		query.Set("order", order)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/generate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	layout, _ := args["layout"].(string)

	body := map[string]any{"layout": layout}
	if seed, ok := args["seed"].(float64); ok {
		body["seed"] = int64(seed)
	}

	var result service.GenerateResult
	if err := c.apiCall(ctx, "POST", path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Generated %s\n\n%s", layout, formatState(result.State))), nil
}

func (c *Client) handleLoadWorld(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/load")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	world, _ := args["world"].(string)

	var state engine.State
	if err := c.apiCall(ctx, "POST", path, map[string]string{"world": world}, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Loaded %s\n\n%s", world, formatState(&state))), nil
}

func (c *Client) handleSaveWorld(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/save")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	world, _ := args["world"].(string)

	if err := c.apiCall(ctx, "POST", path, map[string]string{"world": world}, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Saved world " + world), nil
}

func (c *Client) handleListWorlds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var list []*worlds.Info
	if err := c.apiCall(ctx, "GET", "/api/worlds", nil, &list); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Worlds: %d\n", len(list))
	for _, w := range list {
		fmt.Fprintf(&b, "- %s: robot at %s facing %s, %d horizontal and %d vertical walls\n",
			w.Name, w.Agent, w.Heading, w.HorizontalWalls, w.VerticalWalls)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `CHARLES

THE WORLD
The grid is surrounded by walls. x grows to the East, y grows to the North,
so (0,0) is the bottom-left corner. Cells are '#' wall, 'o' ball, '.' empty.
In world_state the robot is drawn as an arrow: ^ north, < west, v south, > east.

ACTIONS
  step         move one cell forward; illegal into a wall
  turn_left    quarter turn counter-clockwise
  turn_right   quarter turn clockwise
  put_ball     drop a ball; illegal if the cell already has one
  get_ball     pick up a ball; illegal if there is none

An illegal action changes nothing and is reported with its kind.

SCRIPTS (run_program)
  step [n]                  one or n steps
  steps n                   n steps
  turn_left, turn_right, put_ball, get_ball
  draw_line_with_balls n    put a ball then step, n times
  rest ms                   change the step delay
  follow_path [n]           follow a ball trail
  fill_cave [columns]       fill a cave with balls
  circle_church [n]         walk around the church
  repeat n { ... }
  while [not] COND { ... }
  if [not] COND { ... } else { ... }
  // comments run to the end of the line

Conditions: on_ball, wall_ahead, north

Example, walk to the wall and mark it:
  while not wall_ahead { step }
  put_ball
`

// Formatting

func formatSessionInfo(s *service.SessionInfo) string {
	if s == nil {
		return ""
	}
	busy := ""
	if s.Busy {
		busy = " (running a program)"
	}
	return fmt.Sprintf("- %s: world %q, created %s, last used %s%s\n",
		s.ID, s.World, s.CreatedAt.Format(time.RFC3339), s.LastAccessedAt.Format(time.RFC3339), busy)
}

// arrows by engine.Direction
var arrows = [4]byte{'^', '<', 'v', '>'}

func formatState(state *engine.State) string {
	if state == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Robot at (%d,%d) facing %s\n", state.Agent.X, state.Agent.Y, state.Heading)
	fmt.Fprintf(&b, "Grid %dx%d, balls %d, actions %d\n", state.Width, state.Height, state.Balls, state.CurrentActions)
	if state.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", state.Message)
	}
	if len(state.LocalView) > 0 {
		b.WriteString("Around the robot:\n")
		for _, row := range state.LocalView {
			b.WriteString("  " + row + "\n")
		}
	}
	b.WriteString("\n")
	for i, row := range state.Rows {
		y := state.Height - 1 - i
		if y == state.Agent.Y && state.Agent.X < len(row) && state.Direction.Valid() {
			line := []byte(row)
			line[state.Agent.X] = arrows[state.Direction]
			row = string(line)
		}
		b.WriteString(row + "\n")
	}
	return b.String()
}

func formatActionResult(r *service.ActionResult) string {
	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "OK %s: (%d,%d) -> (%d,%d)\n", r.Action, r.From.X, r.From.Y, r.To.X, r.To.Y)
	} else {
		fmt.Fprintf(&b, "ILLEGAL %s at (%d,%d): %s\n", r.Action, r.From.X, r.From.Y, r.Message)
	}
	b.WriteString(formatState(r.State))
	return b.String()
}

func formatProgramResult(r *service.ProgramResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Program %s after %d actions\n", r.StopReason, r.Stats.Actions)
	if !r.Success {
		if r.Line > 0 {
			fmt.Fprintf(&b, "Stopped at line %d column %d: %s\n", r.Line, r.Column, r.Message)
		} else {
			fmt.Fprintf(&b, "Stopped: %s\n", r.Message)
		}
	}
	b.WriteString(formatState(r.State))
	return b.String()
}

func formatHistory(h *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Actions %d, page %d of %d\n", h.Total, h.Page, h.TotalPages)
	for _, e := range h.Actions {
		status := "ok"
		if !e.Success {
			status = e.Error
		}
		fmt.Fprintf(&b, "#%d %s (%d,%d)->(%d,%d) %s\n", e.Number, e.Action, e.From.X, e.From.Y, e.To.X, e.To.Y, status)
	}
	return b.String()
}
