// Package mcp exposes Charles to AI agents over the Model Context Protocol.
//
// Client is a thin proxy: every tool calls the REST API of a running server
// and turns the JSON answer into readable text. The same MCP server is
// reachable two ways:
//   - POST /mcp on the HTTP server, one JSON-RPC message per request
//   - stdio, via "charles mcp", which starts an internal HTTP server when
//     none answers at the configured address
//
// Tools:
//   - create_session, list_sessions, get_session
//   - world_state: ASCII grid with the robot drawn as an arrow
//   - act: one robot action, with an intent explanation
//   - run_program: a robot script
//   - reset_world, set_step_delay, action_history
//   - generate_layout, load_world, save_world, list_worlds
//   - robot_instructions: world rules and script reference
//
// Illegal robot actions are not tool errors; the text reports them. Tool
// errors are returned for unreachable servers, unknown sessions and bad
// arguments.
package mcp
