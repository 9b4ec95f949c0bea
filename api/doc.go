// Package api serves the robot worlds over HTTP.
//
// Sessions:
//   - POST   /api/sessions              {"world": "labyrinth"} or a layout name
//   - GET    /api/sessions              ?sort=created|accessed&order=asc|desc&limit=N
//   - GET    /api/sessions/{id}
//   - DELETE /api/sessions/{id}
//
// Robot:
//   - GET  /api/sessions/{id}/state
//   - POST /api/sessions/{id}/act       {"action": "step"}
//   - POST /api/sessions/{id}/program   {"source": "while not wall_ahead { step }"}
//   - POST /api/sessions/{id}/delay     {"ms": 50}
//   - POST /api/sessions/{id}/reset
//   - GET  /api/sessions/{id}/history   ?page=1&limit=20&order=desc
//
// Worlds:
//   - POST /api/sessions/{id}/generate  {"layout": "cave", "seed": 7}
//   - POST /api/sessions/{id}/load      {"world": "labyrinth"}
//   - POST /api/sessions/{id}/save      {"world": "mine"}
//   - GET  /api/worlds
//   - GET  /api/worlds/{name}
//   - GET  /api/layouts
//
// GET /ws?session={id} upgrades to the websocket viewer stream and
// GET /health reports liveness.
//
// An illegal robot action is not an HTTP error: /act and /program answer 200
// with success false and the error kind. Unknown sessions and worlds give 404;
// unknown actions, layouts, script syntax errors and invalid worlds give 400.
//
// Every response carries an X-Request-ID header, echoed from the request when
// present and generated otherwise.
package api
