// Package api exposes the chat backend over HTTP.
//
// Routes:
//   - POST   /api/chat                         send a message, get the assistant reply
//   - GET    /api/chat/conversations           list the caller's conversations
//   - GET    /api/chat/conversations/{id}      conversation with full message history
//   - DELETE /api/chat/conversations/{id}      delete a conversation
//   - GET    /ws/chat                          websocket chat with tool-activity events
//   - GET    /health, GET /metrics
//
// All /api and /ws routes require a bearer JWT; the subject claim is the
// caller identity every store access is scoped to.
package api
