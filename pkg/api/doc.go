/*
Package api implements the gpubox REST API.

The server is a chi router in front of lifecycle.Manager. Every route under
/api requires a bearer token; the verified token becomes the types.Actor
passed to the lifecycle operation, which performs all authorization itself.
The telemetry routes have no lifecycle operation behind them and check the
same policies through lifecycle.Authorize.

	┌──────────── client ────────────┐
	│  Authorization: Bearer <jwt>   │
	└───────────────┬────────────────┘
	                │ HTTP
	┌───────────────▼──── gpubox serve ─────────────────┐
	│  RequestID → instrument → Recoverer → authenticate │
	│                       │                            │
	│              handlers (pkg/api)                    │
	│                       │                            │
	│              lifecycle.Manager                     │
	│          ┌────────────┼────────────┐               │
	│      BoltStore     engine.CLI   ports.Allocator    │
	└────────────────────────────────────────────────────┘

# Routes

	POST   /api/containers                    create (admin)
	GET    /api/containers                    own containers with status
	GET    /api/containers/all                every container (admin)
	GET    /api/containers/stats              batch stats (admin)
	POST   /api/containers/sweep              orphan report (admin)
	GET    /api/containers/{name}             one container
	DELETE /api/containers/{name}             delete (admin)
	POST   /api/containers/{name}/reset       reset (owner)
	POST   /api/containers/{name}/start       start (admin)
	POST   /api/containers/{name}/stop        stop (admin)
	POST   /api/containers/{name}/restart     restart (owner)
	PUT    /api/containers/{name}/password    change password (owner)
	GET    /api/containers/{name}/logs        log tail, ?tail=200
	GET    /api/containers/{name}/stats       one stats sample
	GET    /api/containers/{name}/jupyter     Jupyter URL
	GET    /api/images/search?q=              image search
	POST   /api/tickets                       open a ticket
	GET    /api/tickets                       list tickets
	GET    /api/gpus/telemetry                GPU telemetry
	GET    /api/host                          host capacity (admin)

/health, /live, /ready and /metrics are served without authentication.

# Responses

Every answer uses the same envelope:

	{"status": "success|fail", "code": "OK|VALIDATION_ERROR|...", "message": "...", "data": ...}

Error kinds map to HTTP statuses in errors.go: validation 400,
unauthenticated 401, authorization 403, not found 404, conflict 409,
resource exhausted 503, timeout 504, engine 502. A partial failure answers
500 with the completed and failed halves in data. Other errors answer 500
with a request ID and are only described in the log.
*/
package api
