package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultLogTail = 200
	maxLogTail     = 10000
)

// fail writes err in the envelope. Internal errors are logged and their
// text is not returned to the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if types.Code(err) == "INTERNAL" {
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Internal error")
		writeJSON(w, http.StatusInternalServerError, ApiResponse{
			Status:  "fail",
			Code:    "INTERNAL",
			Message: "internal error, request " + middleware.GetReqID(r.Context()),
		})
		return
	}
	respondError(w, err)
}

// containerAction adapts a name-only lifecycle operation to a handler
func (s *Server) containerAction(op func(*http.Request, types.Actor, string) error, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := op(r, actorFrom(r.Context()), name); err != nil {
			s.fail(w, r, err)
			return
		}
		respondSuccess(w, http.StatusOK, message, map[string]string{"name": name})
	}
}

func (s *Server) createContainer(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := decodeRequestBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.svc.Create(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, "container created", c)
}

func (s *Server) listMine(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListMine(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", views)
}

func (s *Server) listAll(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListAll(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", views)
}

func (s *Server) batchStats(w http.ResponseWriter, r *http.Request) {
	batch, err := s.svc.BatchStats(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", batch)
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.SweepAs(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := "no orphans"
	if !report.Clean() {
		msg = "orphans found"
	}
	respondSuccess(w, http.StatusOK, msg, report)
}

func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", view)
}

func (s *Server) resetContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.Reset(r.Context(), a, name)
	}, "container reset")(w, r)
}

func (s *Server) startContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.Start(r.Context(), a, name)
	}, "container started")(w, r)
}

func (s *Server) stopContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.Stop(r.Context(), a, name)
	}, "container stopped")(w, r)
}

func (s *Server) restartContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.Restart(r.Context(), a, name)
	}, "container restarted")(w, r)
}

func (s *Server) deleteContainer(w http.ResponseWriter, r *http.Request) {
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.Delete(r.Context(), a, name)
	}, "container deleted")(w, r)
}

// ChangePasswordRequest is the body of PUT /api/containers/{name}/password
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeRequestBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.containerAction(func(r *http.Request, a types.Actor, name string) error {
		return s.svc.ChangePassword(r.Context(), a, name, req.Password)
	}, "password changed")(w, r)
}

func (s *Server) containerLogs(w http.ResponseWriter, r *http.Request) {
	tail := defaultLogTail
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogTail {
			s.fail(w, r, types.Validationf("tail must be between 1 and %d", maxLogTail))
			return
		}
		tail = n
	}

	logs, err := s.svc.Logs(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name"), tail)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", map[string]string{"logs": logs})
}

func (s *Server) containerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", stats)
}

func (s *Server) jupyterURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.svc.JupyterURL(actorFrom(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", map[string]string{"url": url})
}

func (s *Server) searchImages(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.SearchImages(r.Context(), actorFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", results)
}

func (s *Server) openTicket(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.TicketRequest
	if err := decodeRequestBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ticket, err := s.svc.OpenTicket(actorFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, "ticket opened", ticket)
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.svc.Tickets(actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", tickets)
}

func (s *Server) gpuTelemetry(w http.ResponseWriter, r *http.Request) {
	if err := lifecycle.Authorize(actorFrom(r.Context()), lifecycle.AnyUser); err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", s.telemetry.GPUs())
}

func (s *Server) hostInfo(w http.ResponseWriter, r *http.Request) {
	if err := lifecycle.Authorize(actorFrom(r.Context()), lifecycle.AdminOnly); err != nil {
		s.fail(w, r, err)
		return
	}
	host, err := s.telemetry.Host()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "", host)
}
