package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dirgate/internal/directory"
	"dirgate/internal/extensions"
	"dirgate/pkg/faults"
)

// customerAttr is the extension attribute the user routes select and log.
const customerAttr = "Customer"

// extensionsField is the request/response sub-object holding logical
// extension attributes.
const extensionsField = "extensions"

// Server exposes the HTTP surface over the orchestrator.
type Server struct {
	log *zap.SugaredLogger
	svc *Service
	ext *extensions.Namespacer

	userProps []string
}

func NewServer(log *zap.SugaredLogger, svc *Service, ext *extensions.Namespacer) *Server {
	return &Server{
		log: log,
		svc: svc,
		ext: ext,
		userProps: []string{
			"id", "displayName", "givenName", "surname", "identities",
			ext.Key(customerAttr),
		},
	}
}

// Register mounts the gateway routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/login", s.beginLogin)
	r.Get("/auth/callback", s.completeLogin)
	r.Route("/users", func(ur chi.Router) {
		ur.Get("/", s.listUsers)
		ur.Post("/", s.createUser)
		ur.Get("/{upn}", s.getUser)
		ur.Patch("/{upn}", s.updateUser)
		ur.Delete("/{upn}", s.deleteUser)
	})
}

func (s *Server) beginLogin(w http.ResponseWriter, r *http.Request) {
	url, err := s.svc.BeginLogin(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}
	_, accountID, err := s.svc.CompleteLogin(r.Context(), state, code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"account_id": accountID}, http.StatusOK)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ServiceDirectory().ListUsers(r.Context(), s.userProps)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, s.fold(u))
	}
	writeJSON(w, map[string]any{"value": out}, http.StatusOK)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.decodeUser(w, r)
	if !ok {
		return
	}
	if err := s.svc.ServiceDirectory().CreateUser(r.Context(), user); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	upn := chi.URLParam(r, "upn")
	user, err := s.svc.ServiceDirectory().GetUser(r.Context(), upn, s.userProps)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	folded := s.fold(user)
	if ext, ok := folded[extensionsField].(map[string]any); ok {
		s.log.Infow("user fetched", "upn", upn, customerAttr, ext[customerAttr])
	}
	writeJSON(w, folded, http.StatusOK)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	upn := chi.URLParam(r, "upn")
	user, ok := s.decodeUser(w, r)
	if !ok {
		return
	}
	if err := s.svc.ServiceDirectory().UpdateUser(r.Context(), upn, user); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	upn := chi.URLParam(r, "upn")
	if err := s.svc.ServiceDirectory().DeleteUser(r.Context(), upn); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeUser reads a user payload and rewrites its "extensions" sub-object
// into physical keys.
func (s *Server) decodeUser(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var user map[string]any
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return nil, false
	}
	if raw, ok := user[extensionsField]; ok {
		ext, ok := raw.(map[string]any)
		if !ok {
			http.Error(w, "extensions must be an object", http.StatusBadRequest)
			return nil, false
		}
		delete(user, extensionsField)
		for k, v := range s.ext.ApplyToRecord(ext) {
			user[k] = v
		}
	}
	return user, true
}

// fold converts a directory record's physical extension keys back into the
// logical "extensions" sub-object.
func (s *Server) fold(user map[string]any) map[string]any {
	plain, ext := s.ext.StripFromRecord(user)
	if ext != nil {
		plain[extensionsField] = ext
	}
	return plain
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var serr *directory.StatusError
	switch {
	case errors.Is(err, faults.ErrStateNotFound),
		errors.Is(err, faults.ErrInvalidGrant),
		errors.Is(err, faults.ErrMissingIDToken):
		http.Error(w, "authentication failed", http.StatusUnauthorized)
	case errors.Is(err, faults.ErrUpstreamUnavailable):
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	case errors.Is(err, faults.ErrConfiguration):
		s.log.Errorw("configuration error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	case errors.As(err, &serr):
		http.Error(w, serr.Error(), serr.StatusCode)
	default:
		s.log.Errorw("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
