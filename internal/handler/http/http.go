package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
)

const paramID = "id"

var (
	idRegexp = regexp.MustCompile(`^[a-f\d]{8}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{12}$`)
)

type StartService interface {
	Start(ctx context.Context) (string, error)
}

type StatusService interface {
	Get(ctx context.Context, id string) (*entity.RunSession, error)
	List(ctx context.Context) ([]*entity.RunSession, error)
}

type startResponse struct {
	ID string `json:"id"`
}

// NewStartHandler does not wait for the run, the request context is not passed to it.
func NewStartHandler(srv StartService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StartHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := srv.Start(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, common.ErrRunAlreadyStarted):
				http.Error(w, "Run has already started", http.StatusConflict)
			default:
				log.Error("Cannot start run", slog.Any("error", err))
				http.Error(w, "Cannot start run", http.StatusInternalServerError)
			}

			return
		}

		log.Info("Run started", slog.String("id", id))
		writeJSON(w, http.StatusAccepted, &startResponse{ID: id}, log)
	}
}

func NewStatusHandler(srv StatusService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatusHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, paramID)
		if !idRegexp.MatchString(id) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		session, err := srv.Get(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrRunNotFound):
				http.Error(w, "Cannot find run", http.StatusNotFound)
			default:
				log.Error("Cannot get run", slog.String("id", id), slog.Any("error", err))
				http.Error(w, "Cannot get run", http.StatusInternalServerError)
			}

			return
		}

		writeJSON(w, http.StatusOK, session, log)
	}
}

func NewListHandler(srv StatusService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := srv.List(r.Context())
		if err != nil {
			log.Error("Cannot list runs", slog.Any("error", err))
			http.Error(w, "Cannot list runs", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, sessions, log)
	}
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Cannot write response", slog.Any("error", err))
	}
}
