// Package operator expõe a superfície HTTP mínima de operação: listar e
// editar o catálogo de jobs, ajustar as ligas habilitadas, e um probe de
// saúde agregado. Grounded no shape Router()/writeJSON de
// odds-service/http, generalizado de endpoints de consulta de odds para
// endpoints de administração do pipeline de ingestão.
package operator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/frame"
	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
	"github.com/radieske/live-odds-ingestion/internal/ingest/scheduler"
	"github.com/radieske/live-odds-ingestion/internal/ingest/store"
	"github.com/radieske/live-odds-ingestion/internal/ingest/upstream"
)

// API é a fachada HTTP do operador sobre o tick store, o governor do
// upstream e os hooks de hot-reload do scheduler e do loop ao vivo.
type API struct {
	Store      *store.TickStore
	Governor   *upstream.Governor
	Dispatcher *scheduler.Dispatcher
	Aggregator *frame.Aggregator
	Log        *zap.Logger

	// OnJobsUpdated é chamado após um PATCH bem-sucedido em /v1/jobs/{name},
	// tipicamente Scheduler.SetJobs com o catálogo recarregado do store.
	OnJobsUpdated func(jobs []model.Job)
	// OnLeaguesUpdated é chamado após um PUT em /v1/leagues, tipicamente
	// Loop.SetConfig com EnabledLeagues substituído.
	OnLeaguesUpdated func(leagueIDs []int64)

	enabledLeagues []int64
}

// Router monta o roteador chi com os endpoints de administração.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/jobs", a.listJobs)
	r.Patch("/v1/jobs/{name}", a.updateJob)
	r.Get("/v1/leagues", a.listLeagues)
	r.Put("/v1/leagues", a.updateLeagues)
	r.Get("/v1/health", a.health)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Store.Jobs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type updateJobRequest struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Spec    *string `json:"spec,omitempty"`
}

// updateJob edita enabled e/ou spec de um job do catálogo, persiste via
// UpsertJob e dispara OnJobsUpdated para o scheduler reconstruir o
// schedule dentro de seu ciclo de hot-reload (<=1s).
func (a *API) updateJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	jobs, err := a.Store.Jobs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	idx := -1
	for i, j := range jobs {
		if j.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}

	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if req.Enabled != nil {
		jobs[idx].Enabled = *req.Enabled
	}
	if req.Spec != nil {
		jobs[idx].Spec = *req.Spec
	}

	if err := a.Store.UpsertJob(r.Context(), jobs[idx]); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if a.OnJobsUpdated != nil {
		a.OnJobsUpdated(jobs)
	}
	writeJSON(w, http.StatusOK, jobs[idx])
}

func (a *API) listLeagues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled_leagues": a.enabledLeagues})
}

type updateLeaguesRequest struct {
	EnabledLeagues []int64 `json:"enabled_leagues"`
}

func (a *API) updateLeagues(w http.ResponseWriter, r *http.Request) {
	var req updateLeaguesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	a.enabledLeagues = req.EnabledLeagues
	if a.OnLeaguesUpdated != nil {
		a.OnLeaguesUpdated(req.EnabledLeagues)
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled_leagues": a.enabledLeagues})
}

// health agrega utilização do pool de conexões, créditos restantes do
// governor, profundidade de cada fila de despacho e o atraso mais recente
// do agregador de frames num único probe, além do ping direto ao banco.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	body := map[string]any{"status": "ok"}
	if err := a.Store.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["db_error"] = err.Error()
	} else {
		body["db_pool_utilization"] = a.Store.Utilization()
	}
	if a.Governor != nil {
		body["upstream_rpd_remaining"] = a.Governor.Remaining()
	}
	if a.Dispatcher != nil {
		body["queue_depth"] = a.Dispatcher.Depths()
	}
	if a.Aggregator != nil {
		body["frames_lag_seconds"] = a.Aggregator.LastLagSeconds()
	}
	writeJSON(w, http.StatusOK, body)
}
