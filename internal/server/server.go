// Package server exposes the interpolation engine over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/output"
)

// maxBodyBytes caps the size of a posted cluster.
const maxBodyBytes = 16 << 20

// ClusterRequest is the body of POST /v1/interpolate. Network is a GeoJSON
// LineString or MultiLineString geometry.
type ClusterRequest struct {
	ID            int64                     `json:"id"`
	Network       json.RawMessage           `json:"network"`
	Addresses     []model.AddressPoint      `json:"addresses"`
	Intersections []model.IntersectionPoint `json:"intersections,omitempty"`
}

// Cluster decodes the request into a model.Cluster.
func (r ClusterRequest) Cluster() (*model.Cluster, error) {
	if len(r.Network) == 0 {
		return nil, eris.New("network is required")
	}
	var g geom.T
	if err := geojson.Unmarshal(r.Network, &g); err != nil {
		return nil, err
	}
	return &model.Cluster{
		ID:            r.ID,
		Network:       g,
		Addresses:     r.Addresses,
		Intersections: r.Intersections,
	}, nil
}

// Handler serves interpolation requests.
type Handler struct {
	engine *interpolate.Engine
	opts   output.Options
	log    *zap.Logger
}

// New creates a Handler. opts sets the default feature kinds; requests may
// enable addresses or debug markers with query parameters.
func New(engine *interpolate.Engine, opts output.Options) *Handler {
	return &Handler{
		engine: engine,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router with CORS for allowedOrigins.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Post("/v1/interpolate", h.handleInterpolate)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInterpolate(w http.ResponseWriter, r *http.Request) {
	opts, err := h.options(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ClusterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := req.Cluster()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid network: "+err.Error())
		return
	}

	res, err := h.engine.Process(c)
	if err != nil {
		var ce *model.ClusterError
		if errors.As(err, &ce) {
			h.writeError(w, http.StatusUnprocessableEntity, ce.Error())
			return
		}
		h.log.Error("interpolation failed",
			zap.Int64("cluster_id", c.ID),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "interpolation failed")
		return
	}

	h.log.Debug("cluster interpolated",
		zap.Int64("cluster_id", c.ID),
		zap.Int("features", len(res.Features)),
	)
	h.writeJSON(w, http.StatusOK, output.Collection([]*interpolate.Result{res}, opts))
}

// options applies the addresses and debug query parameters to the defaults.
func (h *Handler) options(r *http.Request) (output.Options, error) {
	opts := h.opts
	q := r.URL.Query()
	for name, dst := range map[string]*bool{"addresses": &opts.Addresses, "debug": &opts.Debug} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, eris.Errorf("invalid %s parameter", name)
		}
		*dst = b
	}
	return opts, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
