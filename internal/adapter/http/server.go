package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/disaster-risk-service/internal/assess"
	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

const maxBodyBytes = 1 << 20

const elevationFailureMessage = "Failed to fetch elevation data."

// Assessor is the risk service behind the JSON API.
type Assessor interface {
	Assess(ctx context.Context, query string) (*assess.Assessment, error)
	Predict(ctx context.Context, obs domain.Observation) (assess.Outcome, error)
	Retrain(ctx context.Context) (*classifier.Report, error)
}

// ElevationLookup returns the raw elevation provider response for a point.
type ElevationLookup interface {
	Lookup(ctx context.Context, geo domain.Geo) ([]byte, error)
}

// Server exposes health, readiness, metrics, the risk API and the elevation proxy.
type Server struct {
	httpServer *http.Server
	assessor   Assessor
	elevation  ElevationLookup
	logger     *slog.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(addr string, assessor Assessor, elevation ElevationLookup, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      allowAnyOrigin(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		assessor:  assessor,
		elevation: elevation,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/assess", s.handleAssess)
	mux.HandleFunc("POST /api/v1/predict", s.handlePredict)
	mux.HandleFunc("POST /api/v1/model/retrain", s.handleRetrain)
	mux.HandleFunc("GET /elevation", s.handleElevation)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	a, err := s.assessor.Assess(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a)
}

// predictRequest is the /api/v1/predict body. The weather fields shadow the
// embedded ones as pointers so an omitted field is distinguishable from zero.
type predictRequest struct {
	domain.Observation
	Temperature *float64 `json:"temp"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	WindSpeed   *float64 `json:"wind_speed"`
	Rain1h      *float64 `json:"rain_1h"`
}

// observation returns the request as a domain.Observation, failing on the
// first missing weather field.
func (req predictRequest) observation() (domain.Observation, error) {
	obs := req.Observation
	required := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"temp", req.Temperature, &obs.Temperature},
		{"humidity", req.Humidity, &obs.Humidity},
		{"pressure", req.Pressure, &obs.Pressure},
		{"wind_speed", req.WindSpeed, &obs.WindSpeed},
		{"rain_1h", req.Rain1h, &obs.Rain1h},
	}
	for _, f := range required {
		if f.src == nil {
			return domain.Observation{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidObservation, f.name)
		}
		*f.dst = *f.src
	}
	return obs, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid observation: %v", err)))
		return
	}
	obs, err := req.observation()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.assessor.Predict(r.Context(), obs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	// Training outlives the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clear write deadline", "error", err)
	}

	report, err := s.assessor.Retrain(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleElevation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody("lat and lon must be numbers"))
		return
	}

	body, err := s.elevation.Lookup(r.Context(), domain.Geo{Lat: lat, Lon: lon})
	if err != nil {
		s.logger.Error("elevation proxy failed", "lat", lat, "lon", lon, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody(elevationFailureMessage))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // client went away
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var acqErr *assess.AcquisitionError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &acqErr):
		status = http.StatusBadGateway
	case errors.Is(err, assess.ErrEmptyQuery), errors.Is(err, domain.ErrInvalidObservation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrLocationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, classifier.ErrUnstablePrediction):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, classifier.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, assess.ErrRetrainInProgress):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// allowAnyOrigin lets the browser dashboard call the API from any origin.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
