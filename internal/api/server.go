// Package api serves stored tracks, speed series and calibrations over HTTP.
package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/banshee-data/flow.report/internal/db"
	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/httputil"
	"github.com/banshee-data/flow.report/internal/metrics"
	"github.com/banshee-data/flow.report/internal/report"
	"github.com/banshee-data/flow.report/internal/units"
)

// errorStatuses maps store errors onto HTTP statuses.
var errorStatuses = []httputil.StatusMapping{
	{Err: db.ErrTrackNotFound, Status: http.StatusNotFound},
	{Err: db.ErrNoProjection, Status: http.StatusNotFound},
}

// Server answers API requests from the stored tracks, projections, speeds
// and calibrations.
type Server struct {
	db    *db.DB
	units string
}

// NewServer returns a server reporting speeds in units unless a request
// asks for others.
func NewServer(database *db.DB, units string) *Server {
	return &Server{db: database, units: units}
}

// ServeMux registers the API, chart and metrics routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tracks", s.listTracks)
	mux.HandleFunc("GET /api/tracks/{id}/points", s.trackPoints)
	mux.HandleFunc("GET /api/tracks/{id}/speeds", s.trackSpeeds)
	mux.HandleFunc("GET /api/calibrations", s.listCalibrations)
	mux.HandleFunc("GET /charts/speeds", s.speedChart)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Handler wraps mux with request logging and metrics.
func (s *Server) Handler(mux http.Handler) http.Handler {
	return LoggingMiddleware(metrics.Middleware(mux))
}

// requestUnits returns the units query parameter or the server default.
func (s *Server) requestUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		u = s.units
	}
	return u, units.IsValid(u)
}

type trackResponse struct {
	db.TrackSummary
	LatestRun *db.ProjectionRun `json:"latest_run,omitempty"`
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.db.Tracks().List()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		resp := trackResponse{TrackSummary: t}
		if run, err := s.db.Projections().LatestRun(t.ID); err == nil {
			resp.LatestRun = &run
		}
		out = append(out, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type pointResponse struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	X         float64   `json:"utm_x"`
	Y         float64   `json:"utm_y"`
	Z         float64   `json:"utm_z"`
}

func (s *Server) trackPoints(w http.ResponseWriter, r *http.Request) {
	run, points, err := s.db.Projections().Latest(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err, errorStatuses...)
		return
	}
	out := make([]pointResponse, len(points))
	for i, p := range points {
		out[i] = pointResponse{Filename: p.Filename, Timestamp: p.Timestamp, X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"points": out,
	})
}

type speedResponse struct {
	pointResponse
	Displacement *float64 `json:"line_displacement_m"`
	Speed        *float64 `json:"speed"`
}

// summaryResponse is flow.Summary with speeds in the response units.
type summaryResponse struct {
	Samples           int     `json:"samples"`
	Defined           int     `json:"defined"`
	MeanSpeed         float64 `json:"mean_speed"`
	MinSpeed          float64 `json:"min_speed"`
	MaxSpeed          float64 `json:"max_speed"`
	TotalDisplacement float64 `json:"total_displacement_m"`
}

func convertSummary(sum flow.Summary, unit string) summaryResponse {
	return summaryResponse{
		Samples:           sum.Samples,
		Defined:           sum.Defined,
		MeanSpeed:         units.ConvertRate(sum.MeanSpeed, unit),
		MinSpeed:          units.ConvertRate(sum.MinSpeed, unit),
		MaxSpeed:          units.ConvertRate(sum.MaxSpeed, unit),
		TotalDisplacement: sum.TotalDisplacement,
	}
}

func (s *Server) trackSpeeds(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units: want one of "+units.GetValidUnitsString())
		return
	}
	run, samples, err := s.db.Speeds().Latest(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err, errorStatuses...)
		return
	}
	out := make([]speedResponse, len(samples))
	for i, sample := range samples {
		p := sample.Point
		out[i] = speedResponse{
			pointResponse: pointResponse{Filename: p.Filename, Timestamp: p.Timestamp, X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
			Displacement:  sample.Displacement,
		}
		if sample.Speed != nil {
			v := units.ConvertRate(*sample.Speed, unit)
			out[i].Speed = &v
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":     run,
		"units":   unit,
		"summary": convertSummary(flow.Summarize(samples), unit),
		"samples": out,
	})
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 50, 1, 1000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cals, err := s.db.Calibrations().List(limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if cals == nil {
		cals = []db.Calibration{}
	}
	httputil.WriteJSON(w, http.StatusOK, cals)
}

func (s *Server) speedChart(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units: want one of "+units.GetValidUnitsString())
		return
	}
	series, err := s.db.Speeds().AllLatest()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.RenderSpeedChart(&buf, series, unit); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
