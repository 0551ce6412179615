package trajectory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/flow.report/internal/metrics"
	"github.com/banshee-data/flow.report/internal/monitoring"
)

var logf = monitoring.Component("trajectory")

// RayCaster turns pixels into world rays from a fixed centre.
type RayCaster interface {
	Position() r3.Vector
	PixelToRay(px, py float64) r3.Vector
}

// Intersecter finds the first terrain crossing of a ray.
type Intersecter interface {
	Intersect(origin, direction r3.Vector) (r3.Vector, bool)
}

// Projector maps tracked samples to terrain positions.
type Projector struct {
	camera RayCaster
	terr   Intersecter
}

// NewProjector returns a projector for one camera and terrain.
func NewProjector(camera RayCaster, terr Intersecter) (*Projector, error) {
	if camera == nil || terr == nil {
		return nil, errors.New("trajectory: camera and intersector are required")
	}
	return &Projector{camera: camera, terr: terr}, nil
}

// ProjectSample projects one sample. ok is false when the ray misses.
func (p *Projector) ProjectSample(s TrackedSample) (ProjectedPoint, bool) {
	hit, ok := p.terr.Intersect(p.camera.Position(), p.camera.PixelToRay(s.X, s.Y))
	if !ok {
		return ProjectedPoint{}, false
	}
	return ProjectedPoint{Filename: s.Filename, Timestamp: s.Timestamp, Position: hit}, true
}

// Project maps every sample of a track, in input order. Samples whose ray
// misses the terrain are omitted from Points and listed in Dropped. Samples
// are expected in timestamp order; Project does not reorder them.
func (p *Projector) Project(track Track) ProjectedTrack {
	start := time.Now()
	out := ProjectedTrack{ID: track.ID, Points: make([]ProjectedPoint, 0, len(track.Samples))}
	for _, s := range track.Samples {
		pt, ok := p.ProjectSample(s)
		if !ok {
			logf("track %s: no terrain intersection for %s at pixel (%.0f, %.0f)", track.ID, s.Filename, s.X, s.Y)
			out.Dropped = append(out.Dropped, s)
			continue
		}
		out.Points = append(out.Points, pt)
	}

	metrics.ObserveSamples(metrics.OutcomeProjected, len(out.Points))
	metrics.ObserveSamples(metrics.OutcomeDropped, len(out.Dropped))
	metrics.ObserveTrackProjection(time.Since(start))
	return out
}

type projectJob struct {
	index int
	track Track
}

type projectResult struct {
	index int
	track ProjectedTrack
}

// ProjectTracks projects independent tracks on a fixed pool of workers. The
// result slice has the same order as tracks. When ctx is cancelled no new
// tracks are started and ctx.Err() is returned with no results.
func (p *Projector) ProjectTracks(ctx context.Context, tracks []Track, workers int) ([]ProjectedTrack, error) {
	if len(tracks) == 0 {
		return nil, ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(tracks) {
		workers = len(tracks)
	}

	jobs := make(chan projectJob, workers*2)
	results := make(chan projectResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := projectResult{index: job.index, track: p.Project(job.track)}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, t := range tracks {
			select {
			case jobs <- projectJob{index: i, track: t}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]ProjectedTrack, len(tracks))
	done := 0
	for r := range results {
		out[r.index] = r.track
		done++
	}
	if err := ctx.Err(); err != nil && done < len(tracks) {
		return nil, err
	}
	return out, nil
}
