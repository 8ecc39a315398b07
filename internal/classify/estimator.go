package classify

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/samber/lo"
)

var (
	// ErrUnknownArea is returned when predicting for an unsupported area.
	ErrUnknownArea = errors.New("unknown area")
	// ErrNoTrainingData is returned when predicting before any history is fitted.
	ErrNoTrainingData = errors.New("no training data")
)

// Line is a fitted pages = Intercept + Slope*depth model.
type Line struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	Samples   int     `json:"samples"`
	// Source is "area" for a per-area fit or "global" for the fallback.
	Source string `json:"source"`
}

// At evaluates the line, clamping negative estimates to zero.
func (l Line) At(depth int) float64 {
	return max(0, l.Intercept+l.Slope*float64(depth))
}

type point struct {
	depth float64
	pages float64
}

// Estimator predicts page counts from crawl history.
type Estimator struct {
	mu     sync.RWMutex
	global *Line
	areas  map[string]Line
}

// NewEstimator returns an untrained estimator.
func NewEstimator() *Estimator {
	return &Estimator{areas: make(map[string]Line)}
}

// Train replaces the model with one fitted to entries. Entries with
// unsupported labels only contribute to the global fit.
func (e *Estimator) Train(entries []db.HistoryEntry) error {
	if len(entries) == 0 {
		return ErrNoTrainingData
	}

	all := lo.Map(entries, func(h db.HistoryEntry, _ int) point {
		return point{depth: float64(h.Depth), pages: float64(h.PagesExtracted)}
	})
	global := fit(all)
	global.Source = "global"

	grouped := lo.GroupBy(entries, func(h db.HistoryEntry) string { return h.AreaLabel })

	areas := make(map[string]Line, len(areaKeywords))
	for _, area := range SupportedAreas() {
		rows, ok := grouped[area]
		if !ok {
			continue
		}
		points := lo.Map(rows, func(h db.HistoryEntry, _ int) point {
			return point{depth: float64(h.Depth), pages: float64(h.PagesExtracted)}
		})
		if distinctDepths(points) < 2 {
			continue
		}
		line := fit(points)
		line.Source = "area"
		areas[area] = line
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.global = &global
	e.areas = areas
	return nil
}

// Trained reports whether Train has succeeded.
func (e *Estimator) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global != nil
}

// PredictPages estimates the pages a crawl of depth will extract for area.
func (e *Estimator) PredictPages(area string, depth int) (float64, error) {
	line, err := e.LineFor(area)
	if err != nil {
		return 0, err
	}
	return line.At(depth), nil
}

// LineFor returns the model used for area.
func (e *Estimator) LineFor(area string) (Line, error) {
	if !IsSupportedArea(area) {
		return Line{}, fmt.Errorf("%w: %q", ErrUnknownArea, area)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.global == nil {
		return Line{}, ErrNoTrainingData
	}
	if line, ok := e.areas[area]; ok {
		return line, nil
	}
	return *e.global, nil
}

// Lines returns the model used for every supported area.
func (e *Estimator) Lines() (map[string]Line, error) {
	lines := make(map[string]Line, len(areaKeywords))
	for _, area := range SupportedAreas() {
		line, err := e.LineFor(area)
		if err != nil {
			return nil, err
		}
		lines[area] = line
	}
	return lines, nil
}

// fit is an ordinary least-squares fit; with a single distinct depth it
// degrades to the mean.
func fit(points []point) Line {
	n := float64(len(points))
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.depth
		sumY += p.pages
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for _, p := range points {
		dx := p.depth - meanX
		sxx += dx * dx
		sxy += dx * (p.pages - meanY)
	}

	if sxx == 0 {
		return Line{Intercept: meanY, Samples: len(points)}
	}
	slope := sxy / sxx
	return Line{Intercept: meanY - slope*meanX, Slope: slope, Samples: len(points)}
}

func distinctDepths(points []point) int {
	return len(lo.UniqBy(points, func(p point) float64 { return p.depth }))
}
