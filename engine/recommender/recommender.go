// Package recommender implements C4: fetch a data source's historical
// window, run the period detector, threshold algorithm, and block merger
// per time series, and classify the overall run outcome.
package recommender

import (
	"context"
	"errors"
	"time"

	"github.com/volcengine/ite/engine/algorithm/merge"
	"github.com/volcengine/ite/engine/algorithm/threshold"
	"github.com/volcengine/ite/engine/datasource"
	"github.com/volcengine/ite/engine/model"
)

// Config carries the tunables for one CalculateThreshold run.
type Config struct {
	FetchTimeout      time.Duration
	HistoricalDays    int
	DataInterval      int // seconds
	DefaultWindowSize int
	AutoWindowAdjust  bool
	Threshold         threshold.Config
	Merge             merge.Config
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:      time.Hour,
		HistoricalDays:    7,
		DataInterval:      60,
		DefaultWindowSize: 3,
		AutoWindowAdjust:  true,
		Threshold:         threshold.DefaultConfig(),
		Merge:             merge.DefaultConfig(),
	}
}

// Executor runs C4 against a datasource.Fetcher.
type Executor struct {
	cfg     Config
	fetcher datasource.Fetcher
	nowUnix func() int64
}

// NewExecutor builds an Executor. nowUnix exists so tests can pin the
// fetch window's end time.
func NewExecutor(cfg Config, fetcher datasource.Fetcher, nowUnix func() int64) *Executor {
	return &Executor{cfg: cfg, fetcher: fetcher, nowUnix: nowUnix}
}

// Result is the outcome of one CalculateThreshold run.
type Result struct {
	Status       model.TaskVersionStatus
	ErrorMessage string
	Series       []model.MetricThresholdResult
}

// CalculateThreshold fetches the historical window for req.DatasourceID and
// runs C1->C2->C3 per series, merging the up and down passes when
// req.Direction is model.DirectionBoth.
func (e *Executor) CalculateThreshold(ctx context.Context, req model.TaskRequest) Result {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	end := e.nowUnix()
	start := end - int64(e.cfg.HistoricalDays)*secondsPerDay

	series, err := e.fetcher.FetchData(fetchCtx, req.DatasourceID, start, end, e.cfg.DataInterval)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return Result{Status: model.StatusFailed, ErrorMessage: "fetch timed out"}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{Status: model.StatusFailed, ErrorMessage: "cancelled"}
		}
		return Result{Status: model.StatusFailed, ErrorMessage: err.Error()}
	}
	if len(series) == 0 {
		return Result{Status: model.StatusNoData, ErrorMessage: "no data returned"}
	}

	if req.Direction == model.DirectionBoth {
		up, upV, upI := e.runDirection(series, req, model.DirectionUp)
		down, downV, downI := e.runDirection(series, req, model.DirectionDown)
		merged := mergeUpDown(e.cfg.Merge, up, down)
		return classify(merged, upV+downV, upI+downI)
	}

	results, validationErrs, internalErrs := e.runDirection(series, req, req.Direction)
	return classify(results, validationErrs, internalErrs)
}

// runDirection runs the per-series pipeline for one direction, returning
// the results plus counts of how many series failed input validation vs.
// failed for any other reason.
func (e *Executor) runDirection(series []model.TimeSeries, req model.TaskRequest, direction model.Direction) (results []model.MetricThresholdResult, validationErrs, internalErrs int) {
	minValue, maxValue := normalizeTemplateBounds(req.MetricTemplateValue.MinValue, req.MetricTemplateValue.MaxValue)
	var normalThreshold *float64
	if direction == model.DirectionUp {
		normalThreshold = req.MetricTemplateValue.NormalRangeEnd
	} else {
		normalThreshold = req.MetricTemplateValue.NormalRangeStart
	}
	minTSLength := req.MetricTemplateValue.MinTSLength
	if minTSLength <= 0 {
		minTSLength = minSeriesPoints
	}

	for _, s := range series {
		key := s.UniqueKey
		if key == "" {
			key = model.UniqueKey(s.Name, s.Labels)
		}
		result := model.MetricThresholdResult{Name: s.Name, Labels: s.Labels, UniqueKey: key}

		if err := validateInputData(s.Timestamps, s.Values); err != nil {
			result.Status = model.StatusFailed
			result.ErrorMessage = err.Error()
			validationErrs++
			results = append(results, result)
			continue
		}

		blocks := func() (out []threshold.Block) {
			defer func() {
				if recover() != nil {
					out = nil
				}
			}()
			return threshold.RecommendThreshold(
				e.cfg.Threshold, s.Timestamps, s.Values,
				e.cfg.DefaultWindowSize, true, e.cfg.AutoWindowAdjust,
				minValue, maxValue, normalThreshold, minTSLength,
				req.Sensitivity, direction,
			)
		}()
		if blocks == nil {
			result.Status = model.StatusFailed
			result.ErrorMessage = "threshold estimation failed"
			internalErrs++
			results = append(results, result)
			continue
		}

		configs := threshold.ToConfigs(blocks, direction, e.cfg.DefaultWindowSize)
		result.Thresholds = merge.Merge(e.cfg.Merge, configs)
		result.Status = model.StatusSuccess
		results = append(results, result)
	}
	return results, validationErrs, internalErrs
}

// classify mirrors the original run classification: partial success is
// still an overall Success (with the failed series' individual Failed
// entries kept in Series); a run with zero successes is always Failed,
// with the reason picking whichever failure mode dominates.
func classify(results []model.MetricThresholdResult, validationErrs, internalErrs int) Result {
	success := 0
	for _, r := range results {
		if r.Status == model.StatusSuccess {
			success++
		}
	}
	if success > 0 {
		return Result{Status: model.StatusSuccess, Series: results}
	}
	if validationErrs >= internalErrs && validationErrs > 0 {
		return Result{Status: model.StatusFailed, ErrorMessage: "Input Data Validation Error", Series: results}
	}
	if internalErrs > 0 {
		return Result{Status: model.StatusFailed, ErrorMessage: "Internal Server Error", Series: results}
	}
	return Result{Status: model.StatusFailed, ErrorMessage: "no series", Series: results}
}
