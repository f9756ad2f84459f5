package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/volcengine/ite/engine/model"
)

// HTTPFetcher is the default Fetcher: it calls a metrics-provider query
// endpoint over plain HTTP and normalizes the response into
// model.TimeSeries. Concrete providers (volcengine Cloud Monitor,
// Prometheus, etc.) are expected to sit behind the same endpoint contract
// or a thin adapter implementing Fetcher directly.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type fetchResponseSeries struct {
	Name       string            `json:"name"`
	Labels     map[string]string `json:"labels"`
	UniqueKey  string            `json:"unique_key"`
	Timestamps []int64           `json:"timestamps"`
	Values     []float64         `json:"values"`
}

// FetchData implements Fetcher over the query endpoint
// `<baseURL>/query?datasource_id=&start=&end=&interval=`.
func (f *HTTPFetcher) FetchData(ctx context.Context, datasourceID string, startUnix, endUnix int64, intervalSeconds int) ([]model.TimeSeries, error) {
	q := url.Values{}
	q.Set("datasource_id", datasourceID)
	q.Set("start", strconv.FormatInt(startUnix, 10))
	q.Set("end", strconv.FormatInt(endUnix, 10))
	q.Set("interval", strconv.Itoa(intervalSeconds))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("datasource: query returned status %d", resp.StatusCode)
	}

	var payload []fetchResponseSeries
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("datasource: decode response: %w", err)
	}

	series := make([]model.TimeSeries, len(payload))
	for i, s := range payload {
		series[i] = model.TimeSeries{
			Name:       s.Name,
			Labels:     s.Labels,
			UniqueKey:  s.UniqueKey,
			Timestamps: s.Timestamps,
			Values:     s.Values,
		}
	}
	return series, nil
}
