package streaming

import "context"

// MultiPublisher fans one Publish out to every wrapped Publisher, so an
// auto-refresh completion can be both logged and pushed to live dashboard
// clients from a single call site. The first error is reported; every
// target still gets called.
type MultiPublisher struct {
	targets []Publisher
}

func NewMultiPublisher(targets ...Publisher) *MultiPublisher {
	return &MultiPublisher{targets: targets}
}

func (m *MultiPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	var firstErr error
	for _, t := range m.targets {
		if err := t.Publish(ctx, topic, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiPublisher) Close() error {
	var firstErr error
	for _, t := range m.targets {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
