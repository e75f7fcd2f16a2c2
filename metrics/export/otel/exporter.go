package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is implemented by *authflow.Engine.
type MetricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
}

var _ MetricsSource = (*authflow.Engine)(nil)

type observedCounter struct {
	id         authflow.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter holds the registered instruments. Close unregisters them.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	counters     []observedCounter
	buckets      []metric.Int64ObservableGauge
	count        metric.Int64ObservableGauge
}

// NewExporter registers observable instruments on meter that read source on
// every collection.
func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(internaldefs.CounterDefs)),
	}
	suffixes := internaldefs.BoundSuffixes()
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(suffixes)+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.FullName(), metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.FullName(), err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	latency := internaldefs.ValidateLatency
	for _, suffix := range suffixes {
		name := latency.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		e.buckets = append(e.buckets, ins)
		observables = append(observables, ins)
	}
	count, err := meter.Int64ObservableGauge(latency.Name+"_count", metric.WithDescription(latency.Help))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	e.count = count
	observables = append(observables, count)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

// observe skips counters absent from the snapshot, so a disabled engine
// reports nothing.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		v, ok := snapshot.Counters[c.id]
		if !ok {
			continue
		}
		o.ObserveInt64(c.instrument, int64(v))
	}

	raw, ok := snapshot.Histograms[authflow.MetricValidateLatency]
	if !ok {
		return nil
	}
	cumulative := internaldefs.Cumulative(raw)
	for i, ins := range e.buckets {
		o.ObserveInt64(ins, int64(cumulative[i]))
	}
	o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))
	return nil
}

// Close unregisters the callback. It is safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
