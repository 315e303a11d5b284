package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() otpauth.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

// family is one counter instrument with a precomputed attribute set per series.
type family struct {
	instrument metric.Int64ObservableCounter
	ids        []otpauth.MetricID
	attrs      []metric.ObserveOption
}

// OTelExporter publishes storefront metrics as observable instruments. Every
// family is one counter whose series differ by attribute.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family
	buckets      metric.Int64ObservableGauge
	bucketAttrs  []metric.ObserveOption
	count        metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter observes engine through meter.
func NewOTelExporter(meter metric.Meter, engine *otpauth.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource observes any snapshot source through meter.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{instrument: ins}
		for _, s := range def.Series {
			f.ids = append(f.ids, s.ID)
			if def.Label == "" {
				f.attrs = append(f.attrs, metric.WithAttributes())
			} else {
				f.attrs = append(f.attrs, metric.WithAttributes(attribute.String(def.Label, s.Value)))
			}
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	lat := internaldefs.Latency
	buckets, err := meter.Int64ObservableGauge(lat.Name+"_bucket",
		metric.WithDescription(lat.Help+" Cumulative count per upper bound."))
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	for _, le := range internaldefs.HistogramBounds {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", le)))
	}
	count, err := meter.Int64ObservableGauge(lat.Name+"_count",
		metric.WithDescription(lat.Help+" Total samples."))
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	e.buckets, e.count = buckets, count
	observables = append(observables, buckets, count)

	ad := internaldefs.AuditDropped
	if e.auditDropped, err = meter.Int64ObservableCounter(ad.Name, metric.WithDescription(ad.Help)); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	if e.registration, err = meter.RegisterCallback(e.observe, observables...); err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for i, id := range f.ids {
			o.ObserveInt64(f.instrument, int64(snap.Counters[id]), f.attrs[i])
		}
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[internaldefs.Latency.ID]))
	for i, attrs := range e.bucketAttrs {
		o.ObserveInt64(e.buckets, int64(cumulative[i]), attrs)
	}
	o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))

	label := internaldefs.AuditDropped.Label
	for _, c := range internaldefs.DroppedSeries(e.source.AuditDroppedByType()) {
		o.ObserveInt64(e.auditDropped, int64(c.Count), metric.WithAttributes(attribute.String(label, c.Value)))
	}
	return nil
}

// Close unregisters the callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
