// Prometheus text-format metrics for the controller host
//
// Counters, gauges and histograms are declared with a fixed list of label
// names; each distinct tuple of label values is one series. Gather writes
// every registered metric in registration order with series sorted by
// label values, so scrapes are stable.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType is the Prometheus TYPE of a metric.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Metric is anything the registry can expose.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect(sb *strings.Builder)
}

// desc holds what every metric kind shares.
type desc struct {
	name   string
	help   string
	labels []string
}

func (d *desc) Name() string { return d.name }
func (d *desc) Help() string { return d.help }

// key joins label values; 0xff never appears in valid UTF-8.
func (d *desc) key(values []string) string {
	if len(values) != len(d.labels) {
		panic(fmt.Sprintf("metrics: %s takes %d label values, got %d", d.name, len(d.labels), len(values)))
	}
	return strings.Join(values, "\xff")
}

func (d *desc) header(sb *strings.Builder, t MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, t)
}

// labelString renders {a="x",b="y"}, with extra appended last (used for le).
func (d *desc) labelString(values []string, extra ...string) string {
	if len(d.labels) == 0 && len(extra) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	n := 0
	pair := func(k, v string) {
		if n > 0 {
			sb.WriteByte(',')
		}
		n++
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(v))
		sb.WriteByte('"')
	}
	for i, name := range d.labels {
		pair(name, values[i])
	}
	for i := 0; i+1 < len(extra); i += 2 {
		pair(extra[i], extra[i+1])
	}
	sb.WriteByte('}')
	return sb.String()
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// seriesSet is a label-keyed map of series with stable iteration.
type seriesSet[T any] struct {
	mu     sync.RWMutex
	series map[string]*T
	values map[string][]string
}

func (s *seriesSet[T]) get(key string, values []string, mk func() *T) *T {
	s.mu.RLock()
	v, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.series[key]; ok {
		return v
	}
	if s.series == nil {
		s.series = make(map[string]*T)
		s.values = make(map[string][]string)
	}
	v = mk()
	s.series[key] = v
	s.values[key] = append([]string(nil), values...)
	return v
}

func (s *seriesSet[T]) lookup(key string) (*T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.series[key]
	return v, ok
}

func (s *seriesSet[T]) each(fn func(values []string, v *T)) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	type entry struct {
		values []string
		v      *T
	}
	entries := make([]entry, len(keys))
	for i, k := range keys {
		entries[i] = entry{s.values[k], s.series[k]}
	}
	s.mu.RUnlock()
	for _, e := range entries {
		fn(e.values, e.v)
	}
}

// Counter only goes up.
type Counter struct {
	desc
	set seriesSet[atomic.Uint64]
}

// NewCounter declares a counter with the given label names.
func NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{desc: desc{name: name, help: help, labels: labels}}
}

func (c *Counter) Type() MetricType { return TypeCounter }

// Inc adds one to the series named by values.
func (c *Counter) Inc(values ...string) { c.Add(1, values...) }

// Add adds delta to the series named by values.
func (c *Counter) Add(delta uint64, values ...string) {
	c.set.get(c.key(values), values, func() *atomic.Uint64 { return new(atomic.Uint64) }).Add(delta)
}

// Value returns the current count, zero for an unseen series.
func (c *Counter) Value(values ...string) uint64 {
	if v, ok := c.set.lookup(c.key(values)); ok {
		return v.Load()
	}
	return 0
}

func (c *Counter) Collect(sb *strings.Builder) {
	c.header(sb, TypeCounter)
	c.set.each(func(values []string, v *atomic.Uint64) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, c.labelString(values), v.Load())
	})
}

type gaugeValue struct {
	mu sync.Mutex
	v  float64
}

// Gauge can go up and down.
type Gauge struct {
	desc
	set seriesSet[gaugeValue]
}

// NewGauge declares a gauge with the given label names.
func NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{desc: desc{name: name, help: help, labels: labels}}
}

func (g *Gauge) Type() MetricType { return TypeGauge }

func (g *Gauge) series(values []string) *gaugeValue {
	return g.set.get(g.key(values), values, func() *gaugeValue { return new(gaugeValue) })
}

// Set replaces the value of a series.
func (g *Gauge) Set(v float64, values ...string) {
	s := g.series(values)
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// Add moves a series by delta, which may be negative.
func (g *Gauge) Add(delta float64, values ...string) {
	s := g.series(values)
	s.mu.Lock()
	s.v += delta
	s.mu.Unlock()
}

// Value returns the current value, zero for an unseen series.
func (g *Gauge) Value(values ...string) float64 {
	s, ok := g.set.lookup(g.key(values))
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (g *Gauge) Collect(sb *strings.Builder) {
	g.header(sb, TypeGauge)
	g.set.each(func(values []string, s *gaugeValue) {
		s.mu.Lock()
		v := s.v
		s.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %s\n", g.name, g.labelString(values), formatFloat(v))
	})
}

type histogramValue struct {
	mu     sync.Mutex
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// Histogram counts observations into fixed upper-bound buckets.
type Histogram struct {
	desc
	bounds []float64
	set    seriesSet[histogramValue]
}

// NewHistogram declares a histogram. Bounds are sorted; +Inf is implicit.
func NewHistogram(name, help string, bounds []float64, labels ...string) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{desc: desc{name: name, help: help, labels: labels}, bounds: b}
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records one value.
func (h *Histogram) Observe(v float64, values ...string) {
	s := h.set.get(h.key(values), values, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.bounds))}
	})
	idx := sort.SearchFloat64s(h.bounds, v)
	s.mu.Lock()
	s.count++
	s.sum += v
	if idx < len(s.counts) {
		s.counts[idx]++
	}
	s.mu.Unlock()
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration, values ...string) {
	h.Observe(d.Seconds(), values...)
}

// HistogramSnapshot is a point-in-time copy of one series. Buckets are
// cumulative and aligned with the histogram bounds.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets []uint64
}

// Snapshot copies one series.
func (h *Histogram) Snapshot(values ...string) HistogramSnapshot {
	snap := HistogramSnapshot{Buckets: make([]uint64, len(h.bounds))}
	s, ok := h.set.lookup(h.key(values))
	if !ok {
		return snap
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Count, snap.Sum = s.count, s.sum
	var cum uint64
	for i, c := range s.counts {
		cum += c
		snap.Buckets[i] = cum
	}
	return snap
}

func (h *Histogram) Collect(sb *strings.Builder) {
	h.header(sb, TypeHistogram)
	h.set.each(func(values []string, _ *histogramValue) {
		snap := h.Snapshot(values...)
		for i, bound := range h.bounds {
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, h.labelString(values, "le", formatFloat(bound)), snap.Buckets[i])
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, h.labelString(values, "le", "+Inf"), snap.Count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, h.labelString(values), formatFloat(snap.Sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, h.labelString(values), snap.Count)
	})
}

// LinearBuckets returns count bounds start, start+width, ...
func LinearBuckets(start, width float64, count int) []float64 {
	b := make([]float64, count)
	for i := range b {
		b[i] = start + float64(i)*width
	}
	return b
}

// ExponentialBuckets returns count bounds start, start*factor, ...
func ExponentialBuckets(start, factor float64, count int) []float64 {
	b := make([]float64, count)
	for i := range b {
		b[i] = start
		start *= factor
	}
	return b
}

// Registry holds metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds m; names must be unique.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[m.Name()]; ok {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister registers every metric and panics on a duplicate.
func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Get returns a metric by name, or nil.
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every metric in Prometheus text format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Collect(&sb)
	}
	return sb.String()
}

// WriteTo writes Gather's output to w.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Gather())
	return int64(n), err
}
