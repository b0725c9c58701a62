package memspace

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

// Stats is a snapshot of a Tracker's counters.
type Stats struct {
	Allocs      int64
	Frees       int64
	DoubleFrees int64
	Live        int
	LiveBytes   int64
	PeakBytes   int64
}

// Tracker wraps a Location and accounts for every allocation. Freeing an
// address it did not hand out, or one already freed, fails with
// ErrDoubleFree and never reaches the wrapped location.
type Tracker struct {
	Location

	mu    sync.Mutex
	live  map[Addr]int
	stats Stats

	allocs      prometheus.Counter
	frees       prometheus.Counter
	doubleFrees prometheus.Counter
	liveBytes   prometheus.Gauge
}

// Track instruments loc. Metrics are registered with reg when it is not nil.
func Track(loc Location, reg prometheus.Registerer) (*Tracker, error) {
	if loc == nil {
		return nil, fmt.Errorf("%w: nil location", ErrInvalidArgument)
	}
	labels := prometheus.Labels{"location": loc.Name()}
	t := &Tracker{
		Location: loc,
		live:     make(map[Addr]int),
		allocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cuv", Subsystem: "memspace", Name: "allocations_total",
			Help: "Allocations served by the location.", ConstLabels: labels,
		}),
		frees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cuv", Subsystem: "memspace", Name: "frees_total",
			Help: "Allocations returned to the location.", ConstLabels: labels,
		}),
		doubleFrees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cuv", Subsystem: "memspace", Name: "double_frees_total",
			Help: "Frees of unknown or already freed addresses.", ConstLabels: labels,
		}),
		liveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cuv", Subsystem: "memspace", Name: "live_bytes",
			Help: "Bytes currently allocated.", ConstLabels: labels,
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{t.allocs, t.frees, t.doubleFrees, t.liveBytes} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("memspace: register metrics for %s: %w", loc.Name(), err)
			}
		}
	}
	return t, nil
}

func (t *Tracker) Alloc(size int) (Addr, error) {
	addr, err := t.Location.Alloc(size)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[addr] = size
	t.stats.Allocs++
	t.stats.LiveBytes += int64(size)
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	t.allocs.Inc()
	t.liveBytes.Add(float64(size))
	return addr, nil
}

func (t *Tracker) Free(addr Addr) error {
	t.mu.Lock()
	size, ok := t.live[addr]
	if !ok {
		t.stats.DoubleFrees++
		t.mu.Unlock()
		t.doubleFrees.Inc()
		klog.Errorf("memspace: double free of %s %#x", t.Name(), uintptr(addr))
		return fmt.Errorf("%w: %s %#x", ErrDoubleFree, t.Name(), uintptr(addr))
	}
	delete(t.live, addr)
	t.stats.Frees++
	t.stats.LiveBytes -= int64(size)
	t.mu.Unlock()
	t.frees.Inc()
	t.liveBytes.Sub(float64(size))
	return t.Location.Free(addr)
}

// Contains reports whether addr is a live allocation start.
func (t *Tracker) Contains(addr Addr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live[addr]
	return ok
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Live = len(t.live)
	return s
}
