// Package metrics records fusion measurements in a prometheus registry that
// can be written out as a node-exporter textfile after a batch run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lungfuse/pkg/fusion"
)

// Recorder implements fusion.Recorder on its own registry
type Recorder struct {
	registry *prometheus.Registry

	presenceVoxels  *prometheus.GaugeVec
	slicesConverted *prometheus.CounterVec
	expectedVoxels  prometheus.Gauge
	nonZeroVoxels   prometheus.Gauge
	lostVoxels      prometheus.Gauge
	overlapRuns     prometheus.Counter
	fusionDuration  prometheus.Histogram
}

var _ fusion.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder. patient is attached to every series.
func NewRecorder(patient string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"patient": patient}

	return &Recorder{
		registry: reg,
		presenceVoxels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "lungfuse_structure_presence_voxels",
			Help:        "Presence voxels contributed by each structure",
			ConstLabels: labels,
		}, []string{"structure"}),
		slicesConverted: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "lungfuse_slices_converted_total",
			Help:        "Frames converted to presence masks by structure",
			ConstLabels: labels,
		}, []string{"structure"}),
		expectedVoxels: f.NewGauge(prometheus.GaugeOpts{
			Name:        "lungfuse_expected_voxels",
			Help:        "Sum of all structures' presence voxels",
			ConstLabels: labels,
		}),
		nonZeroVoxels: f.NewGauge(prometheus.GaugeOpts{
			Name:        "lungfuse_volume_nonzero_voxels",
			Help:        "Non-zero voxels in the fused volume",
			ConstLabels: labels,
		}),
		lostVoxels: f.NewGauge(prometheus.GaugeOpts{
			Name:        "lungfuse_lost_voxels",
			Help:        "Presence voxels lost to coordinate overlap",
			ConstLabels: labels,
		}),
		overlapRuns: f.NewCounter(prometheus.CounterOpts{
			Name:        "lungfuse_overlap_failures_total",
			Help:        "Fusion runs that failed the conservation check",
			ConstLabels: labels,
		}),
		fusionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "lungfuse_fusion_duration_seconds",
			Help:        "Wall time from first discovery to validation",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		}),
	}
}

func (r *Recorder) StructureMerged(structure string, slices int, voxels int64) {
	r.presenceVoxels.WithLabelValues(structure).Set(float64(voxels))
	r.slicesConverted.WithLabelValues(structure).Add(float64(slices))
}

func (r *Recorder) Validated(c fusion.Conservation, elapsed time.Duration) {
	r.expectedVoxels.Set(float64(c.Expected))
	r.nonZeroVoxels.Set(float64(c.Actual))
	r.lostVoxels.Set(float64(c.Lost()))
	if c.Lost() != 0 {
		r.overlapRuns.Inc()
	}
	r.fusionDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every series in prometheus text format
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
