package train

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes training progress as prometheus gauges
type Metrics struct {
	Epoch       prometheus.Gauge
	TrainLoss   prometheus.Gauge
	ValLoss     prometheus.Gauge
	BestValLoss prometheus.Gauge
	GradNorm    prometheus.Gauge
	Batches     prometheus.Counter
	Checkpoints prometheus.Counter
}

// NewMetrics registers the training metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Epoch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "elois", Subsystem: "train", Name: "epoch",
			Help: "Last completed epoch.",
		}),
		TrainLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "elois", Subsystem: "train", Name: "loss",
			Help: "Mean training L1 loss of the last epoch.",
		}),
		ValLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "elois", Subsystem: "train", Name: "val_loss",
			Help: "Mean validation L1 loss of the last epoch.",
		}),
		BestValLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "elois", Subsystem: "train", Name: "best_val_loss",
			Help: "Lowest validation loss seen so far.",
		}),
		GradNorm: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "elois", Subsystem: "train", Name: "grad_norm",
			Help: "Gradient norm before clipping of the last batch.",
		}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "elois", Subsystem: "train", Name: "batches_total",
			Help: "Optimizer steps taken.",
		}),
		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: "elois", Subsystem: "train", Name: "checkpoints_total",
			Help: "Checkpoints written on validation improvement.",
		}),
	}
}
