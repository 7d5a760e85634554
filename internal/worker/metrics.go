package worker

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	taskDuration *prometheus.HistogramVec
	tasksTotal   *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixtools",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Task handler duration by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixtools",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Tasks processed by operation and outcome.",
		}, []string{"operation", "outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pixtools",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Approximate in-flight task count per queue, sampled by the worker process.",
		}, []string{"queue"}),
	}
	prometheus.MustRegister(m.taskDuration, m.tasksTotal, m.queueDepth)
	return m
}
