package lighting

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var channelNames = [4]string{"red", "green", "blue", "sun"}

// ChannelName возвращает имя канала для логов и меток метрик
func ChannelName(channel int) string {
	if channel < 0 || channel >= len(channelNames) {
		return strconv.Itoa(channel)
	}
	return channelNames[channel]
}

// Metrics инкапсулирует Prometheus-метрики освещения.
// Nil-значение допустимо: методы ничего не делают.
type Metrics struct {
	solveDuration *prometheus.HistogramVec
	cellsAdded    *prometheus.CounterVec
	cellsRemoved  *prometheus.CounterVec
	relights      *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в переданном регистре.
// При reg == nil используется глобальный prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		solveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxelight",
			Subsystem: "lighting",
			Name:      "solve_duration_seconds",
			Help:      "Длительность одного прохода решателя света.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"channel"}),
		cellsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelight",
			Subsystem: "lighting",
			Name:      "cells_lit_total",
			Help:      "Количество ячеек, освещённых в фазе роста.",
		}, []string{"channel"}),
		cellsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelight",
			Subsystem: "lighting",
			Name:      "cells_darkened_total",
			Help:      "Количество ячеек, обнулённых в фазе убывания.",
		}, []string{"channel"}),
		relights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelight",
			Subsystem: "lighting",
			Name:      "updates_total",
			Help:      "Количество пересчётов освещения по типу события.",
		}, []string{"event"}),
	}

	reg.MustRegister(m.solveDuration, m.cellsAdded, m.cellsRemoved, m.relights)
	return m
}

func (m *Metrics) observeSolve(channel int, stats SolveStats, elapsed time.Duration) {
	if m == nil {
		return
	}
	name := ChannelName(channel)
	m.solveDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	m.cellsAdded.WithLabelValues(name).Add(float64(stats.Added))
	m.cellsRemoved.WithLabelValues(name).Add(float64(stats.Removed))
}

func (m *Metrics) observeEvent(event string) {
	if m == nil {
		return
	}
	m.relights.WithLabelValues(event).Inc()
}
