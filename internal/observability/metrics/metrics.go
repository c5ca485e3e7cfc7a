package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the conversation engine. All
// methods are nil-safe so wiring metrics stays optional.
type EngineMetrics struct {
	inboundTotal   *prometheus.CounterVec
	sendTotal      *prometheus.CounterVec
	bookingTotal   *prometheus.CounterVec
	orderTotal     *prometheus.CounterVec
	fallbackTotal  *prometheus.CounterVec
	slotSearchSecs prometheus.Histogram
	slotsOffered   prometheus.Histogram
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "inbound_total",
			Help:      "Inbound messages dispatched, by state transition",
		}, []string{"from_state", "to_state"}),
		sendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "outbound_total",
			Help:      "Outbound replies sent",
		}, []string{"status"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "booking_total",
			Help:      "Booking confirmation outcomes",
		}, []string{"result"}),
		orderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "order_total",
			Help:      "Product order outcomes",
		}, []string{"result"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "ai_fallback_total",
			Help:      "AI fallback invocations",
		}, []string{"status"}),
		slotSearchSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "slot_search_seconds",
			Help:      "Latency of slot generation including store reads",
			Buckets:   prometheus.DefBuckets,
		}),
		slotsOffered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookingengine",
			Subsystem: "engine",
			Name:      "slots_offered",
			Help:      "Open slots found per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.sendTotal, m.bookingTotal,
		m.orderTotal, m.fallbackTotal, m.slotSearchSecs, m.slotsOffered,
	)
	return m
}

func (m *EngineMetrics) ObserveInbound(fromState, toState string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(fromState, toState).Inc()
}

func (m *EngineMetrics) ObserveSend(status string) {
	if m == nil {
		return
	}
	m.sendTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveOrder(result string) {
	if m == nil {
		return
	}
	m.orderTotal.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveFallback(status string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveSlotSearch(seconds float64, slots int) {
	if m == nil {
		return
	}
	m.slotSearchSecs.Observe(seconds)
	m.slotsOffered.Observe(float64(slots))
}
