package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nezuni1812/bidhub/internal/domain/bid"
)

// Collector exports engine measurements to prometheus.
type Collector struct {
	registry *prometheus.Registry

	bidsAccepted   *prometheus.CounterVec
	bidsRejected   *prometheus.CounterVec
	cascadeDepth   prometheus.Histogram
	extensions     prometheus.Counter
	auctionsClosed *prometheus.CounterVec
}

// NewCollector registers the bidding metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		bidsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidhub",
			Name:      "bids_accepted_total",
			Help:      "Accepted bids by origin.",
		}, []string{"origin"}),
		bidsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidhub",
			Name:      "bids_rejected_total",
			Help:      "Rejected bids by rejection code.",
		}, []string{"code"}),
		cascadeDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bidhub",
			Name:      "proxy_cascade_depth",
			Help:      "Proxy counter-bids generated per admission.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		extensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bidhub",
			Name:      "auction_extensions_total",
			Help:      "Closing-window extensions applied.",
		}),
		auctionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidhub",
			Name:      "auctions_closed_total",
			Help:      "Auctions closed, by whether a winner existed.",
		}, []string{"with_winner"}),
	}
}

func (c *Collector) RecordBidAccepted(origin bid.Origin) {
	c.bidsAccepted.WithLabelValues(origin.String()).Inc()
}

func (c *Collector) RecordBidRejected(code string) {
	c.bidsRejected.WithLabelValues(code).Inc()
}

func (c *Collector) RecordCascadeDepth(depth int) {
	c.cascadeDepth.Observe(float64(depth))
}

func (c *Collector) RecordExtension() {
	c.extensions.Inc()
}

func (c *Collector) RecordAuctionClosed(withWinner bool) {
	c.auctionsClosed.WithLabelValues(strconv.FormatBool(withWinner)).Inc()
}

// Handler serves the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
