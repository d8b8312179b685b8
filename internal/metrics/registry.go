package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricName represent metric name
type MetricName string

func (mn MetricName) String() string {
	return string(mn)
}

const (
	requestsTotalMetricName       MetricName = "cloudflare_requests_total"
	bytesTotalMetricName          MetricName = "cloudflare_bytes_total"
	cachedRequestsTotalMetricName MetricName = "cloudflare_cached_requests_total"
	cachedBytesTotalMetricName    MetricName = "cloudflare_cached_bytes_total"
	dnsQueriesTotalMetricName     MetricName = "cloudflare_dns_queries_total"
	firewallEventsTotalMetricName MetricName = "cloudflare_firewall_events_total"
	quotaMaxMetricName            MetricName = "cloudflare_enterprise_zone_quota_max"
	quotaCurrentMetricName        MetricName = "cloudflare_enterprise_zone_quota_current"
	quotaAvailableMetricName      MetricName = "cloudflare_enterprise_zone_quota_available"
	scrapeErrorsTotalMetricName   MetricName = "cloudflare_scrape_errors_total"
	pollCyclesTotalMetricName     MetricName = "cloudflare_poll_cycles_total"
	pollCyclesSkippedMetricName   MetricName = "cloudflare_poll_cycle_skipped_total"
	lastPollTimestampMetricName   MetricName = "cloudflare_last_poll_timestamp_seconds"
)

var (
	httpLabels     = []string{"zone", "account", "account_id", "country", "status"}
	dnsLabels      = []string{"zone", "account", "account_id", "query_type", "response_code"}
	firewallLabels = []string{"zone", "account", "account_id", "action", "rule_id", "source"}
	quotaLabels    = []string{"zone", "account", "account_id"}
	zoneLabels     = []string{"zone", "account", "account_id"}
	accountLabels  = []string{"account", "account_id"}
)

// Registry is the single mutable store of current metric values. Upstream
// windows are cumulative per call, so every contract metric is a gauge with
// overwrite semantics: entries are created on first successful sample and
// overwritten, never incremented locally and never deleted. A zone that
// vanishes from the directory leaves its last values in place until process
// restart.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.GaugeVec
	BytesTotal          *prometheus.GaugeVec
	CachedRequestsTotal *prometheus.GaugeVec
	CachedBytesTotal    *prometheus.GaugeVec
	DNSQueriesTotal     *prometheus.GaugeVec
	FirewallEventsTotal *prometheus.GaugeVec
	QuotaMax            *prometheus.GaugeVec
	QuotaCurrent        *prometheus.GaugeVec
	QuotaAvailable      *prometheus.GaugeVec

	ScrapeErrorsTotal *prometheus.CounterVec
	PollCyclesTotal   *prometheus.CounterVec
	PollCyclesSkipped prometheus.Counter
	LastPollTimestamp *prometheus.GaugeVec
}

// NewRegistry builds a fresh, lifecycle-scoped registry with every exporter
// metric registered. Tests create one per case instead of sharing the
// default global registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: requestsTotalMetricName.String(),
			Help: "Total number of HTTP requests",
		}, httpLabels),
		BytesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: bytesTotalMetricName.String(),
			Help: "Total bytes transferred",
		}, httpLabels),
		CachedRequestsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: cachedRequestsTotalMetricName.String(),
			Help: "Total number of cached HTTP requests",
		}, httpLabels),
		CachedBytesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: cachedBytesTotalMetricName.String(),
			Help: "Total cached bytes transferred",
		}, httpLabels),
		DNSQueriesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: dnsQueriesTotalMetricName.String(),
			Help: "Total number of DNS queries",
		}, dnsLabels),
		FirewallEventsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: firewallEventsTotalMetricName.String(),
			Help: "Total number of firewall events",
		}, firewallLabels),
		QuotaMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: quotaMaxMetricName.String(),
			Help: "Maximum enterprise zone quota",
		}, quotaLabels),
		QuotaCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: quotaCurrentMetricName.String(),
			Help: "Current enterprise zone quota usage",
		}, quotaLabels),
		QuotaAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: quotaAvailableMetricName.String(),
			Help: "Available enterprise zone quota",
		}, quotaLabels),

		ScrapeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: scrapeErrorsTotalMetricName.String(),
			Help: "Total number of scrape errors",
		}, accountLabels),
		PollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: pollCyclesTotalMetricName.String(),
			Help: "Completed poll cycles by result",
		}, []string{"result"}),
		PollCyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: pollCyclesSkippedMetricName.String(),
			Help: "Ticks skipped because the previous cycle was still draining",
		}),
		LastPollTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: lastPollTimestampMetricName.String(),
			Help: "Unix time of the last successful sample per zone",
		}, zoneLabels),
	}

	r.registry.MustRegister(
		r.RequestsTotal,
		r.BytesTotal,
		r.CachedRequestsTotal,
		r.CachedBytesTotal,
		r.DNSQueriesTotal,
		r.FirewallEventsTotal,
		r.QuotaMax,
		r.QuotaCurrent,
		r.QuotaAvailable,
		r.ScrapeErrorsTotal,
		r.PollCyclesTotal,
		r.PollCyclesSkipped,
		r.LastPollTimestamp,
	)
	return r
}

// Gatherer exposes the underlying registry for exposition and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// HTTPHandler returns the exposition handler for this registry.
func (r *Registry) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
