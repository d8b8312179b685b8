package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

// unknownLabel stands in for dimensions the sampled response did not carry.
// Rows with missing dimensions are kept, not dropped.
const unknownLabel = "unknown"

// Aggregator merges decoded query results into the registry. Workers call
// Apply concurrently; the underlying vectors serialize writes per key, so
// readers never observe a partially written sample.
type Aggregator struct {
	reg *Registry
	now func() time.Time
}

// NewAggregator binds an aggregator to its registry.
func NewAggregator(reg *Registry) *Aggregator {
	return &Aggregator{reg: reg, now: time.Now}
}

// Apply writes one task's rows into the registry. Values are taken at face
// value: upstream data is statistically sampled and already aggregated, no
// local correction is applied. Empty rows retain all prior values.
func (a *Aggregator) Apply(task models.PollTask, rows models.Rows) error {
	if rows.Empty() {
		logging.Debug("No rows to apply, keeping prior values", map[string]interface{}{
			"zone":    task.Zone.Name,
			"dataset": string(task.Dataset),
		})
		return nil
	}

	switch task.Dataset {
	case models.DatasetHTTP:
		a.applyHTTP(task, rows.HTTP)
	case models.DatasetDNS:
		a.applyDNS(task, rows.DNS)
	case models.DatasetFirewall:
		a.applyFirewall(task, rows.Firewall)
	case models.DatasetQuota:
		a.applyQuota(task, rows.Quota)
	default:
		return fmt.Errorf("no decoder for dataset %q", task.Dataset)
	}

	a.reg.LastPollTimestamp.With(prometheus.Labels{
		"zone":       task.Zone.Name,
		"account":    task.Account.Name,
		"account_id": task.Account.ID,
	}).Set(float64(a.now().Unix()))
	return nil
}

// RecordTaskFailure counts a failed task. Prior metric values for the
// task's keys stay untouched: a failure must never overwrite with zeros.
func (a *Aggregator) RecordTaskFailure(task models.PollTask) {
	a.reg.ScrapeErrorsTotal.With(prometheus.Labels{
		"account":    task.Account.Name,
		"account_id": task.Account.ID,
	}).Inc()
}

// RecordCycle counts a completed cycle. A cycle with zero successful tasks
// is degraded but never stops the loop.
func (a *Aggregator) RecordCycle(succeeded, failed int) {
	result := "ok"
	if succeeded == 0 && failed > 0 {
		result = "degraded"
	}
	a.reg.PollCyclesTotal.With(prometheus.Labels{"result": result}).Inc()
}

// RecordSkippedCycle counts a tick dropped because the previous cycle was
// still draining.
func (a *Aggregator) RecordSkippedCycle() {
	a.reg.PollCyclesSkipped.Inc()
}

func (a *Aggregator) applyHTTP(task models.PollTask, groups []models.HTTPGroup) {
	for _, g := range groups {
		labels := prometheus.Labels{
			"zone":       task.Zone.Name,
			"account":    task.Account.Name,
			"account_id": task.Account.ID,
			"country":    orUnknown(g.Dimensions.ClientCountryName),
			"status":     statusLabel(g.Dimensions.EdgeResponseStatus),
		}
		a.reg.RequestsTotal.With(labels).Set(float64(g.Sum.Requests))
		a.reg.BytesTotal.With(labels).Set(float64(g.Sum.Bytes))
		a.reg.CachedRequestsTotal.With(labels).Set(float64(g.Sum.CachedRequests))
		a.reg.CachedBytesTotal.With(labels).Set(float64(g.Sum.CachedBytes))
	}
}

func (a *Aggregator) applyDNS(task models.PollTask, groups []models.DNSGroup) {
	for _, g := range groups {
		a.reg.DNSQueriesTotal.With(prometheus.Labels{
			"zone":          task.Zone.Name,
			"account":       task.Account.Name,
			"account_id":    task.Account.ID,
			"query_type":    orUnknown(g.Dimensions.QueryType),
			"response_code": orUnknown(g.Dimensions.ResponseCode),
		}).Set(float64(g.Count))
	}
}

func (a *Aggregator) applyFirewall(task models.PollTask, groups []models.FirewallGroup) {
	for _, g := range groups {
		a.reg.FirewallEventsTotal.With(prometheus.Labels{
			"zone":       task.Zone.Name,
			"account":    task.Account.Name,
			"account_id": task.Account.ID,
			"action":     orUnknown(g.Dimensions.Action),
			"rule_id":    orUnknown(g.Dimensions.RuleID),
			"source":     orUnknown(g.Dimensions.Source),
		}).Set(float64(g.Count))
	}
}

// applyQuota sets the absolute quota gauges. Quota is account scoped, the
// zone label stays empty.
func (a *Aggregator) applyQuota(task models.PollTask, quota *models.EnterpriseZoneQuota) {
	labels := prometheus.Labels{
		"zone":       task.Zone.Name,
		"account":    task.Account.Name,
		"account_id": task.Account.ID,
	}
	a.reg.QuotaMax.With(labels).Set(float64(quota.Maximum))
	a.reg.QuotaCurrent.With(labels).Set(float64(quota.Current))
	a.reg.QuotaAvailable.With(labels).Set(float64(quota.Available))
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}

func statusLabel(status int) string {
	if status == 0 {
		return unknownLabel
	}
	return strconv.Itoa(status)
}
