package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

var (
	testAccount = models.Account{ID: "acc1", Name: "Test Account"}
	testZone    = models.Zone{ID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Name: "a.example.com", Account: testAccount}
)

func taskFor(dataset models.Dataset) models.PollTask {
	task := models.PollTask{Account: testAccount, Dataset: dataset}
	if dataset != models.DatasetQuota {
		task.Zone = testZone
	}
	return task
}

func httpGroup(country string, status int, requests, bytes uint64) models.HTTPGroup {
	var g models.HTTPGroup
	g.Dimensions.ClientCountryName = country
	g.Dimensions.EdgeResponseStatus = status
	g.Sum.Requests = requests
	g.Sum.Bytes = bytes
	g.Sum.CachedRequests = requests / 2
	g.Sum.CachedBytes = bytes / 2
	return g
}

func httpLabelsFor(country, status string) prometheus.Labels {
	return prometheus.Labels{
		"zone":       testZone.Name,
		"account":    testAccount.Name,
		"account_id": testAccount.ID,
		"country":    country,
		"status":     status,
	}
}

func TestApply_HTTPRowsOverwrite(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	rows := models.Rows{HTTP: []models.HTTPGroup{
		httpGroup("US", 200, 100, 2048),
		httpGroup("DE", 404, 5, 512),
	}}
	require.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), rows))

	assert.Equal(t, float64(100), testutil.ToFloat64(reg.RequestsTotal.With(httpLabelsFor("US", "200"))))
	assert.Equal(t, float64(5), testutil.ToFloat64(reg.RequestsTotal.With(httpLabelsFor("DE", "404"))))
	assert.Equal(t, float64(2048), testutil.ToFloat64(reg.BytesTotal.With(httpLabelsFor("US", "200"))))
	assert.Equal(t, 2, testutil.CollectAndCount(reg.RequestsTotal))

	// The next window only samples US traffic: US is overwritten, the DE
	// entry keeps its last value rather than dropping to zero.
	rows = models.Rows{HTTP: []models.HTTPGroup{httpGroup("US", 200, 42, 1024)}}
	require.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), rows))

	assert.Equal(t, float64(42), testutil.ToFloat64(reg.RequestsTotal.With(httpLabelsFor("US", "200"))))
	assert.Equal(t, float64(5), testutil.ToFloat64(reg.RequestsTotal.With(httpLabelsFor("DE", "404"))))
	assert.Equal(t, 2, testutil.CollectAndCount(reg.RequestsTotal))
}

func TestApply_UnknownLabelDefaults(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	rows := models.Rows{HTTP: []models.HTTPGroup{httpGroup("", 0, 7, 128)}}
	require.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), rows))

	assert.Equal(t, float64(7), testutil.ToFloat64(reg.RequestsTotal.With(httpLabelsFor("unknown", "unknown"))))
}

func TestApply_EmptyRowsIsNoOp(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	require.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), models.Rows{}))

	assert.Equal(t, 0, testutil.CollectAndCount(reg.RequestsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(reg.LastPollTimestamp))
}

func TestApply_DNSRows(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	var g models.DNSGroup
	g.Count = 31
	g.Dimensions.QueryType = "AAAA"
	g.Dimensions.ResponseCode = "NOERROR"
	require.NoError(t, agg.Apply(taskFor(models.DatasetDNS), models.Rows{DNS: []models.DNSGroup{g}}))

	assert.Equal(t, float64(31), testutil.ToFloat64(reg.DNSQueriesTotal.With(prometheus.Labels{
		"zone":          testZone.Name,
		"account":       testAccount.Name,
		"account_id":    testAccount.ID,
		"query_type":    "AAAA",
		"response_code": "NOERROR",
	})))
}

func TestApply_FirewallRows(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	var g models.FirewallGroup
	g.Count = 9
	g.Dimensions.Action = "block"
	g.Dimensions.RuleID = "rule-1"
	require.NoError(t, agg.Apply(taskFor(models.DatasetFirewall), models.Rows{Firewall: []models.FirewallGroup{g}}))

	assert.Equal(t, float64(9), testutil.ToFloat64(reg.FirewallEventsTotal.With(prometheus.Labels{
		"zone":       testZone.Name,
		"account":    testAccount.Name,
		"account_id": testAccount.ID,
		"action":     "block",
		"rule_id":    "rule-1",
		"source":     "unknown",
	})))
}

func TestApply_QuotaIdempotent(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	quota := &models.EnterpriseZoneQuota{Maximum: 100, Current: 40, Available: 60}
	task := taskFor(models.DatasetQuota)

	require.NoError(t, agg.Apply(task, models.Rows{Quota: quota}))
	require.NoError(t, agg.Apply(task, models.Rows{Quota: quota}))

	labels := prometheus.Labels{"zone": "", "account": testAccount.Name, "account_id": testAccount.ID}
	assert.Equal(t, float64(100), testutil.ToFloat64(reg.QuotaMax.With(labels)))
	assert.Equal(t, float64(40), testutil.ToFloat64(reg.QuotaCurrent.With(labels)))
	assert.Equal(t, float64(60), testutil.ToFloat64(reg.QuotaAvailable.With(labels)))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.QuotaMax))
}

func TestApply_SetsLastPollTimestamp(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	rows := models.Rows{HTTP: []models.HTTPGroup{httpGroup("US", 200, 1, 1)}}
	require.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), rows))

	assert.Equal(t, float64(fixed.Unix()), testutil.ToFloat64(reg.LastPollTimestamp.With(prometheus.Labels{
		"zone":       testZone.Name,
		"account":    testAccount.Name,
		"account_id": testAccount.ID,
	})))
}

func TestRecordCycle(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	agg.RecordCycle(3, 1)
	agg.RecordCycle(0, 4)
	agg.RecordCycle(0, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(reg.PollCyclesTotal.With(prometheus.Labels{"result": "ok"})))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.PollCyclesTotal.With(prometheus.Labels{"result": "degraded"})))
}

func TestRecordTaskFailure(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	agg.RecordTaskFailure(taskFor(models.DatasetFirewall))
	agg.RecordTaskFailure(taskFor(models.DatasetHTTP))

	assert.Equal(t, float64(2), testutil.ToFloat64(reg.ScrapeErrorsTotal.With(prometheus.Labels{
		"account":    testAccount.Name,
		"account_id": testAccount.ID,
	})))
}

func TestApply_ConcurrentWithGather(t *testing.T) {
	reg := NewRegistry()
	agg := NewAggregator(reg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rows := models.Rows{HTTP: []models.HTTPGroup{httpGroup("US", 200, uint64(j), uint64(j))}}
				assert.NoError(t, agg.Apply(taskFor(models.DatasetHTTP), rows))
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := reg.Gatherer().Gather()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, testutil.CollectAndCount(reg.RequestsTotal))
}
