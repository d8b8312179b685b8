package models

import "time"

// Dataset is an analytics category queried from the Cloudflare GraphQL API.
// Each dataset has a fixed label shape and a fixed set of numeric fields.
type Dataset string

const (
	// DatasetHTTP covers request/byte and cached request/byte totals per
	// (country, edge status) pair.
	DatasetHTTP Dataset = "httpRequestsOverviewAdaptiveGroups"
	// DatasetDNS covers DNS query counts per (query type, response code).
	DatasetDNS Dataset = "dnsAnalyticsAdaptiveGroups"
	// DatasetFirewall covers firewall event counts per (action, rule, source).
	DatasetFirewall Dataset = "firewallEventsAdaptiveGroups"
	// DatasetQuota covers the account's enterprise zone quota. It is fetched
	// over REST, once per account per cycle rather than per zone.
	DatasetQuota Dataset = "enterpriseZoneQuota"
)

// ZoneDatasets lists the datasets queried at zone scope for a CMB region.
// DNS analytics are not available inside the eu metadata boundary.
func ZoneDatasets(euRegion bool) []Dataset {
	if euRegion {
		return []Dataset{DatasetHTTP, DatasetFirewall}
	}
	return []Dataset{DatasetHTTP, DatasetDNS, DatasetFirewall}
}

// Account identifies the Cloudflare account owning the polled zones.
type Account struct {
	ID   string
	Name string
}

// Zone is the unit of analytics polling. Immutable within a poll cycle.
type Zone struct {
	ID       string
	Name     string
	Account  Account
	FreePlan bool
}

// PollsDataset reports whether the zone's plan includes the dataset. Free
// plan zones only get the HTTP overview; firewall and DNS analytics are
// paid features and would fail with a permanent error every cycle.
func (z Zone) PollsDataset(ds Dataset) bool {
	return !z.FreePlan || ds == DatasetHTTP
}

// Window is the bounded time range of one poll task, aligned to the
// scrape interval and truncated to minute precision.
type Window struct {
	Start time.Time
	End   time.Time
}

// PollTask is the unit of work: one (zone, dataset, window) query. Quota
// tasks carry a zero Zone and target the account instead.
type PollTask struct {
	Zone    Zone
	Account Account
	Dataset Dataset
	Window  Window
}

// Rows is the decoded result of one task, tagged by the dataset that
// produced it. Exactly one field is populated.
type Rows struct {
	HTTP     []HTTPGroup
	DNS      []DNSGroup
	Firewall []FirewallGroup
	Quota    *EnterpriseZoneQuota
}

// Empty reports whether the response carried no rows at all. Empty results
// are a no-op for the aggregator: prior values are retained.
func (r Rows) Empty() bool {
	return len(r.HTTP) == 0 && len(r.DNS) == 0 && len(r.Firewall) == 0 && r.Quota == nil
}

// GraphQLZonesResponse is the viewer envelope shared by all zone-scoped
// dataset queries.
type GraphQLZonesResponse struct {
	Viewer struct {
		Zones []ZoneResp `json:"zones"`
	} `json:"viewer"`
}

// ZoneResp holds the dataset groups returned for a single zone. Only the
// group matching the queried dataset is populated.
type ZoneResp struct {
	ZoneTag string `json:"zoneTag"`

	HTTPGroups     []HTTPGroup     `json:"httpRequestsOverviewAdaptiveGroups"`
	DNSGroups      []DNSGroup      `json:"dnsAnalyticsAdaptiveGroups"`
	FirewallGroups []FirewallGroup `json:"firewallEventsAdaptiveGroups"`
}

// HTTPGroup is one sampled (country, status) row of HTTP overview totals.
type HTTPGroup struct {
	Dimensions struct {
		ClientCountryName  string `json:"clientCountryName"`
		EdgeResponseStatus int    `json:"edgeResponseStatus"`
	} `json:"dimensions"`
	Sum struct {
		Requests       uint64 `json:"requests"`
		Bytes          uint64 `json:"bytes"`
		CachedRequests uint64 `json:"cachedRequests"`
		CachedBytes    uint64 `json:"cachedBytes"`
	} `json:"sum"`
}

// DNSGroup is one sampled (query type, response code) row of DNS analytics.
type DNSGroup struct {
	Count uint64 `json:"count"`

	Dimensions struct {
		QueryType    string `json:"queryType"`
		ResponseCode string `json:"responseCode"`
	} `json:"dimensions"`
}

// FirewallGroup is one sampled (action, rule, source) row of firewall events.
type FirewallGroup struct {
	Count uint64 `json:"count"`

	Dimensions struct {
		Action string `json:"action"`
		RuleID string `json:"ruleId"`
		Source string `json:"source"`
	} `json:"dimensions"`
}

// EnterpriseZoneQuota holds the absolute quota gauges for an account.
type EnterpriseZoneQuota struct {
	Maximum   int64 `json:"maximum"`
	Current   int64 `json:"current"`
	Available int64 `json:"available"`
}

// AccountDetailsResponse is the REST envelope of GET /accounts/{id},
// carrying the legacy enterprise zone quota flags.
type AccountDetailsResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		LegacyFlags struct {
			EnterpriseZoneQuota EnterpriseZoneQuota `json:"enterprise_zone_quota"`
		} `json:"legacy_flags"`
	} `json:"result"`
}
