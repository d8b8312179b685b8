package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/machinebox/graphql"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/limiter"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

const (
	defaultRESTBase = "https://api.cloudflare.com/client/v4"
	requestTimeout  = 30 * time.Second
	queryLimit      = 1000
)

const httpGroupsQuery = `
	query ($zoneTag: String!, $mintime: Time!, $maxtime: Time!, $limit: Int!) {
		viewer {
			zones(filter: { zoneTag: $zoneTag }) {
				zoneTag
				httpRequestsOverviewAdaptiveGroups(limit: $limit, filter: { datetime_geq: $mintime, datetime_leq: $maxtime }) {
					dimensions {
						clientCountryName
						edgeResponseStatus
					}
					sum {
						requests
						bytes
						cachedRequests
						cachedBytes
					}
				}
			}
		}
	}
	`

const dnsGroupsQuery = `
	query ($zoneTag: String!, $mintime: Time!, $maxtime: Time!, $limit: Int!) {
		viewer {
			zones(filter: { zoneTag: $zoneTag }) {
				zoneTag
				dnsAnalyticsAdaptiveGroups(limit: $limit, filter: { datetime_geq: $mintime, datetime_leq: $maxtime }) {
					count
					dimensions {
						queryType
						responseCode
					}
				}
			}
		}
	}
	`

const firewallGroupsQuery = `
	query ($zoneTag: String!, $mintime: Time!, $maxtime: Time!, $limit: Int!) {
		viewer {
			zones(filter: { zoneTag: $zoneTag }) {
				zoneTag
				firewallEventsAdaptiveGroups(limit: $limit, filter: { datetime_geq: $mintime, datetime_leq: $maxtime }) {
					count
					dimensions {
						action
						ruleId
						source
					}
				}
			}
		}
	}
	`

// Client issues authenticated analytics queries for one zone/dataset pair.
// It holds no cross-call state besides its transports and credentials.
type Client struct {
	gql      *graphql.Client
	rest     *RetryableClient
	token    string
	restBase string
	policy   RetryPolicy
}

// New returns a Client for the given GraphQL endpoint and bearer token.
func New(endpoint, token string, policy RetryPolicy) *Client {
	return &Client{
		gql:      graphql.NewClient(endpoint),
		rest:     NewRetryableClient(policy),
		token:    token,
		restBase: defaultRESTBase,
		policy:   policy,
	}
}

// Fetch runs one query for the task's (zone, dataset, window). Transient
// failures are retried per the policy; permanent and decode failures
// surface immediately as a classified *FetchError.
func (c *Client) Fetch(ctx context.Context, task models.PollTask) (models.Rows, error) {
	if task.Dataset == models.DatasetQuota {
		quota, err := c.FetchAccountQuota(ctx, task.Account.ID)
		if err != nil {
			return models.Rows{}, err
		}
		return models.Rows{Quota: quota}, nil
	}

	query, err := queryForDataset(task.Dataset)
	if err != nil {
		return models.Rows{}, &FetchError{Kind: KindPermanent, Zone: task.Zone.ID, Dataset: task.Dataset, Err: err}
	}

	request := graphql.NewRequest(query)
	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Var("zoneTag", task.Zone.ID)
	request.Var("mintime", task.Window.Start.UTC().Format(time.RFC3339))
	request.Var("maxtime", task.Window.End.UTC().Format(time.RFC3339))
	request.Var("limit", queryLimit)

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return models.Rows{}, &FetchError{Kind: KindTransient, Zone: task.Zone.ID, Dataset: task.Dataset, Err: err}
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		var resp models.GraphQLZonesResponse
		err := c.gql.Run(reqCtx, request, &resp)
		cancel()

		if err == nil {
			return decodeZoneRows(task, resp)
		}

		if classify(err) == KindPermanent {
			logging.Error("Analytics query rejected", map[string]interface{}{
				"zone":    task.Zone.ID,
				"dataset": string(task.Dataset),
				"error":   err.Error(),
			})
			return models.Rows{}, &FetchError{Kind: KindPermanent, Zone: task.Zone.ID, Dataset: task.Dataset, Err: err}
		}

		lastErr = err
		logging.Warn("Analytics query failed, retrying...", map[string]interface{}{
			"zone":    task.Zone.ID,
			"dataset": string(task.Dataset),
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt == c.policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(c.policy.Backoff(attempt)):
		case <-ctx.Done():
			return models.Rows{}, &FetchError{Kind: KindTransient, Zone: task.Zone.ID, Dataset: task.Dataset, Err: ctx.Err()}
		}
	}

	return models.Rows{}, &FetchError{
		Kind:    KindTransient,
		Zone:    task.Zone.ID,
		Dataset: task.Dataset,
		Err:     fmt.Errorf("query failed after %d attempts: %w", c.policy.MaxAttempts, lastErr),
	}
}

// FetchAccountQuota reads the enterprise zone quota from the account
// details REST endpoint.
func (c *Client) FetchAccountQuota(ctx context.Context, accountID string) (*models.EnterpriseZoneQuota, error) {
	url := fmt.Sprintf("%s/accounts/%s", c.restBase, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindPermanent, Dataset: models.DatasetQuota, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rest.DoRequest(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Dataset: models.DatasetQuota, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Dataset: models.DatasetQuota, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FetchError{
			Kind:    KindPermanent,
			Dataset: models.DatasetQuota,
			Err:     fmt.Errorf("account details request denied, status %d: %s", resp.StatusCode, string(body)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{
			Kind:    KindTransient,
			Dataset: models.DatasetQuota,
			Err:     fmt.Errorf("account details request failed, status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var details models.AccountDetailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, &FetchError{Kind: KindDecode, Dataset: models.DatasetQuota, Err: err}
	}
	if !details.Success {
		return nil, &FetchError{
			Kind:    KindPermanent,
			Dataset: models.DatasetQuota,
			Err:     fmt.Errorf("account details request unsuccessful: %+v", details.Errors),
		}
	}

	quota := details.Result.LegacyFlags.EnterpriseZoneQuota
	return &quota, nil
}

func queryForDataset(dataset models.Dataset) (string, error) {
	switch dataset {
	case models.DatasetHTTP:
		return httpGroupsQuery, nil
	case models.DatasetDNS:
		return dnsGroupsQuery, nil
	case models.DatasetFirewall:
		return firewallGroupsQuery, nil
	default:
		return "", fmt.Errorf("no query defined for dataset %q", dataset)
	}
}

func decodeZoneRows(task models.PollTask, resp models.GraphQLZonesResponse) (models.Rows, error) {
	for _, z := range resp.Viewer.Zones {
		if z.ZoneTag != "" && z.ZoneTag != task.Zone.ID {
			continue
		}
		switch task.Dataset {
		case models.DatasetHTTP:
			return models.Rows{HTTP: z.HTTPGroups}, nil
		case models.DatasetDNS:
			return models.Rows{DNS: z.DNSGroups}, nil
		case models.DatasetFirewall:
			return models.Rows{Firewall: z.FirewallGroups}, nil
		default:
			return models.Rows{}, &FetchError{Kind: KindDecode, Zone: task.Zone.ID, Dataset: task.Dataset,
				Err: fmt.Errorf("unexpected dataset %q in zone response", task.Dataset)}
		}
	}
	// The API omits the zone entirely when no samples landed in the window.
	return models.Rows{}, nil
}
