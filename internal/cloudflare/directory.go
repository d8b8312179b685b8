package cloudflare

import (
	"context"
	"fmt"
	"time"

	cloudflare "github.com/cloudflare/cloudflare-go"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/config"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/limiter"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

const (
	listRetries    = 3
	listTimeout    = 10 * time.Second
	listRetryDelay = 2 * time.Second

	freePlanLegacyID = "free"
)

// Snapshot is the per-cycle resolution result: the zones to poll, the
// zone-scope datasets each of them gets, and whether the account quota
// task is enabled. Immutable once returned.
type Snapshot struct {
	Account  models.Account
	Zones    []models.Zone
	Datasets []models.Dataset
	Quota    bool
}

// Directory resolves the set of zones and the owning account to poll,
// refreshed on every scheduler cycle. It holds no cross-cycle mutable
// state.
type Directory struct {
	api *cloudflare.API
	cfg *config.Config
}

// NewDirectory initializes the Cloudflare API client for zone discovery.
func NewDirectory(cfg *config.Config) (*Directory, error) {
	api, err := cloudflare.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}
	return &Directory{api: api, cfg: cfg}, nil
}

// Resolve lists zones and the owning account and applies the configured
// filters. Explicit includes take precedence: a zone on the include list is
// polled even when it also appears on the exclude list.
func (d *Directory) Resolve(ctx context.Context) (*Snapshot, error) {
	account, err := d.fetchAccount(ctx)
	if err != nil {
		return nil, err
	}

	zones, err := d.fetchZones(ctx)
	if err != nil {
		return nil, err
	}

	selected := filterZones(zones, d.cfg.Zones, d.cfg.ExcludeZones)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no zones resolvable to monitor: token lists %d zones, include list has %d entries", len(zones), len(d.cfg.Zones))
	}

	snapshot := &Snapshot{
		Account:  account,
		Datasets: filterDatasets(models.ZoneDatasets(d.cfg.Region == config.RegionEU), d.cfg.ExcludeDatasets),
		Quota:    !datasetExcluded(models.DatasetQuota, d.cfg.ExcludeDatasets),
	}
	for _, z := range selected {
		free := z.Plan.LegacyID == freePlanLegacyID
		if free {
			logging.Info("Zone is on the free plan, paid datasets skipped", map[string]interface{}{
				"zoneID":   z.ID,
				"zoneName": z.Name,
			})
		}
		snapshot.Zones = append(snapshot.Zones, models.Zone{
			ID:       z.ID,
			Name:     z.Name,
			Account:  account,
			FreePlan: free,
		})
	}

	logging.Info("Resolved zones to monitor", map[string]interface{}{
		"account":    account.Name,
		"zone_count": len(snapshot.Zones),
		"datasets":   len(snapshot.Datasets),
	})
	return snapshot, nil
}

func (d *Directory) fetchAccount(ctx context.Context) (models.Account, error) {
	var accounts []cloudflare.Account
	var err error

	for attempt := 1; attempt <= listRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return models.Account{}, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, listTimeout)
		accounts, _, err = d.api.Accounts(reqCtx, cloudflare.AccountsListParams{
			PaginationOptions: cloudflare.PaginationOptions{PerPage: 100},
		})
		cancel()
		if err == nil {
			break
		}

		logging.Warn("Failed to fetch accounts from Cloudflare API, retrying...", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-time.After(time.Duration(attempt) * listRetryDelay):
		case <-ctx.Done():
			return models.Account{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	if len(accounts) == 0 {
		return models.Account{}, fmt.Errorf("no Cloudflare accounts visible to the API token")
	}

	return models.Account{ID: accounts[0].ID, Name: accounts[0].Name}, nil
}

func (d *Directory) fetchZones(ctx context.Context) ([]cloudflare.Zone, error) {
	var zones []cloudflare.Zone
	var err error

	for attempt := 1; attempt <= listRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, listTimeout)
		zones, err = d.api.ListZones(reqCtx)
		cancel()
		if err == nil {
			return zones, nil
		}

		logging.Warn("Failed to fetch zones from Cloudflare API, retrying...", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-time.After(time.Duration(attempt) * listRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to fetch zones: %w", err)
}

// filterZones applies the include list when present, otherwise the exclude
// list. Includes win: exclusion is never applied to an included zone.
func filterZones(all []cloudflare.Zone, include, exclude []string) []cloudflare.Zone {
	if len(include) > 0 {
		var filtered []cloudflare.Zone
		for _, z := range all {
			if contains(include, z.ID) {
				filtered = append(filtered, z)
			}
		}
		return filtered
	}

	if len(exclude) == 0 {
		return all
	}
	var filtered []cloudflare.Zone
	for _, z := range all {
		if contains(exclude, z.ID) {
			logging.Info("Excluding zone", map[string]interface{}{
				"zoneID":   z.ID,
				"zoneName": z.Name,
			})
			continue
		}
		filtered = append(filtered, z)
	}
	return filtered
}

func filterDatasets(datasets []models.Dataset, exclude []string) []models.Dataset {
	if len(exclude) == 0 {
		return datasets
	}
	var kept []models.Dataset
	for _, ds := range datasets {
		if datasetExcluded(ds, exclude) {
			logging.Info("Excluding dataset", map[string]interface{}{"dataset": string(ds)})
			continue
		}
		kept = append(kept, ds)
	}
	return kept
}

func datasetExcluded(ds models.Dataset, exclude []string) bool {
	return contains(exclude, string(ds))
}

func contains(s []string, e string) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}
