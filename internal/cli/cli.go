package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/config"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/routes"
)

// Execute initializes and runs the Cobra CLI
func Execute() error {

	var cmd = &cobra.Command{
		Use:   "cloudflare-analytics-exporter",
		Short: "Export Cloudflare GraphQL analytics as Prometheus metrics",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.FromViper()
			if err != nil {
				return err
			}
			return routes.RunExporter(cfg)
		},
		SilenceUsage: true,
	}

	viper.SetEnvPrefix("cf")
	viper.AutomaticEnv()

	flags := cmd.Flags()

	flags.String("listen", ":8080", "listen on addr:port (default :8080), omit addr to listen on all interfaces")
	viper.BindEnv("listen")
	viper.SetDefault("listen", ":8080")

	flags.String("metrics_path", "/metrics", "path for metrics, default /metrics")
	viper.BindEnv("metrics_path")
	viper.SetDefault("metrics_path", "/metrics")

	flags.String("cf_api_token", "", "cloudflare analytics api token (required)")
	viper.BindEnv("cf_api_token", "CF_API_TOKEN")

	flags.String("cf_api_url", config.DefaultAPIURL, "cloudflare graphql endpoint override")
	viper.BindEnv("cf_api_url", "CF_API_URL")
	viper.SetDefault("cf_api_url", config.DefaultAPIURL)

	flags.String("cmb_region", "global", "cloudflare metadata boundary region: global, eu or us")
	viper.BindEnv("cmb_region", "CF_CMB_REGION")
	viper.SetDefault("cmb_region", "global")

	flags.Int("scrape_interval", 60, "poll interval in seconds, 60-300 and a multiple of 60")
	viper.BindEnv("scrape_interval", "CF_SCRAPE_INTERVAL")
	viper.SetDefault("scrape_interval", 60)

	flags.Int("max_workers", 5, "number of concurrent poll workers (3-10)")
	viper.BindEnv("max_workers", "CF_MAX_WORKERS")
	viper.SetDefault("max_workers", 5)

	flags.String("cf_zones", "", "zone IDs to export, comma delimited list (default: all zones on the account)")
	viper.BindEnv("cf_zones", "CF_ZONES")
	viper.SetDefault("cf_zones", "")

	flags.String("cf_exclude_zones", "", "zone IDs to exclude, comma delimited list")
	viper.BindEnv("cf_exclude_zones", "CF_EXCLUDE_ZONES")
	viper.SetDefault("cf_exclude_zones", "")

	flags.String("cf_exclude_datasets", "", "datasets to exclude, comma delimited list")
	viper.BindEnv("cf_exclude_datasets", "CF_EXCLUDE_DATASETS")
	viper.SetDefault("cf_exclude_datasets", "")

	flags.String("log_level", "info", "log level: debug, info, warn or error")
	viper.BindEnv("log_level", "CF_LOG_LEVEL")
	viper.SetDefault("log_level", "info")

	viper.BindPFlags(flags)
	return cmd.Execute()
}
