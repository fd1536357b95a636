package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/siteqa/siteqa/internal/application"
	"github.com/siteqa/siteqa/internal/infrastructure/notify"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

const (
	defaultDataDir            = "./data"
	defaultHTTPTimeoutSeconds = 30
	defaultDNSTimeoutSeconds  = 5
	defaultLogMaxSizeMB       = 50
	defaultLogMaxBackups      = 3
	defaultLogMaxAgeDays      = 28
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	DataDir string
	Log     LogConfig
	Server  ServerConfig
	Crawl   CrawlConfig
	Guard   GuardConfig
	Browser BrowserConfig
	Notify  NotifyConfig
}

// LogConfig selects the level and the optional rotated file sink.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ServerConfig holds the API server settings.
type ServerConfig struct {
	Addr            string
	AuthToken       string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	ShutdownTimeout time.Duration
	RuntimeMetrics  bool
}

// CrawlConfig bounds the crawl and the static probe batch.
type CrawlConfig struct {
	MaxPages          int
	MaxDepth          int
	Concurrency       int
	RespectRobots     bool
	RequestsPerSecond float64
	TimeoutSecs       int
}

// GuardConfig points the origin guard at explicit nameservers.
type GuardConfig struct {
	Nameservers    []string
	DNSTimeoutSecs int
}

// BrowserConfig controls the Playwright-backed checks.
type BrowserConfig struct {
	Enabled  bool
	Headless bool
	Install  bool
}

// NotifyConfig lists the webhooks that receive run events.
type NotifyConfig struct {
	WebhookURLs        []string
	ScoreDropThreshold int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		DataDir: defaultDataDir,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 30 * time.Second,
		},
		Crawl: CrawlConfig{
			MaxPages:    constants.DefaultMaxPages,
			Concurrency: constants.ProbeConcurrency,
			TimeoutSecs: defaultHTTPTimeoutSeconds,
		},
		Guard: GuardConfig{
			DNSTimeoutSecs: defaultDNSTimeoutSeconds,
		},
		Browser: BrowserConfig{
			Enabled:  true,
			Headless: true,
		},
		Notify: NotifyConfig{
			ScoreDropThreshold: constants.DefaultScoreDropThreshold,
		},
	}
}

// containerConfig translates the CLI view into the engine wiring config.
func (c *CLIConfig) containerConfig(dataDir string) application.Config {
	return application.Config{
		DataDir:          dataDir,
		HTTPTimeout:      time.Duration(c.Crawl.TimeoutSecs) * time.Second,
		DNSServers:       c.Guard.Nameservers,
		DNSTimeout:       time.Duration(c.Guard.DNSTimeoutSecs) * time.Second,
		ProbeConcurrency: c.Crawl.Concurrency,
		ProbeTimeout:     constants.StaticProbeTimeout,
		RuntimeMetrics:   c.Server.RuntimeMetrics,
		Crawl: application.CrawlConfig{
			MaxPages:          c.Crawl.MaxPages,
			MaxDepth:          c.Crawl.MaxDepth,
			Concurrency:       c.Crawl.Concurrency,
			RespectRobots:     c.Crawl.RespectRobots,
			RequestsPerSecond: c.Crawl.RequestsPerSecond,
		},
		Browser: application.BrowserConfig{
			Enabled:  c.Browser.Enabled,
			Headless: c.Browser.Headless,
			Install:  c.Browser.Install,
		},
		Notify: notify.Config{
			WebhookURLs:        c.Notify.WebhookURLs,
			ScoreDropThreshold: c.Notify.ScoreDropThreshold,
		},
	}
}

// applyConfigDefaults merges config file and SITEQA_* environment values into
// the runtime config when the user did not explicitly set the corresponding
// flag.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()

	applyStringDefault(flags, "data-dir", "data_dir", func(v string) { cliConfig.DataDir = v })
	applyStringDefault(flags, "log-level", "log.level", func(v string) { cliConfig.Log.Level = v })
	applyStringDefault(flags, "log-file", "log.file", func(v string) { cliConfig.Log.File = v })
	if viper.IsSet("log.max_size_mb") {
		cliConfig.Log.MaxSizeMB = viper.GetInt("log.max_size_mb")
	}
	if viper.IsSet("log.max_backups") {
		cliConfig.Log.MaxBackups = viper.GetInt("log.max_backups")
	}
	if viper.IsSet("log.max_age_days") {
		cliConfig.Log.MaxAgeDays = viper.GetInt("log.max_age_days")
	}

	applyStringDefault(flags, "addr", "server.addr", func(v string) { cliConfig.Server.Addr = v })
	applyStringDefault(flags, "auth-token", "server.auth_token", func(v string) { cliConfig.Server.AuthToken = v })
	applyStringSliceDefault(flags, "cors-origins", "server.cors_origins", func(v []string) { cliConfig.Server.CORSOrigins = v })
	if viper.IsSet("server.rate_limit") {
		applyIntDefault(flags, "rate-limit", viper.GetInt("server.rate_limit"), func(v int) { cliConfig.Server.RateLimit = v })
	}
	if viper.IsSet("server.rate_burst") {
		applyIntDefault(flags, "rate-burst", viper.GetInt("server.rate_burst"), func(v int) { cliConfig.Server.RateBurst = v })
	}
	if viper.IsSet("server.runtime_metrics") {
		applyBoolDefault(flags, "runtime-metrics", viper.GetBool("server.runtime_metrics"), func(v bool) { cliConfig.Server.RuntimeMetrics = v })
	}

	if viper.IsSet("crawl.max_pages") {
		applyIntDefault(flags, "max-pages", viper.GetInt("crawl.max_pages"), func(v int) { cliConfig.Crawl.MaxPages = v })
	}
	if viper.IsSet("crawl.max_depth") {
		applyIntDefault(flags, "max-depth", viper.GetInt("crawl.max_depth"), func(v int) { cliConfig.Crawl.MaxDepth = v })
	}
	if viper.IsSet("crawl.concurrency") {
		applyIntDefault(flags, "concurrency", viper.GetInt("crawl.concurrency"), func(v int) { cliConfig.Crawl.Concurrency = v })
	}
	if viper.IsSet("crawl.respect_robots") {
		applyBoolDefault(flags, "respect-robots", viper.GetBool("crawl.respect_robots"), func(v bool) { cliConfig.Crawl.RespectRobots = v })
	}
	if viper.IsSet("crawl.requests_per_second") {
		cliConfig.Crawl.RequestsPerSecond = viper.GetFloat64("crawl.requests_per_second")
	}
	if viper.IsSet("crawl.timeout_secs") {
		applyIntDefault(flags, "timeout", viper.GetInt("crawl.timeout_secs"), func(v int) { cliConfig.Crawl.TimeoutSecs = v })
	}

	applyStringSliceDefault(flags, "nameservers", "guard.nameservers", func(v []string) { cliConfig.Guard.Nameservers = v })
	if viper.IsSet("guard.dns_timeout_secs") {
		cliConfig.Guard.DNSTimeoutSecs = viper.GetInt("guard.dns_timeout_secs")
	}

	if viper.IsSet("browser.enabled") {
		applyBoolDefault(flags, "browser", viper.GetBool("browser.enabled"), func(v bool) { cliConfig.Browser.Enabled = v })
	}
	if viper.IsSet("browser.headless") {
		applyBoolDefault(flags, "headless", viper.GetBool("browser.headless"), func(v bool) { cliConfig.Browser.Headless = v })
	}
	if viper.IsSet("browser.install") {
		cliConfig.Browser.Install = viper.GetBool("browser.install")
	}

	applyStringSliceDefault(flags, "webhook", "notify.webhook_urls", func(v []string) { cliConfig.Notify.WebhookURLs = v })
	if viper.IsSet("notify.score_drop_threshold") {
		cliConfig.Notify.ScoreDropThreshold = viper.GetInt("notify.score_drop_threshold")
	}

	if viper.IsSet("run.format") {
		setStringFlagIfUnset(flags, "format", viper.GetString("run.format"))
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

// applyStringDefault copies the viper key into setter unless the flag was set.
func applyStringDefault(flags *pflag.FlagSet, name, key string, setter func(string)) {
	if !viper.IsSet(key) || setter == nil {
		return
	}
	if flags != nil {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			return
		}
	}
	setter(viper.GetString(key))
}

func applyStringSliceDefault(flags *pflag.FlagSet, name, key string, setter func([]string)) {
	if !viper.IsSet(key) || setter == nil {
		return
	}
	if flags != nil {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			return
		}
	}
	setter(viper.GetStringSlice(key))
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
