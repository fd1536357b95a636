package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string
var logger *zap.SugaredLogger

// AppContext is what PersistentPreRunE hands to subcommands.
type AppContext struct {
	Config  *CLIConfig
	Logger  *zap.Logger
	DataDir string
}

var globalAppContext *AppContext

var rootCmd = &cobra.Command{
	Use:           "siteqa",
	Short:         "Website quality checks: speed, TLS, links, SEO, accessibility and login flows",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()
		applyConfigDefaults(cmd)

		l, err := newLogger(cliConfig.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l.Sugar()

		dataDir := cliConfig.DataDir
		if abs, err := filepath.Abs(dataDir); err == nil {
			dataDir = abs
		}

		storeAppContext(cmd, &AppContext{Config: cliConfig, Logger: l, DataDir: dataDir})
		logger.Debugw("configuration loaded", "data_dir", dataDir, "config_file", viper.ConfigFileUsed())
		return nil
	},
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".siteqa")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("SITEQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if globalAppContext == nil {
		return &AppContext{Config: cliConfig, Logger: zap.NewNop(), DataDir: cliConfig.DataDir}
	}
	return globalAppContext
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.siteqa.yaml)")
	flags.StringVar(&cliConfig.DataDir, "data-dir", cliConfig.DataDir, "Directory for persisted runs")
	flags.StringVar(&cliConfig.Log.Level, "log-level", cliConfig.Log.Level, "Log level (debug, info, warn, error)")
	flags.StringVar(&cliConfig.Log.File, "log-file", "", "Also write JSON logs to this file, rotated")

	flags.IntVar(&cliConfig.Crawl.MaxPages, "max-pages", cliConfig.Crawl.MaxPages, "Maximum pages to crawl")
	flags.IntVar(&cliConfig.Crawl.MaxDepth, "max-depth", 0, "Maximum link depth from the start page (0 = unbounded)")
	flags.IntVar(&cliConfig.Crawl.Concurrency, "concurrency", cliConfig.Crawl.Concurrency, "Concurrent link probes and static checks")
	flags.BoolVar(&cliConfig.Crawl.RespectRobots, "respect-robots", false, "Honour robots.txt while crawling")
	flags.IntVar(&cliConfig.Crawl.TimeoutSecs, "timeout", cliConfig.Crawl.TimeoutSecs, "HTTP request timeout in seconds")
	flags.StringSliceVar(&cliConfig.Guard.Nameservers, "nameservers", nil, "DNS servers used to vet targets (default: system resolver)")
	flags.BoolVar(&cliConfig.Browser.Enabled, "browser", cliConfig.Browser.Enabled, "Enable browser checks (web vitals, login)")
	flags.BoolVar(&cliConfig.Browser.Headless, "headless", cliConfig.Browser.Headless, "Run the browser headless")

	rootCmd.AddCommand(versionCmd)
}
