package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

// Crawl and probe limits.
const (
	DefaultMaxPages      = 50
	ProbeConcurrency     = 10
	MaxListedFindings    = 50
	MaxCrawlBodyBytes    = 2 * 1024 * 1024
	PageFetchTimeout     = 15 * time.Second
	LinkProbeTimeout     = 8 * time.Second
	SpeedProbeTimeout    = 30 * time.Second
	TLSDialTimeout       = 10 * time.Second
	StaticProbeTimeout   = 60 * time.Second
	MaxRedirects         = 10
	StatusTimeout        = -1
	StatusConnectionFail = -2
)

const (
	// TLSSoonExpiryWindow marks certificates expiring inside this window as a warning.
	TLSSoonExpiryWindow = 14 * 24 * time.Hour
)

// Browser agent limits.
const (
	LoginNavigationTimeout  = 90 * time.Second
	NetworkIdleTimeout      = 30 * time.Second
	PostSubmitSettle        = 4 * time.Second
	SuccessIndicatorTimeout = 8 * time.Second
	NavVisitTimeout         = 12 * time.Second
	ClickTimeout            = 3 * time.Second
	MaxNavLinks             = 10
	MaxButtonPages          = 5
	MaxButtonsPerSelector   = 30
	MaxFormsRecorded        = 5
	MaxUIActions            = 50
	MaxExplorationJSErrors  = 20
	MaxReportedJSErrors     = 30
	BrowserViewportWidth    = 1280
	BrowserViewportHeight   = 800
)

// DefaultScoreDropThreshold is the point drop that triggers a score_drop notification.
const DefaultScoreDropThreshold = 5
