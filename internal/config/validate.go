package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fswatcher/internal/mirror"
)

var (
	ErrMissingWatchPath = errors.New("watch path is required")
	ErrMissingBucket    = errors.New("bucket is required")
)

// Validate reports configuration errors. They are fatal at startup.
func (c *Config) Validate() error {
	if c.WatchPath == "" {
		return ErrMissingWatchPath
	}
	if strings.Trim(c.Bucket, "/ ") == "" {
		return ErrMissingBucket
	}
	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("concurrency_limit must be positive, got %d", c.ConcurrencyLimit)
	}
	switch c.Poll.Strategy {
	case "snapshot", "listing":
	default:
		return fmt.Errorf("unknown poll strategy: %q", c.Poll.Strategy)
	}
	switch c.Store.Type {
	case "s3", "memory":
	case "filesystem":
		if c.Store.Root == "" {
			return fmt.Errorf("filesystem store requires root to be set")
		}
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("path required for sqlite database")
		}
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}
	if c.Backtrack.Date != "" {
		if _, err := ParseBacktrackDate(c.Backtrack.Date); err != nil {
			return err
		}
	}
	for _, f := range c.Tags.Fields {
		if !mirror.IsTagField(f) {
			return fmt.Errorf("unknown tag field: %q", f)
		}
	}
	if (c.Timestream.Database == "") != (c.Timestream.Table == "") {
		return fmt.Errorf("timestream requires both database and table")
	}
	return nil
}

// BacktrackSince returns the backtrack cutoff, or the zero time for a full scan.
func (c *Config) BacktrackSince() time.Time {
	t, err := ParseBacktrackDate(c.Backtrack.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseBacktrackDate parses a YYYY-MM-DD date, tolerating surrounding quotes.
// An empty string yields the zero time.
func ParseBacktrackDate(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid backtrack date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ApplyEnv overlays the environment toggles the watcher has always honoured.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v, ok := envBool(getenv("USE_FALLBACK")); ok {
		c.UseFallback = v
	}
	if v, ok := envBool(getenv("CHECK_S3")); ok {
		c.CheckRemoteOnStart = v
	}
	if v := getenv("AWS_REGION"); v != "" && c.AWS.Region == "" {
		c.AWS.Region = v
	}
	if v := getenv("AWS_PROFILE"); v != "" && c.AWS.Profile == "" {
		c.AWS.Profile = v
	}
	if v := getenv("SLACK_TOKEN"); v != "" {
		c.Slack.Token = v
	}
	if v := getenv("SLACK_CHANNEL"); v != "" {
		c.Slack.Channel = v
	}
	if v := getenv("TIMESTREAM_DB"); v != "" {
		c.Timestream.Database = v
	}
	if v := getenv("TIMESTREAM_TABLE"); v != "" {
		c.Timestream.Table = v
	}
}

func envBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, false
	}
	return v, true
}
