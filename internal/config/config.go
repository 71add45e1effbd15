package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rozklad/internal/decode"
	"rozklad/internal/model"
)

// Layout names accepted in Config.Layout.
const (
	LayoutSlotGrid  = "slot_grid"
	LayoutTextRange = "text_range"
)

// SourceConfig describes where the timetable is published.
type SourceConfig struct {
	// PageURL is the faculty page listing the timetables.
	PageURL string `yaml:"page_url" json:"page_url" validate:"required,url"`
	// Match selects the table row whose first cell contains it.
	Match string `yaml:"match" json:"match" validate:"required"`
	// Exclude rejects rows whose first cell contains it, e.g. "IV rok" when
	// matching "V rok".
	Exclude   string        `yaml:"exclude" json:"exclude"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// SlotGridConfig configures the fixed-slot decoder. Columns are 0-based.
type SlotGridConfig struct {
	DayColumn      int      `yaml:"day_column" json:"day_column" validate:"gte=0"`
	DateColumn     int      `yaml:"date_column" json:"date_column" validate:"gte=0"`
	GroupColumn    int      `yaml:"group_column" json:"group_column" validate:"gte=0"`
	StartColumn    int      `yaml:"start_column" json:"start_column" validate:"gte=0"`
	FirstSlot      string   `yaml:"first_slot" json:"first_slot" validate:"clock"`
	SlotMinutes    int      `yaml:"slot_minutes" json:"slot_minutes" validate:"gt=0,lte=240"`
	Baseline       string   `yaml:"baseline" json:"baseline" validate:"clock"`
	ValidateGroups bool     `yaml:"validate_groups" json:"validate_groups"`
	MinGroup       int      `yaml:"min_group" json:"min_group"`
	MaxGroup       int      `yaml:"max_group" json:"max_group" validate:"gtefield=MinGroup"`
	DateLayouts    []string `yaml:"date_layouts" json:"date_layouts"`
}

// TextRangeConfig configures the free-text decoder.
type TextRangeConfig struct {
	GroupColumn  int      `yaml:"group_column" json:"group_column" validate:"gte=0"`
	Baseline     string   `yaml:"baseline" json:"baseline" validate:"clock"`
	DefaultColor string   `yaml:"default_color" json:"default_color" validate:"rgb6"`
	DateLayouts  []string `yaml:"date_layouts" json:"date_layouts"`
}

// ScheduleConfig drives periodic update checks.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Specs are standard 5-field cron expressions.
	Specs []string `yaml:"specs" json:"specs" validate:"dive,cronspec"`
	// StartupDelay postpones the first check after start.
	StartupDelay time.Duration `yaml:"startup_delay" json:"startup_delay" validate:"gte=0"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output" json:"output"`
}

// ArchiveConfig points at S3-compatible storage for downloaded workbooks.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint" validate:"required_if=Enabled true"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Bucket    string `yaml:"bucket" json:"bucket" validate:"required_if=Enabled true"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// GCalConfig configures pushing sessions into Google Calendar.
type GCalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// CredentialsFile is the OAuth client JSON downloaded from the console.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" validate:"required_if=Enabled true"`
	TokenFile       string `yaml:"token_file" json:"token_file"`
	CalendarID      string `yaml:"calendar_id" json:"calendar_id"`
	// Groups whose sessions are synced.
	Groups      []int  `yaml:"groups" json:"groups" validate:"required_if=Enabled true,dive,gt=0"`
	ColorID     string `yaml:"color_id" json:"color_id"`
	TimeZone    string `yaml:"time_zone" json:"time_zone" validate:"omitempty,tz"`
	HorizonDays int    `yaml:"horizon_days" json:"horizon_days" validate:"gte=0"`
}

// NotifyConfig announces published updates on a RabbitMQ queue.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL is an amqp:// or amqps:// connection string.
	URL   string `yaml:"url" json:"-" validate:"required_if=Enabled true"`
	Queue string `yaml:"queue" json:"queue"`
}

// CaptureConfig configures the PNG preview of the week page.
type CaptureConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Width   int           `yaml:"width" json:"width" validate:"gte=0"`
	Height  int           `yaml:"height" json:"height" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Password overrides BasicAuth.Password for the headless browser.
	Password string `yaml:"password,omitempty" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web UI and API.
// Password may be a bcrypt hash; preview capture then needs the plain
// password in CaptureConfig.Password.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" validate:"required"`
	// PublicURL is where the web UI is reachable; used for the preview capture.
	PublicURL string `yaml:"public_url" json:"public_url" validate:"omitempty,url"`

	// Timezone is the IANA zone sessions are published in.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,tz"`

	// DataDir holds the database, HTTP cache, downloaded workbook and preview.
	DataDir string `yaml:"data_dir" json:"data_dir" validate:"required"`

	// DefaultGroup is shown when the week page is opened without a group.
	DefaultGroup int `yaml:"default_group" json:"default_group" validate:"gte=0"`

	Source SourceConfig `yaml:"source" json:"source"`

	// Layout selects the decoder: "slot_grid" or "text_range".
	Layout string `yaml:"layout" json:"layout" validate:"oneof=slot_grid text_range"`
	// Sheet is the worksheet to read; empty means the active sheet.
	Sheet     string          `yaml:"sheet" json:"sheet"`
	SlotGrid  SlotGridConfig  `yaml:"slot_grid" json:"slot_grid"`
	TextRange TextRangeConfig `yaml:"text_range" json:"text_range"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
	GCal     GCalConfig     `yaml:"gcal" json:"gcal"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`

	// UpdateRateLimit caps manual /update requests per client per minute.
	UpdateRateLimit int `yaml:"update_rate_limit" json:"update_rate_limit" validate:"gte=0"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		PublicURL:    "http://127.0.0.1:8080",
		Timezone:     "Europe/Warsaw",
		DataDir:      "./var",
		DefaultGroup: 7,
		Source: SourceConfig{
			PageURL:   "https://www.ur.edu.pl/pl/kolegia/kolegium-nauk-medycznych/student/kierunki-studiow1/lekarski/rozklady-zajec",
			Match:     "V rok kierunek lekarski",
			Exclude:   "IV rok kierunek lekarski",
			Timeout:   60 * time.Second,
			UserAgent: "rozklad/1.0",
		},
		Layout: LayoutSlotGrid,
		SlotGrid: SlotGridConfig{
			DayColumn:      0,
			DateColumn:     1,
			GroupColumn:    2,
			StartColumn:    6,
			FirstSlot:      "07:00",
			SlotMinutes:    15,
			Baseline:       "07:00",
			ValidateGroups: true,
			MinGroup:       1,
			MaxGroup:       23,
			DateLayouts:    append([]string(nil), decode.DefaultDateLayouts...),
		},
		TextRange: TextRangeConfig{
			GroupColumn:  0,
			Baseline:     "06:30",
			DefaultColor: "FFFFFF",
			DateLayouts:  append([]string(nil), decode.DefaultDateLayouts...),
		},
		Schedule: ScheduleConfig{
			Enabled:      true,
			Specs:        []string{"0 0 * * *", "0 */6 * * *"},
			StartupDelay: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Archive: ArchiveConfig{
			Bucket: "rozklad",
			Prefix: "workbooks",
		},
		GCal: GCalConfig{
			TokenFile:   "token.json",
			CalendarID:  "primary",
			ColorID:     "6",
			TimeZone:    "Europe/Warsaw",
			HorizonDays: 14,
		},
		Notify: NotifyConfig{
			Queue: "rozklad.updates",
		},
		Capture: CaptureConfig{
			Width:   1280,
			Height:  900,
			Timeout: 30 * time.Second,
		},
		UpdateRateLimit: 6,
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Layout == "" {
		c.Layout = d.Layout
	}

	if c.Source.PageURL == "" {
		c.Source.PageURL = d.Source.PageURL
	}
	if c.Source.Match == "" {
		c.Source.Match = d.Source.Match
		if c.Source.Exclude == "" {
			c.Source.Exclude = d.Source.Exclude
		}
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = d.Source.Timeout
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = d.Source.UserAgent
	}

	if c.SlotGrid.FirstSlot == "" {
		c.SlotGrid.FirstSlot = d.SlotGrid.FirstSlot
	}
	if c.SlotGrid.Baseline == "" {
		c.SlotGrid.Baseline = c.SlotGrid.FirstSlot
	}
	if c.SlotGrid.SlotMinutes <= 0 {
		c.SlotGrid.SlotMinutes = d.SlotGrid.SlotMinutes
	}
	if c.SlotGrid.ValidateGroups && c.SlotGrid.MinGroup == 0 && c.SlotGrid.MaxGroup == 0 {
		c.SlotGrid.MinGroup, c.SlotGrid.MaxGroup = d.SlotGrid.MinGroup, d.SlotGrid.MaxGroup
	}
	if len(c.SlotGrid.DateLayouts) == 0 {
		c.SlotGrid.DateLayouts = d.SlotGrid.DateLayouts
	}

	if c.TextRange.Baseline == "" {
		c.TextRange.Baseline = d.TextRange.Baseline
	}
	if c.TextRange.DefaultColor == "" {
		c.TextRange.DefaultColor = d.TextRange.DefaultColor
	}
	c.TextRange.DefaultColor = strings.ToUpper(strings.TrimPrefix(c.TextRange.DefaultColor, "#"))
	if len(c.TextRange.DateLayouts) == 0 {
		c.TextRange.DateLayouts = d.TextRange.DateLayouts
	}

	if c.Schedule.Specs == nil {
		c.Schedule.Specs = d.Schedule.Specs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = d.Archive.Bucket
	}
	if c.GCal.TokenFile == "" {
		c.GCal.TokenFile = d.GCal.TokenFile
	}
	if c.GCal.CalendarID == "" {
		c.GCal.CalendarID = d.GCal.CalendarID
	}
	if c.GCal.ColorID == "" {
		c.GCal.ColorID = d.GCal.ColorID
	}
	if c.GCal.TimeZone == "" {
		c.GCal.TimeZone = c.Timezone
	}
	if c.GCal.HorizonDays <= 0 {
		c.GCal.HorizonDays = d.GCal.HorizonDays
	}
	if c.Notify.Queue == "" {
		c.Notify.Queue = d.Notify.Queue
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = d.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = d.Capture.Height
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = d.Capture.Timeout
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://" + c.Listen
	}
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DatabasePath is the SQLite file under DataDir.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "rozklad.db") }

// CacheDir is the HTTP cache directory under DataDir.
func (c *Config) CacheDir() string { return filepath.Join(c.DataDir, "http-cache") }

// WorkbookPath is where the last downloaded workbook is kept.
func (c *Config) WorkbookPath() string { return filepath.Join(c.DataDir, "plan_downloaded.xlsx") }

// PreviewPath is the rendered week page PNG.
func (c *Config) PreviewPath() string { return filepath.Join(c.DataDir, "preview.png") }

// SlotGridOptions converts the slot-grid section to decoder options.
func (c *Config) SlotGridOptions() (decode.SlotGridOptions, error) {
	s := c.SlotGrid
	first, err := model.ParseClock(s.FirstSlot)
	if err != nil {
		return decode.SlotGridOptions{}, fmt.Errorf("config: slot_grid.first_slot: %w", err)
	}
	baseline, err := model.ParseClock(s.Baseline)
	if err != nil {
		return decode.SlotGridOptions{}, fmt.Errorf("config: slot_grid.baseline: %w", err)
	}
	return decode.SlotGridOptions{
		DayColumn:      s.DayColumn,
		DateColumn:     s.DateColumn,
		GroupColumn:    s.GroupColumn,
		StartColumn:    s.StartColumn,
		FirstSlot:      first,
		SlotMinutes:    s.SlotMinutes,
		Baseline:       baseline,
		ValidateGroups: s.ValidateGroups,
		MinGroup:       s.MinGroup,
		MaxGroup:       s.MaxGroup,
		DateLayouts:    s.DateLayouts,
	}, nil
}

// TextRangeOptions converts the text-range section to decoder options.
func (c *Config) TextRangeOptions() (decode.TextRangeOptions, error) {
	t := c.TextRange
	baseline, err := model.ParseClock(t.Baseline)
	if err != nil {
		return decode.TextRangeOptions{}, fmt.Errorf("config: text_range.baseline: %w", err)
	}
	return decode.TextRangeOptions{
		GroupColumn:  t.GroupColumn,
		Baseline:     baseline,
		DefaultColor: t.DefaultColor,
		DateLayouts:  t.DateLayouts,
	}, nil
}

// Decoder returns the decoder selected by Layout.
func (c *Config) Decoder() (decode.Decoder, error) {
	switch c.Layout {
	case LayoutSlotGrid:
		opts, err := c.SlotGridOptions()
		if err != nil {
			return nil, err
		}
		return decode.NewSlotGrid(opts), nil
	case LayoutTextRange:
		opts, err := c.TextRangeOptions()
		if err != nil {
			return nil, err
		}
		return decode.NewTextRange(opts), nil
	default:
		return nil, fmt.Errorf("config: unknown layout %q", c.Layout)
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides deployment settings and secrets from ROZKLAD_*
// environment variables.
func (c *Config) ApplyEnv() {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("ROZKLAD_" + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("ROZKLAD_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("LISTEN", &c.Listen)
	str("PUBLIC_URL", &c.PublicURL)
	str("TIMEZONE", &c.Timezone)
	str("DATA_DIR", &c.DataDir)
	str("SOURCE_PAGE_URL", &c.Source.PageURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	boolean("ARCHIVE_ENABLED", &c.Archive.Enabled)
	str("ARCHIVE_ENDPOINT", &c.Archive.Endpoint)
	str("ARCHIVE_ACCESS_KEY", &c.Archive.AccessKey)
	str("ARCHIVE_SECRET_KEY", &c.Archive.SecretKey)
	str("ARCHIVE_BUCKET", &c.Archive.Bucket)

	boolean("GCAL_ENABLED", &c.GCal.Enabled)
	str("GCAL_CREDENTIALS_FILE", &c.GCal.CredentialsFile)
	str("GCAL_TOKEN_FILE", &c.GCal.TokenFile)
	str("GCAL_CALENDAR_ID", &c.GCal.CalendarID)

	boolean("NOTIFY_ENABLED", &c.Notify.Enabled)
	str("NOTIFY_URL", &c.Notify.URL)
	str("NOTIFY_QUEUE", &c.Notify.Queue)

	str("CAPTURE_PASSWORD", &c.Capture.Password)

	if v, ok := os.LookupEnv("ROZKLAD_DEFAULT_GROUP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultGroup = n
		}
	}

	user, hasUser := os.LookupEnv("ROZKLAD_BASIC_AUTH_USERNAME")
	pass, hasPass := os.LookupEnv("ROZKLAD_BASIC_AUTH_PASSWORD")
	if hasUser || hasPass {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		if hasUser {
			c.BasicAuth.Username = user
		}
		if hasPass {
			c.BasicAuth.Password = pass
		}
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written with 0600
// permissions and returned. Otherwise the file is parsed and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable default is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rozklad-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
