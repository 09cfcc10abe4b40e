package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Switch SwitchConfig
	Dialer DialerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode must be explicit in production.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// SwitchConfig describes the event-socket bridge to the telephony switch.
type SwitchConfig struct {
	// WSURL is the websocket endpoint of the switch event-socket bridge,
	// e.g. ws://freeswitch:8081/socket
	WSURL string

	// DefaultGateway is the trunk of last resort when routing resolves nothing.
	DefaultGateway string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DialerConfig carries the pacing/compliance tunables.
// Defaults preserve the historical literals; override only with a reason.
type DialerConfig struct {
	CycleInterval  time.Duration
	OfflineBackoff time.Duration

	SafeHarborWindow  time.Duration
	AnnouncementGrace time.Duration
	AbandonPrompt     string

	MaxAttemptsPerLeadDay int
	DIDDailyCap           int

	TrunkHealthTTL    time.Duration
	TrunkHealthWindow time.Duration
	StatsWindow       time.Duration

	TargetOccupancy  float64
	AvgHandleTimeSec float64

	// ChannelSlotTTL bounds how long a leaked concurrent-channel slot can
	// survive a process crash.
	ChannelSlotTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Switch.WSURL = strings.TrimSpace(os.Getenv("SWITCH_WS_URL"))
	c.Switch.DefaultGateway = strings.TrimSpace(os.Getenv("SWITCH_DEFAULT_GATEWAY"))
	c.Switch.ReconnectMin = optDuration("SWITCH_RECONNECT_MIN")
	c.Switch.ReconnectMax = optDuration("SWITCH_RECONNECT_MAX")

	c.Dialer.CycleInterval = optDuration("DIALER_CYCLE_INTERVAL")
	c.Dialer.OfflineBackoff = optDuration("DIALER_OFFLINE_BACKOFF")
	c.Dialer.SafeHarborWindow = optDuration("DIALER_SAFE_HARBOR_WINDOW")
	c.Dialer.AnnouncementGrace = optDuration("DIALER_ANNOUNCEMENT_GRACE")
	c.Dialer.AbandonPrompt = strings.TrimSpace(os.Getenv("DIALER_ABANDON_PROMPT"))
	c.Dialer.MaxAttemptsPerLeadDay = optInt("DIALER_MAX_ATTEMPTS_PER_LEAD_DAY")
	c.Dialer.DIDDailyCap = optInt("DIALER_DID_DAILY_CAP")
	c.Dialer.TrunkHealthTTL = optDuration("DIALER_TRUNK_HEALTH_TTL")
	c.Dialer.TrunkHealthWindow = optDuration("DIALER_TRUNK_HEALTH_WINDOW")
	c.Dialer.StatsWindow = optDuration("DIALER_STATS_WINDOW")
	c.Dialer.TargetOccupancy = optFloat("DIALER_TARGET_OCCUPANCY")
	c.Dialer.AvgHandleTimeSec = optFloat("DIALER_AVG_HANDLE_TIME_SEC")
	c.Dialer.ChannelSlotTTL = optDuration("DIALER_CHANNEL_SLOT_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Switch.WSURL == "" {
		errs = append(errs, errors.New("SWITCH_WS_URL is required"))
	}
	if c.Switch.DefaultGateway == "" {
		c.Switch.DefaultGateway = "default_gw"
	}
	if c.Switch.ReconnectMin <= 0 {
		c.Switch.ReconnectMin = 1 * time.Second
	}
	if c.Switch.ReconnectMax <= 0 {
		c.Switch.ReconnectMax = 30 * time.Second
	}
	if c.Switch.ReconnectMax < c.Switch.ReconnectMin {
		errs = append(errs, errors.New("SWITCH_RECONNECT_MAX must be >= SWITCH_RECONNECT_MIN"))
	}

	d := &c.Dialer
	if d.CycleInterval <= 0 {
		d.CycleInterval = 500 * time.Millisecond
	}
	if d.OfflineBackoff <= 0 {
		d.OfflineBackoff = 5 * time.Second
	}
	if d.SafeHarborWindow <= 0 {
		d.SafeHarborWindow = 2000 * time.Millisecond
	}
	if d.AnnouncementGrace <= 0 {
		d.AnnouncementGrace = 1500 * time.Millisecond
	}
	if d.AbandonPrompt == "" {
		d.AbandonPrompt = "ivr/abandon_notice.wav"
	}
	if d.MaxAttemptsPerLeadDay <= 0 {
		d.MaxAttemptsPerLeadDay = 8
	}
	if d.DIDDailyCap <= 0 {
		d.DIDDailyCap = 300
	}
	if d.TrunkHealthTTL <= 0 {
		d.TrunkHealthTTL = 60 * time.Second
	}
	if d.TrunkHealthWindow <= 0 {
		d.TrunkHealthWindow = 15 * time.Minute
	}
	if d.StatsWindow <= 0 {
		d.StatsWindow = 15 * time.Minute
	}
	if d.TargetOccupancy <= 0 || d.TargetOccupancy > 1 {
		d.TargetOccupancy = 0.85
	}
	if d.AvgHandleTimeSec <= 0 {
		d.AvgHandleTimeSec = 180
	}
	if d.ChannelSlotTTL <= 0 {
		d.ChannelSlotTTL = 2 * time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
