package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Auth modes.
const (
	AuthNone   = ""
	AuthTokens = "tokens"
	AuthJWT    = "jwt"
	AuthRemote = "remote"
)

// Config holds server configuration. It is built once at startup and passed
// by value.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Node    NodeConfig    `yaml:"node"`
	Collab  CollabConfig  `yaml:"collab"`
	Auth    AuthConfig    `yaml:"auth"`
	Bans    BanConfig     `yaml:"bans"`
	Audio   AudioConfig   `yaml:"audio"`
	Metrics MetricsConfig `yaml:"metrics"`

	DBPath string            `yaml:"db_path" env:"GOCOLLAB_DB_PATH"`           // SQLite database path, empty for in-memory
	Flags  map[string]string `yaml:"flags,omitempty"`                          // CIDR -> country code
	Admin  string            `yaml:"admin_password" env:"GOCOLLAB_ADMIN_PASS"` // plain or argon2id secret, empty disables admin login
	Mod    string            `yaml:"mod_password" env:"GOCOLLAB_MOD_PASS"`     // empty disables moderator login
	Turn   string            `yaml:"turn_password" env:"GOCOLLAB_TURN_PASS"`   // lets a user take turns while they are disabled

	ModeratorPermissions model.Permissions `yaml:"moderator_permissions"`
}

type HTTPConfig struct {
	Addr                string   `yaml:"addr" env:"GOCOLLAB_HTTP_ADDR"`
	AllowedOrigins      []string `yaml:"allowed_origins" env:"GOCOLLAB_HTTP_ALLOWED_ORIGINS" envSeparator:","` // empty allows all
	MaxConnectionsPerIP int      `yaml:"max_connections_per_ip" env:"GOCOLLAB_HTTP_MAX_CONNECTIONS"`
	SendQueue           int      `yaml:"send_queue" env:"GOCOLLAB_HTTP_SEND_QUEUE"`
}

type NodeConfig struct {
	ID               string        `yaml:"id" env:"GOCOLLAB_NODE_ID"`
	DisplayName      string        `yaml:"display_name" env:"GOCOLLAB_NODE_NAME"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	ScreenQuality    int           `yaml:"screen_quality" env:"GOCOLLAB_SCREEN_QUALITY"`
	ThumbnailRefresh time.Duration `yaml:"thumbnail_refresh" env:"GOCOLLAB_THUMBNAIL_REFRESH"`
}

type CollabConfig struct {
	MOTD              string        `yaml:"motd" env:"GOCOLLAB_MOTD"`
	TurnTime          time.Duration `yaml:"turn_time" env:"GOCOLLAB_TURN_TIME"`
	TurnLimit         int           `yaml:"turn_limit"` // queued users per IP, 0 for no limit
	VotesEnabled      bool          `yaml:"votes_enabled" env:"GOCOLLAB_VOTES"`
	VoteTime          time.Duration `yaml:"vote_time" env:"GOCOLLAB_VOTE_TIME"`
	VoteCooldown      time.Duration `yaml:"vote_cooldown" env:"GOCOLLAB_VOTE_COOLDOWN"`
	MaxChatLength     int           `yaml:"max_chat_length"`
	MaxChatHistory    int           `yaml:"max_chat_history"`
	AutomuteMessages  int           `yaml:"automute_messages"` // 0 disables flood muting
	AutomuteWindow    time.Duration `yaml:"automute_window"`
	TempMuteTime      time.Duration `yaml:"temp_mute_time"`
	UsernameBlacklist []string      `yaml:"username_blacklist"`
	ArchiveChat       bool          `yaml:"archive_chat" env:"GOCOLLAB_ARCHIVE_CHAT"`
}

// GuestPermissions apply to users that have not logged in while an auth
// mode is active.
type GuestPermissions struct {
	Chat         bool `yaml:"chat"`
	Turn         bool `yaml:"turn"`
	Vote         bool `yaml:"vote"`
	CallForReset bool `yaml:"call_for_reset"` // start a reset vote, as opposed to voting in one
}

type AuthConfig struct {
	Mode     string           `yaml:"mode" env:"GOCOLLAB_AUTH_MODE"`
	LoginURL string           `yaml:"login_url" env:"GOCOLLAB_AUTH_LOGIN_URL"`
	Guests   GuestPermissions `yaml:"guest_permissions"`

	// Staff password checks are expensive. Each user may try once per
	// PasswordInterval and at most PasswordChecks run at a time.
	PasswordInterval time.Duration `yaml:"password_interval"`
	PasswordChecks   int           `yaml:"password_checks"`

	JWTKey      string `yaml:"jwt_key" env:"GOCOLLAB_JWT_KEY"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	RemoteURL    string `yaml:"remote_url" env:"GOCOLLAB_AUTH_REMOTE_URL"`
	RemoteSecret string `yaml:"remote_secret" env:"GOCOLLAB_AUTH_REMOTE_SECRET"`
}

type BanConfig struct {
	Command []string `yaml:"command"` // "$IP" and "$NAME" are substituted
}

type AudioConfig struct {
	Enabled          bool    `yaml:"enabled" env:"GOCOLLAB_AUDIO"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	HoldFrames       int     `yaml:"hold_frames"`
}

type MetricsConfig struct {
	Addr        string        `yaml:"addr" env:"GOCOLLAB_METRICS_ADDR"` // empty disables /metrics
	LogInterval time.Duration `yaml:"log_interval"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:                ":6004",
			MaxConnectionsPerIP: 4,
			SendQueue:           256,
		},
		Node: NodeConfig{
			ID:               "vm0",
			DisplayName:      "Shared VM",
			Width:            1024,
			Height:           768,
			ScreenQuality:    65,
			ThumbnailRefresh: 5 * time.Second,
		},
		Collab: CollabConfig{
			TurnTime:         20 * time.Second,
			VotesEnabled:     true,
			VoteTime:         100 * time.Second,
			VoteCooldown:     180 * time.Second,
			MaxChatLength:    100,
			MaxChatHistory:   10,
			AutomuteMessages: 5,
			AutomuteWindow:   3 * time.Second,
			TempMuteTime:     30 * time.Second,
		},
		Auth: AuthConfig{
			Guests:           GuestPermissions{Chat: true, Turn: true, Vote: true, CallForReset: true},
			PasswordInterval: 3 * time.Second,
			PasswordChecks:   2,
		},
		Audio: AudioConfig{
			HoldFrames: 25,
		},
		Metrics: MetricsConfig{
			Addr:        ":6005",
			LogInterval: 60 * time.Second,
		},
		DBPath: "gocollab.db",
	}
}

// LoadConfig reads path (if not empty) over the defaults and then applies
// GOCOLLAB_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Node.ID == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	if c.Node.Width <= 0 || c.Node.Height <= 0 {
		errs = append(errs, errors.New("node.width and node.height must be positive"))
	}
	if c.Collab.TurnTime <= 0 {
		errs = append(errs, errors.New("collab.turn_time must be positive"))
	}
	if c.Collab.VotesEnabled && (c.Collab.VoteTime <= 0 || c.Collab.VoteCooldown < 0) {
		errs = append(errs, errors.New("collab.vote_time must be positive and vote_cooldown not negative"))
	}
	if c.Collab.AutomuteMessages > 0 && c.Collab.AutomuteWindow <= 0 {
		errs = append(errs, errors.New("collab.automute_window must be positive when automute is on"))
	}
	if c.HTTP.SendQueue <= 0 {
		errs = append(errs, errors.New("http.send_queue must be positive"))
	}
	if c.Auth.PasswordChecks <= 0 {
		errs = append(errs, errors.New("auth.password_checks must be positive"))
	}
	switch c.Auth.Mode {
	case AuthNone, AuthTokens:
	case AuthJWT:
		if c.Auth.JWTKey == "" {
			errs = append(errs, errors.New("auth.jwt_key is required for jwt auth"))
		}
	case AuthRemote:
		if c.Auth.RemoteURL == "" {
			errs = append(errs, errors.New("auth.remote_url is required for remote auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server: invalid config: %w", err)
	}
	return nil
}
