//nolint:lll // struct tags can't be split
package sharhbot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvvarSetEnvPrefix = "SHARHBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "SHARH"

	DefaultDatabase              = "sharhbot.sqlite3"
	DefaultLogLevel              = slog.LevelInfo
	DefaultStartupTimeout        = 30 * time.Second
	DefaultShutdownTimeout       = 60 * time.Second
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultAPILogLevel           = slog.LevelInfo

	DefaultAPIListen     = "127.0.0.1:5000"
	defaultListenNetwork = "tcp"

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	// DefaultRequestTTL is how long an undecided explanation request
	// survives before the sweep silently drops it
	DefaultRequestTTL = 24 * time.Hour

	// DefaultSweepInterval is how often the store is swept for expired
	// requests, independent of request traffic
	DefaultSweepInterval = time.Hour

	// DefaultStartingID is the first sequential member ID assigned per guild
	DefaultStartingID = 1000

	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers

	DiscordSlashCommandSharh           = "sharh"
	DefaultSharhCommandDescription     = "Post the explanation request panel"
	DefaultDiscordStartupMessage       = "Explanation requests are open!"
	DefaultNoAdditionalTextPlaceholder = "No additional text"

	// discordMaxNicknameLength is Discord's hard cap on nicknames
	discordMaxNicknameLength = 32

	// reviewCardContentLimit caps the content preview shown on the
	// staff review card
	reviewCardContentLimit = 800

	// rejectReasonCardLimit / rejectReasonAuditLimit cap the rejection
	// reason shown on the decided review card and in the audit log
	rejectReasonCardLimit  = 500
	rejectReasonAuditLimit = 200

	// auditSendsPerSecond rate-limits fire-and-forget audit webhook sends
	auditSendsPerSecond = 5
)

// Interaction routing keys. These are part of the component custom ID
// protocol and must stay stable: review cards posted before a restart
// still reference them.
const (
	customIDStartRequest = "start_explanation_request"
	customIDSubmitModal  = "modal_explanation_request"

	customIDApprovePrefix      = "explanation_approve_"
	customIDApproveEditPrefix  = "explanation_approve_edit_"
	customIDRejectPrefix       = "explanation_reject_"
	customIDEditModalPrefix    = "modal_edit_approve_"
	customIDRejectReasonPrefix = "modal_reject_reason_"
)

// Embed colors, matching Discord's standard palette
const (
	colorBlue   = 0x3498DB
	colorGreen  = 0x57F287
	colorRed    = 0xED4245
	colorYellow = 0xFEE75C
	colorGold   = 0xF1C40F
)

// Config is the full static bot configuration. Anything here requires
// a restart to change.
type Config struct {
	// Database is the SQLite database path, used for the per-guild
	// member ID counters
	Database string `yaml:"database" mapstructure:"database" json:"database" binding:"required"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures the bot connection and audit webhook
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Explanation configures the request/review/approval workflow
	Explanation *ExplanationConfig `yaml:"explanation" mapstructure:"explanation" json:"explanation"`

	// Nickname configures sequential member ID assignment
	Nickname *NicknameConfig `yaml:"nickname" mapstructure:"nickname" json:"nickname"`

	// API configures the health-check HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// AuditWebhookURL receives structured audit log embeds. When empty,
	// audit entries degrade to local logging.
	AuditWebhookURL string `yaml:"audit_webhook_url" mapstructure:"audit_webhook_url" json:"audit_webhook_url" log:"[redacted]" binding:"omitempty,url"`

	// NotificationChannelID, if set, receives a startup message whenever
	// the bot connects to the gateway
	NotificationChannelID string `yaml:"notification_channel_id" mapstructure:"notification_channel_id" json:"notification_channel_id"`

	// StartupMessage is sent to NotificationChannelID on connect
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// ExplanationConfig configures the explanation request workflow.
//
//nolint:lll // can't break tags
type ExplanationConfig struct {
	// ReviewChannelID is where review cards are posted for staff. If
	// empty or missing, submissions fail with a user-facing
	// configuration error (and nothing is stored).
	ReviewChannelID string `yaml:"review_channel_id" mapstructure:"review_channel_id" json:"review_channel_id"`

	// AnnounceChannelID optionally receives a public notice whenever an
	// explanation is approved and published
	AnnounceChannelID string `yaml:"announce_channel_id" mapstructure:"announce_channel_id" json:"announce_channel_id"`

	// ReviewerRoleID optionally names a role granted visibility into
	// every created explanation channel
	ReviewerRoleID string `yaml:"reviewer_role_id" mapstructure:"reviewer_role_id" json:"reviewer_role_id"`

	// RewardRoleID optionally names a role granted to requesters whose
	// explanations are approved
	RewardRoleID string `yaml:"reward_role_id" mapstructure:"reward_role_id" json:"reward_role_id"`

	// RequestTTL is how long an undecided request survives
	RequestTTL time.Duration `yaml:"request_ttl" mapstructure:"request_ttl" json:"request_ttl" binding:"min=0"`

	// SweepInterval is how often expired requests are purged
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" json:"sweep_interval" binding:"min=0"`
}

// NicknameConfig configures sequential member ID assignment.
type NicknameConfig struct {
	// Enabled toggles nickname assignment on member join
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// StartingID is the first ID assigned in a guild with no counter yet
	StartingID int64 `yaml:"starting_id" mapstructure:"starting_id" json:"starting_id" binding:"min=0"`
}

// APIConfig configures the health-check HTTP server.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required,hostname_port"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required,oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"min=1s"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"min=1s"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultDiscordStartupMessage,
		},
		Explanation: &ExplanationConfig{
			RequestTTL:    DefaultRequestTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Nickname: &NicknameConfig{
			Enabled:    true,
			StartingID: DefaultStartingID,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
