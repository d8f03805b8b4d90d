package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sharhbot/sharhbot"
)

var (
	cfg        = sharhbot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "sharhbot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", sharhbot.DefaultDatabase)
	viper.SetDefault(
		"database_slow_threshold",
		sharhbot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		sharhbot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", sharhbot.DefaultLogLevel.String())
	viper.SetDefault("api.log_level", sharhbot.DefaultAPILogLevel.String())

	viper.SetDefault("startup_timeout", sharhbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", sharhbot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.audit_webhook_url", "")
	viper.SetDefault("discord.notification_channel_id", "")
	viper.SetDefault(
		"discord.log_level",
		sharhbot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		sharhbot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		sharhbot.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault("discord.startup_message", sharhbot.DefaultDiscordStartupMessage)

	// Explanation workflow config
	viper.SetDefault("explanation.review_channel_id", "")
	viper.SetDefault("explanation.announce_channel_id", "")
	viper.SetDefault("explanation.reviewer_role_id", "")
	viper.SetDefault("explanation.reward_role_id", "")
	viper.SetDefault("explanation.request_ttl", sharhbot.DefaultRequestTTL)
	viper.SetDefault("explanation.sweep_interval", sharhbot.DefaultSweepInterval)

	// Nickname assignment config
	viper.SetDefault("nickname.enabled", true)
	viper.SetDefault("nickname.starting_id", sharhbot.DefaultStartingID)

	// API config
	viper.SetDefault("api.listen", sharhbot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.read_timeout", sharhbot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		sharhbot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", sharhbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", sharhbot.DefaultIdleTimeout)

	envPrefix := os.Getenv(sharhbot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = sharhbot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	logLevelKeys := []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	}
	for _, key := range logLevelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
