// Package sharhbot implements a Discord bot for community-written
// explanation channels. Members submit explanation requests through a
// modal, staff review them on a card with approve/edit/reject buttons,
// and approved explanations are published into a freshly provisioned
// channel. The bot also assigns each new guild member a persistent
// sequential ID, rendered into their nickname.
package sharhbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	defaultLogWriter io.Writer = os.Stdout

	structValidator = validator.New()
)

func init() {
	structValidator.SetTagName("binding")
}

// Bot is the top-level application, wiring the Discord gateway, the
// review workflow, the nickname assigner and the health API together.
type Bot struct {
	config *Config

	logger     *slog.Logger
	logHandler slog.Handler

	discord     *Discord
	store       *RequestStore
	provisioner *ChannelProvisioner
	workflow    *ReviewWorkflow
	nickname    *NicknameAssigner
	audit       *AuditLogger
	api         *API
	db          *gorm.DB

	startedAt time.Time

	// signalStop enables an explicit stop signal to be sent to the bot,
	// outside of an interrupt or context cancellation
	signalStop chan struct{}

	// signalReady has a value sent on it when Run has finished starting
	// everything up
	signalReady chan struct{}

	// runMu prevents concurrent Run calls
	runMu sync.Mutex
}

// New creates a Bot from the given config. The returned bot is inert
// until Run is called.
func New(config *Config) (*Bot, error) {
	var errs []error

	if config == nil {
		return nil, errors.New("nil config")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:      config,
		signalReady: make(chan struct{}, 1),
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     b.config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	b.config.Discord.httpClient = b.config.HTTPClient

	disc := newDiscord(b.config.Discord)
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)
	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")
	b.discord = disc

	b.store = NewRequestStore(b.logger)

	api, err := newAPI(b, config.API)
	errs = append(errs, err)
	b.api = api

	return b, errors.Join(errs...)
}

func (b *Bot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

// RegisterSlashCommands registers the bot's slash commands with Discord.
func (b *Bot) RegisterSlashCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	return b.discord.registerCommands(options...)
}

// Run starts the bot and blocks until the given context is canceled or
// a stop signal is received, then shuts down gracefully.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.signalStop = make(chan struct{}, 1)
	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))
	if b.signalReady == nil {
		b.signalReady = make(chan struct{}, 1)
	}

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.signalStop:
			b.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			b.logger.Warn("context canceled, sending stop signal")
			b.signalStop <- struct{}{}
			return
		}
	}()

	go func() {
		httpErr := b.api.Serve(ctx)
		if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			b.logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		logger.Debug("initializing run...")
		initErr <- b.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			if b.api != nil && b.api.listener != nil {
				go func() {
					if e := b.api.listener.Close(); e != nil {
						logger.ErrorContext(ctx, "error closing listener", tint.Err(e))
					}
				}()
			}
			return err
		}
		logger.InfoContext(ctx, "init complete")
	}

	runtimeWG := &sync.WaitGroup{}

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		b.runSweeper(ctx)
	}()

	b.signalReady <- struct{}{}
	b.logger.InfoContext(ctx, "sent ready signal")

	<-ctx.Done()
	return b.shutdown(runtimeWG)
}

// initRun performs all startup work that has to complete within the
// startup timeout: opening the database, wiring the workflow
// components, connecting to Discord and registering commands.
func (b *Bot) initRun(ctx context.Context) error {
	db, err := CreateDB(
		b.config.Database,
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.DatabaseLogLevel,
				AddSource: true,
			},
		),
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return err
	}
	b.db = db

	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session

	b.audit, err = newAuditLogger(
		session,
		b.config.Discord.AuditWebhookURL,
		b.logger,
	)
	if err != nil {
		return err
	}
	b.provisioner = newChannelProvisioner(
		session,
		b.config.Explanation,
		b.audit,
		b.logger,
	)
	b.workflow = newReviewWorkflow(
		session,
		b.store,
		b.provisioner,
		b.config.Explanation,
		b.audit,
		b.logger,
	)
	b.nickname = newNicknameAssigner(
		session,
		db,
		b.config.Nickname,
		b.audit,
		b.logger,
	)

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.handlerInteractionCreate()),
		session.AddHandler(b.handlerGuildMemberAdd()),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if _, err = b.RegisterSlashCommands(discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}
	return nil
}

// runSweeper periodically drops expired explanation requests.
func (b *Bot) runSweeper(ctx context.Context) {
	interval := b.config.Explanation.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.store.SweepExpired(now, b.config.Explanation.RequestTTL)
		}
	}
}

func (b *Bot) handlerGuildMemberAdd() func(
	s *discordgo.Session,
	m *discordgo.GuildMemberAdd,
) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		ctx := WithLogger(context.Background(), b.logger)
		b.nickname.HandleMemberAdd(ctx, m)
	}
}

func (b *Bot) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx := context.Background()
		b.handleInteraction(ctx, i)
	}
}

// handleInteraction dispatches a gateway interaction to the matching
// workflow action.
func (b *Bot) handleInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger := b.logger.With(
		slog.Group("interaction", interactionLogAttrs(*i)...),
	)
	ctx = WithLogger(ctx, logger)

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}
	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}
	logger.InfoContext(
		ctx,
		"received new interaction",
		"user", structToSlogValue(discordUser),
	)

	switch i.Type {
	case discordgo.InteractionPing:
		_ = b.discord.session.InteractionRespond(
			i.Interaction,
			&discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
			discordgo.WithContext(ctx),
		)
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == DiscordSlashCommandSharh {
			b.handleSharhCommand(ctx, i)
		}
	case discordgo.InteractionMessageComponent:
		b.routeCustomID(ctx, i, i.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		b.routeCustomID(ctx, i, i.ModalSubmitData().CustomID)
	}
}

// routeCustomID maps a component or modal custom ID to its workflow
// handler.
func (b *Bot) routeCustomID(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	customID string,
) {
	key := parseRoutingKey(customID)
	switch key.kind {
	case routingStartRequest:
		b.workflow.handleStartButton(ctx, i)
	case routingSubmitModal:
		b.workflow.handleSubmitModal(ctx, i)
	case routingApprove:
		b.workflow.handleApprove(ctx, i, key.requestID)
	case routingApproveEdit:
		b.workflow.handleApproveEdit(ctx, i, key.requestID)
	case routingReject:
		b.workflow.handleReject(ctx, i, key.requestID)
	case routingEditModal:
		b.workflow.handleEditModal(ctx, i, key.requestID)
	case routingRejectReasonModal:
		b.workflow.handleRejectReasonModal(ctx, i, key.requestID)
	default:
		log, ok := ContextLogger(ctx)
		if !ok || log == nil {
			log = b.logger
		}
		log.WarnContext(ctx, "unknown custom id", "custom_id", customID)
	}
}

// handleSharhCommand posts the explanation request panel into the
// channel the command was invoked in.
func (b *Bot) handleSharhCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	log, ok := ContextLogger(ctx)
	if !ok || log == nil {
		log = b.logger
	}
	_, err := b.discord.session.ChannelMessageSendComplex(
		i.ChannelID,
		explanationPanelMessage(b.config.Explanation.RewardRoleID),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		log.ErrorContext(ctx, "error posting request panel", tint.Err(err))
		b.workflow.respondEphemeral(ctx, i, "❌ Could not post the request panel here.")
		return
	}
	b.workflow.respondEphemeral(ctx, i, "✅ Request panel posted.")

	invokerName := "unknown"
	if user := getDiscordUser(i); user != nil {
		invokerName = user.Username
	}
	b.audit.Send(ctx, auditEmbed(
		"📚 Explanation request panel posted",
		fmt.Sprintf("**%s** posted the request panel in <#%s>", invokerName, i.ChannelID),
		colorBlue,
	))
}

// Stop signals a running bot to begin a graceful shutdown.
func (b *Bot) Stop() {
	if b.signalStop != nil {
		b.signalStop <- struct{}{}
	}
}

// shutdown closes the Discord session and the HTTP server, waiting up
// to ShutdownTimeout for background work to finish.
func (b *Bot) shutdown(runtimeWG *sync.WaitGroup) error {
	b.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	var errs []error

	if b.discord != nil && b.discord.session != nil {
		for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
			removeHandler()
		}
		if err := b.discord.session.Close(); err != nil {
			b.logger.Error("error closing discord session", tint.Err(err))
			errs = append(errs, err)
		}
	}

	if b.api != nil && b.api.httpServer != nil {
		if err := b.api.httpServer.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("error shutting down api server", tint.Err(err))
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		runtimeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		b.logger.Warn("shutdown timed out waiting for background work")
	}
	return errors.Join(errs...)
}
