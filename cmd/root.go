package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/AzielCF/az-flow/botengine"
	"github.com/AzielCF/az-flow/botengine/providers"
	coreconfig "github.com/AzielCF/az-flow/core/config"
	coreDB "github.com/AzielCF/az-flow/core/database"
	domainBot "github.com/AzielCF/az-flow/domains/bot"
	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainSend "github.com/AzielCF/az-flow/domains/send"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/AzielCF/az-flow/infrastructure/gateway"
	infraValkey "github.com/AzielCF/az-flow/infrastructure/valkey"
	"github.com/AzielCF/az-flow/pkg/msgworker"
	"github.com/AzielCF/az-flow/pkg/utils"
	"github.com/AzielCF/az-flow/repository"
	uiWebsocket "github.com/AzielCF/az-flow/ui/websocket"
	"github.com/AzielCF/az-flow/usecase"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Infrastructure
	vkClient    *infraValkey.Client
	messagePool *msgworker.Pool
	sender      domainSend.ISender

	// Usecase
	tenantUsecase   domainTenant.ITenantUsecase
	triggerUsecase  domainTrigger.ITriggerUsecase
	ingestUsecase   domainEvent.IIngestUsecase
	campaignUsecase domainCampaign.ICampaignUsecase

	fanoutHub *uiWebsocket.Hub

	flagPort  string
	flagDebug bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-flow",
	Short: "Messaging automation platform over a gateway HTTP API",
	Long: `az-flow ingests gateway webhook events, runs trigger-based automations
with AI replies and dispatches rate-limited bulk campaigns.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)

	cobra.OnInitialize(initApp)
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[APP] Failed to load configuration: %v", err)
	}
	if flagPort != "" {
		cfg.App.Port = flagPort
	}
	if flagDebug {
		cfg.App.Debug = true
	}
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.CreateFolder(cfg.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[APP] Database init failed: %v", err)
	}

	// Repositories
	tenantRepo := repository.NewTenantGormRepository(db)
	messageRepo := repository.NewMessageGormRepository(db)
	contactRepo := repository.NewContactGormRepository(db)
	triggerRepo := repository.NewTriggerGormRepository(db)
	campaignRepo := repository.NewCampaignGormRepository(db)
	for _, init := range []func(context.Context) error{
		tenantRepo.Init, messageRepo.Init, contactRepo.Init, triggerRepo.Init, campaignRepo.Init,
	} {
		if err := init(ctx); err != nil {
			logrus.Fatalf("[APP] Schema migration failed: %v", err)
		}
	}

	// Valkey es opcional: sin él la supresión de eco cae al lookup en DB y
	// el broadcast queda limitado a este servidor.
	if cfg.Database.ValkeyEnabled {
		vkClient, err = infraValkey.NewClient(infraValkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Warnf("[APP] Valkey unavailable, continuing without it: %v", err)
			vkClient = nil
		}
	}

	fanoutHub = uiWebsocket.NewHub()

	sender = gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
	})

	responder := buildResponder(cfg)

	triggerUsecase = usecase.NewTriggerService(triggerRepo)
	tenantUsecase = usecase.NewTenantService(tenantRepo)

	processor := usecase.NewProcessorService(
		tenantRepo, messageRepo, contactRepo,
		triggerUsecase, responder, sender, vkClient, fanoutHub,
	)
	messagePool = msgworker.NewPool(msgworker.Options{
		NumWorkers:     cfg.Worker.Size,
		QueueSize:      cfg.Worker.QueueSize,
		RatePerSecond:  cfg.Worker.RatePerSecond,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: time.Duration(cfg.Worker.RetryBaseDelay) * time.Millisecond,
	}, processor.Processor())

	backfill := usecase.NewBackfillService(messageRepo, fanoutHub, cfg.Backfill.BatchSize)
	ingestUsecase = usecase.NewIngestService(tenantRepo, messageRepo, contactRepo, backfill, messagePool, fanoutHub)
	campaignUsecase = usecase.NewCampaignService(
		campaignRepo, contactRepo, tenantRepo, sender, fanoutHub,
		cfg.Campaign.MinDelayMs, cfg.Campaign.MaxDelayMs,
	)
}

// buildResponder wires the configured AI provider. Without an API key the
// platform runs with triggers only.
func buildResponder(cfg *coreconfig.Config) domainBot.IResponder {
	if cfg.AI.APIKey == "" {
		logrus.Info("[APP] No AI API key configured, automated replies disabled")
		return nil
	}

	available := map[string]botengine.AIProvider{
		"gemini": providers.NewGeminiProvider(cfg.AI.APIKey, cfg.AI.Model),
		"openai": providers.NewOpenAIProvider(cfg.AI.APIKey, cfg.AI.Model),
	}
	engine, err := botengine.New(botengine.Options{
		Provider:           cfg.AI.Provider,
		GlobalSystemPrompt: cfg.AI.GlobalSystemPrompt,
	}, available)
	if err != nil {
		logrus.Warnf("[APP] Bot engine disabled: %v", err)
		return nil
	}
	return engine
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of the background subsystems.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if messagePool != nil {
		messagePool.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}

func basicAuthAccounts(pairs []string) map[string]string {
	account := make(map[string]string)
	for _, basicAuth := range pairs {
		ba := strings.Split(basicAuth, ":")
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please use the following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}
	return account
}
