package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/flashbots/go-utils/cli"
	"github.com/joho/godotenv"
	"github.com/kestrel-mev/kestrel/blocks"
	"github.com/kestrel-mev/kestrel/engine"
	"github.com/kestrel-mev/kestrel/journal"
	"github.com/kestrel-mev/kestrel/orderflow"
	"github.com/kestrel-mev/kestrel/relay"
	"github.com/kestrel-mev/kestrel/store"
	"github.com/kestrel-mev/kestrel/uniarb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev" // is set during build process

	// Default values
	defaultDebug          = os.Getenv("DEBUG") == "1"
	defaultLogProd        = os.Getenv("LOG_PROD") == "1"
	defaultLogService     = os.Getenv("LOG_SERVICE")
	defaultMetricsPort    = cli.GetEnv("METRICS_PORT", "8088")
	defaultEthEndpoint    = cli.GetEnv("ETH_ENDPOINT", "ws://127.0.0.1:8546")
	defaultOrderflowSSE   = cli.GetEnv("ORDERFLOW_SSE", "https://mev-share.flashbots.net")
	defaultPoolsCSV       = cli.GetEnv("POOLS_CSV", "pools.csv")
	defaultRelaysConfig   = cli.GetEnv("RELAYS_CONFIG", "")
	defaultRedisEndpoint  = cli.GetEnv("REDIS_ENDPOINT", "")
	defaultRedisChannel   = cli.GetEnv("REDIS_CHANNEL_NAME", "submissions")
	defaultPostgresDSN    = cli.GetEnv("POSTGRES_DSN", "")
	defaultPrivateKey     = os.Getenv("PRIVATE_KEY")
	defaultRelaySignerKey = os.Getenv("RELAY_SIGNER_KEY")
	defaultArbContract    = cli.GetEnv("ARB_CONTRACT_ADDRESS", "")

	// Flags
	debugPtr          = flag.Bool("debug", defaultDebug, "print debug output")
	logProdPtr        = flag.Bool("log-prod", defaultLogProd, "log in production mode (json)")
	logServicePtr     = flag.String("log-service", defaultLogService, "'service' tag to logs")
	metricsPortPtr    = flag.String("metrics-port", defaultMetricsPort, "metrics port to listen on")
	ethPtr            = flag.String("eth", defaultEthEndpoint, "eth node websocket endpoint")
	orderflowPtr      = flag.String("orderflow-sse", defaultOrderflowSSE, "mev-share SSE endpoint")
	poolsPtr          = flag.String("pools-csv", defaultPoolsCSV, "pool reference table csv file")
	relaysPtr         = flag.String("relays-config", defaultRelaysConfig, "relay registry yaml file (built-in list when empty)")
	redisPtr          = flag.String("redis", defaultRedisEndpoint, "redis url for the submission journal (disabled when empty)")
	redisChannelPtr   = flag.String("redis-channel", defaultRedisChannel, "redis pub/sub channel for the journal")
	postgresDSNPtr    = flag.String("postgres-dsn", defaultPostgresDSN, "postgres dsn for submission history (disabled when empty)")
	privateKeyPtr     = flag.String("private-key", defaultPrivateKey, "private key for arb transactions")
	relaySignerKeyPtr = flag.String("relay-signer-key", defaultRelaySignerKey, "private key signing relay requests")
	arbContractPtr    = flag.String("arb-contract", defaultArbContract, "address of the arb contract")
	abortOnExitPtr    = flag.Bool("abort-on-task-exit", false, "stop the whole process when any task fails instead of degrading")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	if *logProdPtr {
		atom := zap.NewAtomicLevel()
		if *debugPtr {
			atom.SetLevel(zap.DebugLevel)
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
	}
	defer func() { _ = logger.Sync() }()
	if *logServicePtr != "" {
		logger = logger.With(zap.String("service", *logServicePtr))
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	logger.Info("Starting searcher", zap.String("version", version))

	txKey, err := crypto.HexToECDSA(strip0x(*privateKeyPtr))
	if err != nil {
		logger.Fatal("Failed to parse private key", zap.Error(err))
	}
	relayKey, err := crypto.HexToECDSA(strip0x(*relaySignerKeyPtr))
	if err != nil {
		logger.Fatal("Failed to parse relay signer key", zap.Error(err))
	}
	if !common.IsHexAddress(*arbContractPtr) {
		logger.Fatal("Invalid arb contract address", zap.String("address", *arbContractPtr))
	}
	arbContract := common.HexToAddress(*arbContractPtr)

	ethBackend, err := ethclient.Dial(*ethPtr)
	if err != nil {
		logger.Fatal("Failed to connect to eth endpoint", zap.Error(err))
	}
	chainID, err := ethBackend.ChainID(ctx)
	if err != nil {
		logger.Fatal("Failed to get chain id", zap.Error(err))
	}

	registry := relay.DefaultRegistry()
	if *relaysPtr != "" {
		registry, err = relay.LoadRegistry(*relaysPtr)
		if err != nil {
			logger.Fatal("Failed to load relay registry", zap.Error(err))
		}
	}

	arbBuilder, err := uniarb.NewFlashLoanArbBuilder(arbContract)
	if err != nil {
		logger.Fatal("Failed to build arb call builder", zap.Error(err))
	}

	strategy := uniarb.NewStrategy(
		logger,
		uniarb.NewCachingNodeClient(ethBackend),
		arbBuilder,
		uniarb.NewPrivateKeySigner(txKey, chainID),
		*poolsPtr,
		uniarb.DefaultBundleDefaults(),
	)

	eng := engine.New[uniarb.Event, uniarb.Action](logger, engine.Config{
		AbortOnTaskExit: *abortOnExitPtr,
	})

	must(logger, eng.AddCollector(engine.NewCollectorMap[orderflow.Event, uniarb.Event](
		orderflow.NewCollector(logger, *orderflowPtr), uniarb.OrderFlowEvent)))
	must(logger, eng.AddCollector(engine.NewCollectorMap[*types.Header, uniarb.Event](
		blocks.NewCollector(logger, ethBackend), uniarb.NewBlockEvent)))
	must(logger, eng.AddStrategy(strategy))

	for _, executor := range relay.BuildExecutors(registry, relayKey, logger) {
		must(logger, eng.AddExecutor(engine.NewExecutorMap[uniarb.Action](executor, uniarb.SubmitBundlesPayload)))
	}

	if *redisPtr != "" {
		redisOpts, err := redis.ParseURL(*redisPtr)
		if err != nil {
			logger.Fatal("Failed to parse redis url", zap.Error(err))
		}
		publisher := journal.NewPublisher(logger, redis.NewClient(redisOpts), *redisChannelPtr)
		must(logger, eng.AddExecutor(engine.NewExecutorMap[uniarb.Action](publisher, uniarb.SubmitBundlesPayload)))
	}

	if *postgresDSNPtr != "" {
		dbBackend, err := store.NewDBBackend(*postgresDSNPtr)
		if err != nil {
			logger.Fatal("Failed to create postgres backend", zap.Error(err))
		}
		defer func() { _ = dbBackend.Close() }()
		must(logger, eng.AddExecutor(engine.NewExecutorMap[uniarb.Action](store.NewExecutor(logger, dbBackend), uniarb.SubmitBundlesPayload)))
	}

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%s", *metricsPortPtr),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           metricsMux,
		}
		if err := metricsServer.ListenAndServe(); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		notifier := make(chan os.Signal, 1)
		signal.Notify(notifier, os.Interrupt, syscall.SIGTERM)
		<-notifier
		logger.Info("Shutting down...")
		ctxCancel()
	}()

	taskSet, err := eng.Run(ctx)
	if err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}

	for _, result := range taskSet.Wait() {
		if result.Err != nil && ctx.Err() == nil {
			logger.Error("Task ended",
				zap.String("kind", result.Kind.String()), zap.String("task", result.Name), zap.Error(result.Err))
		}
	}
}

func strip0x(key string) string {
	if len(key) >= 2 && key[0:2] == "0x" {
		return key[2:]
	}
	return key
}

func must(logger *zap.Logger, err error) {
	if err != nil {
		logger.Fatal("Failed to register engine component", zap.Error(err))
	}
}
