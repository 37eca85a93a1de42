package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/tipdist/cranker/pkg/cranker"
	"github.com/malbeclabs/tipdist/cranker/pkg/server"
	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
	"github.com/malbeclabs/tipdist/indexer/pkg/indexer"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/ledger/pgstore"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/tools/pkg/treegen"
	"github.com/malbeclabs/tipdist/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr = "0.0.0.0:8080"
	defaultRPCURL     = solanarpc.MainNetBeta_RPC
)

func main() {
	if err := run(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	jsonLogsFlag := flag.Bool("json-logs", false, "emit JSON logs instead of console output")
	envFileFlag := flag.String("env-file", ".env", "optional dotenv file loaded before reading env vars")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address for health, version and metrics (or set LISTEN_ADDR env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for the HTTP server to drain")

	// Chain
	rpcURLFlag := flag.String("solana-rpc-url", defaultRPCURL, "Solana RPC URL for the epoch clock (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", tipdist.DefaultProgramID.String(), "tip distribution program id (or set TIP_DISTRIBUTION_PROGRAM_ID env var)")

	// Cranker
	crankIntervalFlag := flag.Duration("crank-interval", time.Minute, "interval between crank runs")
	rateLimitFlag := flag.Float64("rate-limit", 20, "maximum instructions submitted per second")
	claimsFileFlag := flag.String("claims-file", "", "generated merkle tree collection to claim once at startup")
	claimPayerFlag := flag.String("claim-payer", "", "account funding claim receipts (or set CLAIM_PAYER env var)")

	// Ledger store
	storeFlag := flag.String("store", "postgres", "ledger account store: postgres or memory")
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "tipdist", "PostgreSQL database (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "tipdist", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")

	// Indexer
	indexerEnableFlag := flag.Bool("indexer-enable", false, "mirror distribution accounts and claims into ClickHouse")
	indexerIntervalFlag := flag.Duration("indexer-refresh-interval", 30*time.Second, "interval between indexer refreshes")
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "run ClickHouse migrations before the indexer starts")

	flag.Parse()

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFileFlag, err)
	}

	var log *slog.Logger
	if *jsonLogsFlag {
		log = logger.NewJSON(os.Stdout, *verboseFlag)
	} else {
		log = logger.New(*verboseFlag)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Release:     version,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized")
	}

	overrideString(listenAddrFlag, "LISTEN_ADDR")
	overrideString(rpcURLFlag, "SOLANA_RPC_URL")
	overrideString(programIDFlag, "TIP_DISTRIBUTION_PROGRAM_ID")
	overrideString(claimPayerFlag, "CLAIM_PAYER")
	overrideString(pgHostFlag, "POSTGRES_HOST")
	overrideString(pgPortFlag, "POSTGRES_PORT")
	overrideString(pgDatabaseFlag, "POSTGRES_DB")
	overrideString(pgUsernameFlag, "POSTGRES_USER")
	overrideString(pgPasswordFlag, "POSTGRES_PASSWORD")
	overrideString(pgSSLModeFlag, "POSTGRES_SSLMODE")
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if v := os.Getenv("CRANK_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CRANK_RATE_LIMIT: %w", err)
		}
		*rateLimitFlag = limit
	}

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store ledger.Store
	switch *storeFlag {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, log, &pgstore.Config{
			Host:     *pgHostFlag,
			Port:     *pgPortFlag,
			Database: *pgDatabaseFlag,
			Username: *pgUsernameFlag,
			Password: *pgPasswordFlag,
			SSLMode:  *pgSSLModeFlag,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.New(log, pool)
	case "memory":
		log.Warn("using in-memory ledger store, state is lost on exit")
		store = ledger.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store %q", *storeFlag)
	}

	proc, err := tipdist.NewProcessor(tipdist.ProcessorConfig{
		Logger:    log,
		Store:     store,
		ProgramID: programID,
	})
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	rpc := solanarpc.New(*rpcURLFlag)
	crank, err := cranker.New(cranker.Config{
		Logger:    log,
		RPC:       rpc,
		Program:   proc,
		Interval:  *crankIntervalFlag,
		RateLimit: rate.Limit(*rateLimitFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create cranker: %w", err)
	}

	components := []server.Component{{Name: "cranker", Ready: crank.Ready}}

	var idx *indexer.Indexer
	if *indexerEnableFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --indexer-enable")
		}
		chCfg := clickhouse.ClientConfig{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		}
		ch, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer ch.Close()

		idx, err = indexer.New(ctx, indexer.Config{
			Logger:           log,
			ClickHouse:       ch,
			Source:           proc,
			RefreshInterval:  *indexerIntervalFlag,
			MigrationsEnable: *clickhouseMigrateFlag,
			MigrationsConfig: chCfg,
		})
		if err != nil {
			return fmt.Errorf("failed to create indexer: %w", err)
		}
		components = append(components, server.Component{Name: "indexer", Ready: idx.Ready})
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo:     server.VersionInfo{Version: version, Commit: commit, Date: date},
		Components:      components,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("cranker: starting", "version", version, "commit", commit, "program_id", programID, "store", *storeFlag, "indexer", *indexerEnableFlag)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	crank.Start(ctx)
	if idx != nil {
		idx.Start(ctx)
	}

	if *claimsFileFlag != "" {
		g.Go(func() error {
			return runClaims(ctx, log, rpc, proc, *claimsFileFlag, *claimPayerFlag, rate.Limit(*rateLimitFlag))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("cranker: stopped")
	return nil
}

func runClaims(ctx context.Context, log *slog.Logger, rpc cranker.EpochRPC, program cranker.Program, path, payer string, limit rate.Limit) error {
	payerKey, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return fmt.Errorf("--claim-payer is required with --claims-file: %w", err)
	}
	coll, err := treegen.ReadGeneratedMerkleTreeCollection(path)
	if err != nil {
		return err
	}
	if err := treegen.Verify(coll); err != nil {
		return fmt.Errorf("refusing to claim from %s: %w", path, err)
	}
	claimer, err := cranker.NewClaimer(cranker.ClaimerConfig{
		Logger:    log,
		RPC:       rpc,
		Program:   program,
		Payer:     payerKey,
		RateLimit: limit,
	})
	if err != nil {
		return err
	}
	res, err := claimer.ClaimAll(ctx, coll)
	if err != nil {
		return fmt.Errorf("failed to claim from %s: %w", path, err)
	}
	if res.Failed > 0 {
		sentry.CaptureMessage(fmt.Sprintf("claimer: %d claims failed for epoch %d", res.Failed, coll.Epoch))
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
