package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/tipdist/admin/internal/admin"
	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/ledger/pgstore"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/program/pkg/tippayment"
	"github.com/malbeclabs/tipdist/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration (ledger account store)
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "tipdist", "PostgreSQL database (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "tipdist", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Chain
	rpcURLFlag := flag.String("solana-rpc-url", solanarpc.MainNetBeta_RPC, "Solana RPC URL for the epoch clock (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", tipdist.DefaultProgramID.String(), "tip distribution program id")
	tipPaymentProgramIDFlag := flag.String("tip-payment-program-id", tippayment.DefaultProgramID.String(), "tip payment program id")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run ledger account store migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last ledger account store migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show ledger account store migration status")
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse/indexer database migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse/indexer database migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all indexer tables (dim_*, fact_*)")
	generateTreesFlag := flag.Bool("generate-trees", false, "Generate merkle trees from a stake meta snapshot")
	verifyTreesFlag := flag.Bool("verify-trees", false, "Verify every root and proof of a generated tree collection")
	uploadTreesS3Flag := flag.Bool("upload-trees-s3", false, "Upload a generated tree collection to S3")
	initConfigFlag := flag.Bool("init-config", false, "Initialize the tip distribution program config")
	publishRootsFlag := flag.Bool("publish-roots", false, "Upload the merkle roots of a generated tree collection")
	vaultInitFlag := flag.Bool("vault-init", false, "Initialize the tip payment vault")

	// Command options
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")
	stakeMetaFlag := flag.String("stake-meta", "", "stake meta collection JSON for --generate-trees")
	treesFlag := flag.String("trees", "merkle-trees.json", "generated merkle tree collection JSON")
	concurrencyFlag := flag.Int("concurrency", 0, "tree generation concurrency (0 = GOMAXPROCS)")
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket for --upload-trees-s3 (or set S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "", "S3 key prefix for --upload-trees-s3")
	s3RegionFlag := flag.String("s3-region", "", "S3 region (or set AWS_REGION env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "S3-compatible endpoint URL (or set S3_ENDPOINT env var)")
	authorityFlag := flag.String("authority", "", "config authority, also the upload authority for --publish-roots")
	expiredFundsFlag := flag.String("expired-funds-account", "", "account receiving unclaimed funds of expired distribution accounts")
	payerFlag := flag.String("payer", "", "account funding created accounts")
	numEpochsValidFlag := flag.Uint64("num-epochs-valid", 10, "epochs a distribution account stays claimable")
	maxCommissionFlag := flag.Uint16("max-validator-commission-bps", 10_000, "maximum validator commission in basis points")
	goLiveEpochFlag := flag.Int64("go-live-epoch", -1, "epoch before which claims and closes are gated (-1 = none)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// Override flags with environment variables if set
	for env, dst := range map[string]*string{
		"POSTGRES_HOST":       pgHostFlag,
		"POSTGRES_PORT":       pgPortFlag,
		"POSTGRES_DB":         pgDatabaseFlag,
		"POSTGRES_USER":       pgUsernameFlag,
		"POSTGRES_PASSWORD":   pgPasswordFlag,
		"POSTGRES_SSLMODE":    pgSSLModeFlag,
		"CLICKHOUSE_ADDR_TCP": clickhouseAddrFlag,
		"CLICKHOUSE_DATABASE": clickhouseDatabaseFlag,
		"CLICKHOUSE_USERNAME": clickhouseUsernameFlag,
		"CLICKHOUSE_PASSWORD": clickhousePasswordFlag,
		"SOLANA_RPC_URL":      rpcURLFlag,
		"S3_BUCKET":           s3BucketFlag,
		"S3_ENDPOINT":         s3EndpointFlag,
		"AWS_REGION":          s3RegionFlag,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgCfg := pgstore.Config{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}
	chCfg := clickhouse.ClientConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	// Execute commands
	switch {
	case *pgMigrateFlag:
		return admin.PgMigrateUp(log, pgCfg)

	case *pgMigrateDownFlag:
		return admin.PgMigrateDown(log, pgCfg)

	case *pgMigrateStatusFlag:
		return admin.PgMigrateStatus(log, pgCfg)

	case *clickhouseMigrateFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.Up(ctx, log, chCfg)

	case *clickhouseMigrateStatusFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg)

	case *resetDBFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		ch, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer ch.Close()
		return admin.ResetDB(ctx, log, ch, *clickhouseDatabaseFlag, admin.ResetDBConfig{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			Confirm:     os.Stdin,
			Out:         os.Stdout,
		})

	case *generateTreesFlag:
		if *stakeMetaFlag == "" {
			return fmt.Errorf("--stake-meta is required for --generate-trees")
		}
		_, err := admin.GenerateTrees(ctx, log, admin.GenerateTreesConfig{
			StakeMetaPath: *stakeMetaFlag,
			OutputPath:    *treesFlag,
			Concurrency:   *concurrencyFlag,
		})
		return err

	case *verifyTreesFlag:
		return admin.VerifyTrees(log, *treesFlag)

	case *uploadTreesS3Flag:
		if *s3BucketFlag == "" {
			return fmt.Errorf("--s3-bucket is required for --upload-trees-s3")
		}
		key, err := admin.UploadTrees(ctx, log, admin.UploadTreesConfig{
			Path:     *treesFlag,
			Bucket:   *s3BucketFlag,
			Prefix:   *s3PrefixFlag,
			Region:   *s3RegionFlag,
			Endpoint: *s3EndpointFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("uploaded s3://%s/%s\n", *s3BucketFlag, key)
		return nil

	case *initConfigFlag:
		authority, err := parseKey("authority", *authorityFlag)
		if err != nil {
			return err
		}
		expiredFunds, err := parseKey("expired-funds-account", *expiredFundsFlag)
		if err != nil {
			return err
		}
		payer, err := parseKey("payer", *payerFlag)
		if err != nil {
			return err
		}
		var goLive *uint64
		if *goLiveEpochFlag >= 0 {
			epoch := uint64(*goLiveEpochFlag)
			goLive = &epoch
		}
		return withLedger(ctx, log, pgCfg, func(store ledger.Store) error {
			proc, err := newTipDistProcessor(log, store, *programIDFlag)
			if err != nil {
				return err
			}
			return admin.InitConfig(ctx, log, proc, ledger.Clock{}, admin.InitConfigConfig{
				Authority:                 authority,
				ExpiredFundsAccount:       expiredFunds,
				Payer:                     payer,
				NumEpochsValid:            *numEpochsValidFlag,
				MaxValidatorCommissionBps: *maxCommissionFlag,
				GoLiveEpoch:               goLive,
			})
		})

	case *publishRootsFlag:
		authority, err := parseKey("authority", *authorityFlag)
		if err != nil {
			return err
		}
		clock, err := admin.ChainClock(ctx, solanarpc.New(*rpcURLFlag))
		if err != nil {
			return err
		}
		return withLedger(ctx, log, pgCfg, func(store ledger.Store) error {
			proc, err := newTipDistProcessor(log, store, *programIDFlag)
			if err != nil {
				return err
			}
			_, err = admin.PublishRoots(ctx, log, proc, clock, *treesFlag, authority)
			return err
		})

	case *vaultInitFlag:
		payer, err := parseKey("payer", *payerFlag)
		if err != nil {
			return err
		}
		programID, err := solana.PublicKeyFromBase58(*tipPaymentProgramIDFlag)
		if err != nil {
			return fmt.Errorf("invalid --tip-payment-program-id: %w", err)
		}
		return withLedger(ctx, log, pgCfg, func(store ledger.Store) error {
			proc, err := tippayment.NewProcessor(tippayment.ProcessorConfig{Logger: log, Store: store, ProgramID: programID})
			if err != nil {
				return err
			}
			return admin.VaultInit(ctx, log, proc, payer)
		})
	}

	flag.Usage()
	return nil
}

func withLedger(ctx context.Context, log *slog.Logger, cfg pgstore.Config, fn func(ledger.Store) error) error {
	pool, err := pgstore.NewPool(ctx, log, &cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pgstore.New(log, pool))
}

func newTipDistProcessor(log *slog.Logger, store ledger.Store, programID string) (*tipdist.Processor, error) {
	id, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid --program-id: %w", err)
	}
	return tipdist.NewProcessor(tipdist.ProcessorConfig{Logger: log, Store: store, ProgramID: id})
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return key, nil
}
