package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/archive"
	"github.com/dvloznov/fundnote-ledger/internal/auth"
	"github.com/dvloznov/fundnote-ledger/internal/backend"
	"github.com/dvloznov/fundnote-ledger/internal/config"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-account":
		runCreateAccount(log)
	case "account":
		runAccount(log)
	case "accounts":
		runAccounts(log)
	case "list-user":
		runListUser(log)
	case "purge":
		runPurge(log)
	case "token":
		runToken(log)
	case "archive-show":
		runArchiveShow(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("FundNote Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  create-account  Provision an account for a user")
	fmt.Println("  account         Show an account and its balance")
	fmt.Println("  accounts        List a user's accounts")
	fmt.Println("  list-user       List every transaction of a user")
	fmt.Println("  purge           Archive and delete every transaction of a user")
	fmt.Println("  token           Issue a bearer token")
	fmt.Println("  archive-show    Print the records of a purge export")
	fmt.Println("  help            Show this help message")
	fmt.Println("\nStores are selected with the same LEDGER_* environment variables as the API server.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// openStores opens the configured stores. The caller must close them.
func openStores(ctx context.Context, log zerolog.Logger) *backend.Stores {
	cfg, err := config.LoadStore("cli", nil, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	return stores
}

func openEngine(ctx context.Context, log zerolog.Logger, bucket string) (*ledger.Engine, func()) {
	stores := openStores(ctx, log)
	opts := ledger.Options{Logger: log}
	closeAll := func() { _ = stores.Close() }

	if bucket != "" {
		gcs, err := archive.NewGCSStorage(ctx)
		if err != nil {
			closeAll()
			log.Fatal().Err(err).Msg("Failed to create archive storage")
		}
		opts.Archiver = archive.New(gcs, bucket, nil)
		closeAll = func() {
			_ = gcs.Close()
			_ = stores.Close()
		}
	}
	return ledger.New(stores.Accounts, stores.Transactions, opts), closeAll
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runCreateAccount(log zerolog.Logger) {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	accountID := fs.String("id", "", "Account ID")
	userID := fs.String("user", "", "Owner user ID")
	name := fs.String("name", "", "Display name")
	opening := fs.String("balance", "0", "Opening balance")
	fs.Parse(os.Args[2:])

	if *accountID == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli create-account -id ID -user USER [-name NAME] [-balance AMOUNT]")
	}
	balance, err := decimal.NewFromString(*opening)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid opening balance")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	stores := openStores(ctx, log)
	defer stores.Close()

	acc := &domain.Account{AccountID: *accountID, UserID: *userID, Name: *name, Balance: balance}
	if err := stores.Accounts.CreateAccount(ctx, acc); err != nil {
		log.Fatal().Err(err).Msg("Failed to create account")
	}

	fmt.Printf("Created account %s for %s\n", *accountID, *userID)
}

func runAccount(log zerolog.Logger) {
	fs := flag.NewFlagSet("account", flag.ExitOnError)
	accountID := fs.String("id", "", "Account ID")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: -id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	stores := openStores(ctx, log)
	defer stores.Close()

	acc, err := stores.Accounts.GetAccount(ctx, *accountID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get account")
	}
	printJSON(acc)
}

func runAccounts(log zerolog.Logger) {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	userID := fs.String("user", "", "Owner user ID")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	stores := openStores(ctx, log)
	defer stores.Close()

	lister, ok := stores.Accounts.(backend.AccountLister)
	if !ok {
		log.Fatal().Str("backend", stores.AccountsName).Msg("Account backend cannot list accounts")
	}
	accounts, err := lister.ListAccounts(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list accounts")
	}

	fmt.Printf("\n=== Accounts of %s (%d) ===\n", *userID, len(accounts))
	for _, acc := range accounts {
		fmt.Printf("%-24s %-20s %s\n", acc.AccountID, acc.Name, acc.Balance.StringFixed(2))
	}
}

func runListUser(log zerolog.Logger) {
	fs := flag.NewFlagSet("list-user", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	engine, closeAll := openEngine(ctx, log, "")
	defer closeAll()

	txs, err := engine.ListByUser(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for i, t := range txs {
		fmt.Printf("\n%d. %s %s\n", i+1, t.Type, t.Amount.StringFixed(2))
		fmt.Printf("   ID:       %s\n", t.TransactionID)
		fmt.Printf("   Date:     %s\n", t.DateCreated.Format(time.RFC3339))
		if t.FromAccountID != "" {
			fmt.Printf("   From:     %s\n", t.FromAccountID)
		}
		if t.ToAccountID != "" {
			fmt.Printf("   To:       %s\n", t.ToAccountID)
		}
		if t.Category != "" {
			fmt.Printf("   Category: %s\n", t.Category)
		}
	}
	fmt.Println()
}

func runPurge(log zerolog.Logger) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	userID := fs.String("user", "", "User whose transactions are deleted")
	bucket := fs.String("archive-bucket", os.Getenv("LEDGER_ARCHIVE_BUCKET"), "GCS bucket for the export (or set LEDGER_ARCHIVE_BUCKET env)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: -user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	engine, closeAll := openEngine(ctx, log, *bucket)
	defer closeAll()

	res, err := engine.PurgeMine(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Purge failed")
	}
	printJSON(res)
}

func runToken(log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	role := fs.String("role", "", "Role claim, e.g. admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	secret := fs.String("jwt-secret", os.Getenv("LEDGER_JWT_SECRET"), "HS256 secret (or set LEDGER_JWT_SECRET env)")
	fs.Parse(os.Args[2:])

	verifier, err := auth.NewVerifier(*secret)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid secret")
	}
	token, err := verifier.Issue(*userID, *role, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}

func runArchiveShow(log zerolog.Logger) {
	fs := flag.NewFlagSet("archive-show", flag.ExitOnError)
	uri := fs.String("uri", "", "gs:// URI of the export")
	fs.Parse(os.Args[2:])

	bucket, _, err := archive.ParseURI(*uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: -uri is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	gcs, err := archive.NewGCSStorage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create archive storage")
	}
	defer gcs.Close()

	txs, err := archive.New(gcs, bucket, nil).Fetch(ctx, *uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read export")
	}
	printJSON(txs)
}
