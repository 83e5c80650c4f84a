package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wabimail/wabimail-core/internal/accounts"
	"github.com/wabimail/wabimail-core/internal/config"
	"github.com/wabimail/wabimail-core/internal/mailcache"
	"github.com/wabimail/wabimail-core/internal/storage"
	"github.com/wabimail/wabimail-core/internal/tokens"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	showInfo    = flag.Bool("info", false, "Show storage information")
	listAcct    = flag.Bool("accounts", false, "List configured accounts")
	cacheStats  = flag.Bool("stats", false, "Show mail cache statistics")
	backupPath  = flag.String("backup", "", "Back up the database to the given path")
	tokenBackup = flag.String("backup-tokens", "", "Back up stored tokens to the given path")
	cleanup     = flag.Bool("cleanup", false, "Remove cached mail older than the retention period")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("wabistore version %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Open secure storage
	st, err := storage.Open(cfg.StorageDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	defer st.Close()

	switch {
	case *showInfo:
		info, err := st.GetStorageInfo()
		if err != nil {
			logger.WithError(err).Fatal("Failed to read storage info")
		}
		printJSON(info)

	case *listAcct:
		store := accounts.NewStore(st, logger)
		summaries, err := store.ListAccounts()
		if err != nil {
			logger.WithError(err).Fatal("Failed to list accounts")
		}
		printJSON(summaries)

	case *cacheStats:
		cache, err := mailcache.NewStore(st, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open mail cache")
		}
		stats, err := cache.GetGlobalCacheStats()
		if err != nil {
			logger.WithError(err).Fatal("Failed to compute cache statistics")
		}
		printJSON(stats)

	case *backupPath != "":
		if err := st.BackupData(*backupPath); err != nil {
			logger.WithError(err).Fatal("Backup failed")
		}
		fmt.Printf("Database backed up to %s\n", *backupPath)

	case *tokenBackup != "":
		tokenStore, err := tokens.NewFileStore(cfg.StorageDir, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open token store")
		}
		if err := tokenStore.BackupTokens(*tokenBackup); err != nil {
			logger.WithError(err).Fatal("Token backup failed")
		}
		fmt.Printf("Tokens backed up to %s\n", *tokenBackup)

	case *cleanup:
		cache, err := mailcache.NewStore(st, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open mail cache")
		}
		deleted, err := cache.CleanupOldCache(cfg.CacheRetentionDays)
		if err != nil {
			logger.WithError(err).Fatal("Cleanup failed")
		}
		fmt.Printf("Removed %d cached messages older than %d days\n", deleted, cfg.CacheRetentionDays)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
