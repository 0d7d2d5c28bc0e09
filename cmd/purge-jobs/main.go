// purge-jobs marks plagiarism checks that never received a payment as failed
// across every job list in the store. Checks whose payment is already recorded
// are left for the next reconcile.
//
// Usage:
//
//	go run ./cmd/purge-jobs -max-age 72h
//	go run ./cmd/purge-jobs -store postgres -dry-run
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/config"
	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/payments"
	"github.com/anot-platform/anot-client/internal/plagiarism"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	var (
		store  = flag.String("store", string(cfg.Store), "token store: file or postgres")
		path   = flag.String("store-path", cfg.StorePath, "file store location")
		maxAge = flag.Duration("max-age", cfg.JobMaxPendingAge, "pending checks older than this are marked failed")
		dryRun = flag.Bool("dry-run", false, "list the job lists without changing them")
	)
	flag.Parse()

	if *store == string(config.StoreMemory) {
		fmt.Fprintln(os.Stderr, "purge-jobs needs a persistent store (file or postgres)")
		flag.Usage()
		os.Exit(2)
	}
	if *maxAge <= 0 {
		fmt.Fprintln(os.Stderr, "-max-age must be positive")
		os.Exit(2)
	}

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	h, err := tokenstore.Open(tokenstore.Spec{
		Kind:        *store,
		Path:        *path,
		Passphrase:  cfg.StoreKey,
		DatabaseURL: cfg.DatabaseURL,
	}, l)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	owners, err := h.HistoryOwners()
	if err != nil {
		log.Fatal(err)
	}

	q := plagiarism.NewQueue(h, l)
	ledger := payments.NewLedger(h, l)
	now := time.Now()
	total := 0
	for _, owner := range owners {
		if *dryRun {
			pending := 0
			for _, j := range q.List(owner) {
				if j.Pending() && now.Sub(j.CreatedAt) > *maxAge && !ledger.Contains(j.MerchantTransactionID) {
					pending++
				}
			}
			fmt.Printf("%s: %d expired\n", owner, pending)
			total += pending
			continue
		}
		n, err := q.Expire(owner, *maxAge, now, ledger.Contains)
		if err != nil {
			l.Error("expire failed", zap.String("owner", owner), zap.Error(err))
			continue
		}
		total += n
	}

	l.Info("purge finished",
		zap.Int("owners", len(owners)),
		zap.Int("expired", total),
		zap.Bool("dry_run", *dryRun),
	)
}
