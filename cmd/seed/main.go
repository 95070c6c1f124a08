// Seed tool for loading demo users into a Kite database.
//
// Usage:
//   go run cmd/seed/main.go -users 500 -db ./kite.db
//
// This tool:
//  1. Generates users with realistic tier and notification spreads
//  2. Writes them through the repository (schema is migrated on open)
//  3. Prints the account references so batches can target them
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/repository"
)

// Tier spread observed in production-like datasets: most accounts sit
// on the default, a cautious minority opts into high.
var tierWeights = []struct {
	tier          domain.RiskTier
	weight        float64
	notifications float64
}{
	{domain.TierHigh, 0.30, 0.90},
	{domain.TierMedium, 0.50, 0.70},
	{domain.TierLow, 0.20, 0.40},
}

func main() {
	count := flag.Int("users", 100, "Number of users to create")
	dbPath := flag.String("db", "./kite.db", "SQLite database path")
	pgHost := flag.String("pg-host", "", "PostgreSQL host (uses SQLite when empty)")
	pgDB := flag.String("pg-db", "kite", "PostgreSQL database name")
	seed := flag.Int64("seed", 0, "Random seed (0 = time-based)")
	verbose := flag.Bool("verbose", false, "Print each created user")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: *dbPath,
	}
	if *pgHost != "" {
		cfg = domain.RepositoryConfig{
			Driver:       "postgres",
			PostgresHost: *pgHost,
			PostgresDB:   *pgDB,
		}
	}

	repo, err := repository.New(cfg)
	if err != nil {
		fmt.Printf("ERROR: failed to open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	fmt.Printf("Seeding %d users (driver=%s, seed=%d)\n\n", *count, cfg.Driver, *seed)

	ctx := context.Background()
	created := 0
	byTier := map[domain.RiskTier]int{}

	for i := 0; i < *count; i++ {
		tier, notifications := pickTier(rng)

		user := &domain.User{
			ID:            uuid.New().String(),
			AccessToken:   uuid.New().String(),
			ValidUntil:    time.Now().UTC().Add(90 * 24 * time.Hour),
			AccountRef:    accountRef(rng),
			Notifications: notifications,
			Tier:          tier,
		}

		if err := repo.SaveUser(ctx, user); err != nil {
			fmt.Printf("ERROR: failed to save user %s: %v\n", user.AccountRef, err)
			continue
		}

		created++
		byTier[tier]++
		if *verbose {
			fmt.Printf("  %s  tier=%-6s notifications=%v\n", user.AccountRef, tier, notifications)
		}
	}

	fmt.Printf("\nCreated %d users\n", created)
	fmt.Printf("  high:   %d\n", byTier[domain.TierHigh])
	fmt.Printf("  medium: %d\n", byTier[domain.TierMedium])
	fmt.Printf("  low:    %d\n", byTier[domain.TierLow])
}

// pickTier draws a tier from the weighted spread, and a notification
// setting from that tier's opt-in rate.
func pickTier(rng *rand.Rand) (domain.RiskTier, bool) {
	r := rng.Float64()
	for _, tw := range tierWeights {
		if r < tw.weight {
			return tw.tier, rng.Float64() < tw.notifications
		}
		r -= tw.weight
	}
	last := tierWeights[len(tierWeights)-1]
	return last.tier, rng.Float64() < last.notifications
}

// accountRef generates an IBAN-shaped Spanish account reference.
func accountRef(rng *rand.Rand) string {
	digits := make([]byte, 22)
	for i := range digits {
		digits[i] = byte('0' + rng.Intn(10))
	}
	return "ES" + string(digits)
}
