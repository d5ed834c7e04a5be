// replay-decisions prints the recent decision audit trail so an operator
// can reconstruct why the controller admitted or rejected candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"

	"trading-tick-controller/internal/database"
)

func main() {
	limit := flag.Int("limit", 50, "number of recent decisions to show")
	outcome := flag.String("outcome", "", "only show decisions with this outcome (e.g. ADMITTED)")
	summary := flag.Bool("summary", false, "print outcome counts instead of individual decisions")
	flag.Parse()

	godotenv.Load()
	godotenv.Load(".env")

	db, err := database.NewDB(database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "tick_controller"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	})
	if err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	audit := database.NewAuditRepository(db)

	if *summary {
		printSummary(ctx, audit)
		return
	}

	records, err := audit.ListRecent(ctx, *limit)
	if err != nil {
		fmt.Printf("❌ Failed to load decisions: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📋 DECISION AUDIT TRAIL")
	fmt.Println("-----------------------")

	shown := 0
	for _, rec := range records {
		if *outcome != "" && rec.Outcome != *outcome {
			continue
		}
		shown++
		fmt.Printf("%s  %-18s %-10s score=%.1f conf=%.2f risk=$%.2f qty=%.4f circuit=%s regime=%s\n",
			rec.DecidedAt.Format("2006-01-02 15:04:05"),
			rec.Outcome,
			rec.Instrument,
			rec.Score,
			rec.Confidence,
			rec.RiskDollars,
			rec.Quantity,
			rec.CircuitLevel,
			rec.Regime,
		)
		if rec.Reason != "" {
			fmt.Printf("    trace=%s  %s\n", rec.TraceID, rec.Reason)
		}
	}

	fmt.Printf("\n%d decisions shown\n", shown)
}

func printSummary(ctx context.Context, audit *database.AuditRepository) {
	counts, err := audit.CountByOutcome(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to count decisions: %v\n", err)
		os.Exit(1)
	}

	outcomes := make([]string, 0, len(counts))
	var total int64
	for k, v := range counts {
		outcomes = append(outcomes, k)
		total += v
	}
	sort.Strings(outcomes)

	fmt.Println("📊 DECISION SUMMARY")
	fmt.Println("-------------------")
	for _, k := range outcomes {
		fmt.Printf("%-20s %6d  (%.1f%%)\n", k, counts[k], float64(counts[k])/float64(total)*100)
	}
	fmt.Printf("%-20s %6d\n", "TOTAL", total)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
