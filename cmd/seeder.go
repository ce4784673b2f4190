package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			for _, table := range []string{"payments", "calendar_entries", "bookings"} {
				if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing booking data")
		}

		// Open the next 60 days for a handful of demo listings. The unique
		// index on (listing_id, day) makes re-running the seeder harmless.
		listings := []int64{1001, 1002, 1003}
		today := time.Now().Truncate(24 * time.Hour)

		seeded := 0
		for _, listingID := range listings {
			for d := 0; d < 60; d++ {
				day := today.AddDate(0, 0, d)
				res, err := db.Exec(`
					INSERT INTO calendar_entries (listing_id, day, status, created_at, updated_at)
					VALUES ($1, $2, 'available', now(), now())
					ON CONFLICT (listing_id, day) DO NOTHING`,
					listingID, day)
				if err != nil {
					log.Fatalf("failed to seed calendar for listing %d: %v", listingID, err)
				}
				if n, _ := res.RowsAffected(); n > 0 {
					seeded++
				}
			}
		}
		fmt.Printf("Seeded %d calendar days across %d listings\n", seeded, len(listings))

		// One pending booking so the respond/pay flow can be exercised
		// immediately against listing 1001.
		var exists int
		row := db.QueryRow(`SELECT 1 FROM bookings WHERE listing_id = $1 AND guest_id = $2 AND status = 'pending_confirmation'`, int64(1001), int64(5001))
		if err := row.Scan(&exists); err == nil {
			fmt.Println("demo booking already exists; skipping")
			return
		}

		checkIn := today.AddDate(0, 0, 7)
		checkOut := today.AddDate(0, 0, 9)
		_, err = db.Exec(`
			INSERT INTO bookings (
				listing_id, listing_created_at, guest_id, host_id, status,
				check_in, check_out, nights, guests,
				price_per_night_cents, cleaning_fee_cents, service_fee_cents,
				total_price_cents, reservation_amount_cents, checkin_amount_cents,
				created_at, updated_at
			) VALUES ($1, now(), $2, $3, 'pending_confirmation', $4, $5, 2, 2,
				12000, 3000, 1500, 28500, 14250, 14250, now(), now())`,
			int64(1001), int64(5001), int64(2001), checkIn, checkOut)
		if err != nil {
			log.Fatalf("failed to seed demo booking: %v", err)
		}
		fmt.Println("Seeded demo booking for listing 1001")
	},
}
