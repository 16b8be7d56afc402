package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"seatly/internal/catalog"
	"seatly/internal/shared/config"
	"seatly/internal/shared/database"

	"github.com/google/uuid"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Seatly Database Seeder...")

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	// Clean database
	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	// Seed data
	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in the correct order (respecting foreign key constraints)
func (s *Seeder) CleanDatabase() error {
	// Order matters due to foreign key constraints
	// Delete in reverse dependency order
	tables := []string{
		"booking_seats",
		"bookings",
		"hold_seats",
		"holds",
		"seats",
		"venues",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Disable foreign key constraints temporarily
	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	// Re-enable foreign key constraints
	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds all required data
func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	if err := s.SeedVenues(); err != nil {
		return fmt.Errorf("failed to seed venues: %w", err)
	}

	// Clear Redis so stale seat locks and cached snapshots don't survive a reseed
	if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
		log.Printf("Warning: Failed to clear Redis cache: %v", err)
	}

	return nil
}

// venueSpec describes one venue's seat grid
type venueSpec struct {
	name     string
	timezone string
	rows     []rowSpec
}

type rowSpec struct {
	label    string
	seats    int
	seatType string
	price    float64
}

// SeedVenues creates venues with full seat grids
func (s *Seeder) SeedVenues() error {
	fmt.Println("  🏟️  Seeding venues and seats...")

	venuesData := []venueSpec{
		{
			name:     "Grand Meridian Theater",
			timezone: "America/New_York",
			rows: []rowSpec{
				{"A", 12, "PREMIUM", 120.00},
				{"B", 12, "PREMIUM", 120.00},
				{"C", 14, "STANDARD", 75.00},
				{"D", 14, "STANDARD", 75.00},
				{"E", 14, "STANDARD", 60.00},
				{"F", 10, "ACCESSIBLE", 60.00},
			},
		},
		{
			name:     "Riverside Conference Hall",
			timezone: "Europe/London",
			rows: []rowSpec{
				{"A", 8, "PREMIUM", 90.00},
				{"B", 10, "STANDARD", 55.00},
				{"C", 10, "STANDARD", 55.00},
				{"D", 6, "ACCESSIBLE", 55.00},
			},
		},
		{
			name:     "Harborview Studio",
			timezone: "UTC",
			rows: []rowSpec{
				{"A", 6, "STANDARD", 40.00},
				{"B", 6, "STANDARD", 40.00},
			},
		},
	}

	for _, venueData := range venuesData {
		venue := catalog.Venue{
			ID:        uuid.New(),
			Name:      venueData.name,
			Timezone:  venueData.timezone,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := s.db.PostgreSQL.Create(&venue).Error; err != nil {
			return fmt.Errorf("failed to create venue %s: %w", venueData.name, err)
		}

		seatCount := 0
		for _, row := range venueData.rows {
			for col := 1; col <= row.seats; col++ {
				seat := catalog.Seat{
					ID:         uuid.New(),
					VenueID:    venue.ID,
					Row:        row.label,
					Column:     col,
					SeatType:   row.seatType,
					Price:      row.price,
					BaseStatus: catalog.BaseStatusAvailable,
					CreatedAt:  time.Now(),
					UpdatedAt:  time.Now(),
				}

				if err := s.db.PostgreSQL.Create(&seat).Error; err != nil {
					return fmt.Errorf("failed to create seat %s%d in %s: %w", row.label, col, venueData.name, err)
				}
				seatCount++
			}
		}

		// One seat out of service so operators can exercise base-status flows
		if err := s.db.PostgreSQL.Model(&catalog.Seat{}).
			Where("venue_id = ? AND \"row\" = ? AND \"column\" = ?", venue.ID, "A", 1).
			Update("base_status", catalog.BaseStatusMaintenance).Error; err != nil {
			return fmt.Errorf("failed to mark maintenance seat in %s: %w", venueData.name, err)
		}

		fmt.Printf("    ✅ Created venue: %s (%d seats)\n", venue.Name, seatCount)
	}

	return nil
}
