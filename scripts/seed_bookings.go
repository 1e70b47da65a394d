package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"voyagr/internal/database"
	"voyagr/internal/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Bookings []seedBooking `yaml:"bookings"`
}

type seedBooking struct {
	ID            string  `yaml:"id"`
	CustomerID    string  `yaml:"customer_id"`
	CustomerName  string  `yaml:"customer_name"`
	CustomerEmail string  `yaml:"customer_email"`
	Status        string  `yaml:"status"`
	DateTime      string  `yaml:"date_time"`
	DurationHours float64 `yaml:"duration_hours"`
	TotalAmount   float64 `yaml:"total_amount"`
	Currency      string  `yaml:"currency"`
	Products      []struct {
		ID   string `yaml:"id"`
		Type string `yaml:"type"`
		Name string `yaml:"name"`
	} `yaml:"products"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		seedPath = flag.String("seed", "configs/seed_bookings.yaml", "path to seed yaml")
		dbPath   = flag.String("db", "./data/voyagr.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var cfg seedFile
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if len(cfg.Bookings) == 0 {
		return fmt.Errorf("no bookings in yaml")
	}

	db, err := database.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	skipped := 0
	for _, sb := range cfg.Bookings {
		booking, err := sb.toModel()
		if err != nil {
			return fmt.Errorf("booking %s: %w", sb.ID, err)
		}

		_, err = db.GetBooking(ctx, booking.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, database.ErrBookingNotFound) {
			return fmt.Errorf("get %s: %w", booking.ID, err)
		}
		if err = db.CreateBooking(ctx, booking); err != nil {
			return fmt.Errorf("create %s: %w", booking.ID, err)
		}
		created++
	}

	fmt.Printf("done: created=%d skipped=%d\n", created, skipped)
	return nil
}

func (sb seedBooking) toModel() (*models.Booking, error) {
	id := sb.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := sb.Status
	if status == "" {
		status = models.StatusPending
	}

	dateTime, err := time.Parse("2006-01-02 15:04", sb.DateTime)
	if err != nil {
		return nil, fmt.Errorf("invalid date_time %q: %w", sb.DateTime, err)
	}

	b := &models.Booking{
		ID:            id,
		CustomerID:    sb.CustomerID,
		CustomerName:  sb.CustomerName,
		CustomerEmail: sb.CustomerEmail,
		Status:        status,
		DateTime:      dateTime,
		DurationHours: sb.DurationHours,
		TotalAmount:   sb.TotalAmount,
		Currency:      sb.Currency,
		CreatedAt:     time.Now(),
	}
	for _, p := range sb.Products {
		b.Products = append(b.Products, models.Product{ID: p.ID, Type: p.Type, Name: p.Name})
	}
	return b, nil
}
