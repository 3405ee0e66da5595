package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/safedeal/internal/config"
	"github.com/shinyyama/safedeal/internal/db"
	"github.com/shinyyama/safedeal/internal/logging"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/shinyyama/safedeal/internal/service"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedUser struct {
	UID         string
	DisplayName string
	Verified    bool
	Rating      string
}

type seedThread struct {
	ListingID string
	BuyerUID  string
	SellerUID string
	Messages  []string
	Amount    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel, "console")

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		logger.Info().Msg("deals already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	users := repository.NewUserRepository(gdb)
	for _, u := range seedUsers() {
		if err := users.Upsert(ctx, &model.User{
			UID:         u.UID,
			DisplayName: u.DisplayName,
			IsVerified:  u.Verified,
			Rating:      decimal.RequireFromString(u.Rating),
		}); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.UID, err)
		}
	}

	convRepo := repository.NewConversationRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	convs := service.NewConversationService(convRepo, msgRepo, nil, logger)
	msgs := service.NewMessageService(convRepo, msgRepo, cfg.MaxMessageLength, nil, logger)
	deals := service.NewDealService(repository.NewDealRepository(gdb), nil, service.DealConfig{
		Expiry:                cfg.DealExpiry,
		RejectDuplicateActive: cfg.RejectDuplicateActiveDeals,
	}, logger)

	for _, th := range seedThreads() {
		cv, err := convs.Start(ctx, th.ListingID, th.BuyerUID, th.SellerUID)
		if err != nil {
			return fmt.Errorf("start conversation %s: %w", th.ListingID, err)
		}
		for i, text := range th.Messages {
			sender := th.BuyerUID
			if i%2 == 1 {
				sender = th.SellerUID
			}
			if _, err := msgs.Append(ctx, cv.ID, sender, text); err != nil {
				return fmt.Errorf("append message: %w", err)
			}
		}
		if th.Amount == "" {
			continue
		}
		d, err := deals.Initiate(ctx, service.InitiateDealInput{
			ListingID: th.ListingID,
			SellerID:  th.SellerUID,
			BuyerID:   th.BuyerUID,
			Amount:    decimal.RequireFromString(th.Amount),
		})
		if err != nil {
			return fmt.Errorf("initiate deal %s: %w", th.ListingID, err)
		}
		logger.Info().Str("deal_id", d.ID).Str("conversation_id", cv.ID).Msg("seeded deal")
	}

	logger.Info().Int("users", len(seedUsers())).Int("threads", len(seedThreads())).Msg("seed finished")
	return nil
}

func seedUsers() []seedUser {
	return []seedUser{
		{UID: "demo-buyer", DisplayName: "Aruzhan", Verified: true, Rating: "4.80"},
		{UID: "demo-seller", DisplayName: "Daniyar", Verified: true, Rating: "4.95"},
		{UID: "demo-seller-2", DisplayName: "Madina", Rating: "4.10"},
	}
}

func seedThreads() []seedThread {
	return []seedThread{
		{
			ListingID: "listing-iphone-13",
			BuyerUID:  "demo-buyer",
			SellerUID: "demo-seller",
			Messages:  []string{"Is the phone still available?", "Yes, battery health is 91%.", "Great, I'll open a safe deal."},
			Amount:    "185000.00",
		},
		{
			ListingID: "listing-road-bike",
			BuyerUID:  "demo-buyer",
			SellerUID: "demo-seller-2",
			Messages:  []string{"Can you ship to Almaty?", "Sure, via Kazpost."},
		},
	}
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.SafeDeal{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count deals: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}
