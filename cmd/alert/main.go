// Command alert sends an exposure alert token to one phone number.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/auth"
	"github.com/allclear/allclear/backend/go-services/internal/config"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/internal/sms"
	"github.com/allclear/allclear/backend/go-services/pkg/logger"
)

func main() {
	phone := flag.String("phone", "", "phone number to alert")
	since := flag.String("since", "", "time of the previous alert (RFC3339); defaults to 24h ago")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	if *phone == "" {
		logger.Fatalf("-phone is required")
	}
	lastAlertedAt := time.Now().Add(-24 * time.Hour)
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			logger.Fatalf("invalid -since: %v", err)
		}
		lastAlertedAt = t
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kv.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatalf("failed to connect to Redis: %v", err)
	}
	defer func() { _ = client.Close() }()

	sender, err := sms.New(cfg.Auth.SMSSender)
	if err != nil {
		logger.Fatalf("invalid sms configuration: %v", err)
	}
	challenge, err := auth.NewChallenge(kv.NewRedisStore(client), sender, cfg.Auth)
	if err != nil {
		logger.Fatalf("invalid auth configuration: %v", err)
	}
	if _, err := challenge.IssueAlertToken(ctx, *phone, lastAlertedAt); err != nil {
		logger.Fatalf("alert %s: %v", *phone, err)
	}
	logger.Infof("alert sent to %s", *phone)
}
