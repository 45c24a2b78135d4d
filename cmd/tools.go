package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"predictionclub/internal/config"
	"predictionclub/internal/metrics"
	"predictionclub/internal/models"
	"predictionclub/internal/storage"
)

func openLocal() (*storage.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("this command needs BACKEND=%s", config.BackendSQLite)
	}
	return storage.Open(cfg.DatabasePath, cfg.JWTSecret)
}

func seed(c *cli.Context) error {
	db, err := openLocal()
	if err != nil {
		return err
	}
	defer db.Close()

	added, err := db.Seed(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d topics\n", added)
	return nil
}

func settle(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: settle <prediction-id> <won|lost>", 1)
	}
	var correct bool
	switch models.PredictionStatus(c.Args().Get(1)) {
	case models.PredictionWon:
		correct = true
	case models.PredictionLost:
	default:
		return cli.Exit("outcome must be won or lost", 1)
	}

	db, err := openLocal()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SettlePrediction(c.Context, c.Args().Get(0), correct); err != nil {
		return err
	}
	fmt.Printf("Prediction %s settled as %s\n", c.Args().Get(0), c.Args().Get(1))
	return nil
}

func topicStatus(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: topic-status <topic-id> <active|closed|settled>", 1)
	}
	status := models.TopicStatus(c.Args().Get(1))
	if !status.Valid() {
		return cli.Exit("status must be active, closed or settled", 1)
	}

	db, err := openLocal()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetTopicStatus(c.Context, c.Args().Get(0), string(status)); err != nil {
		return err
	}
	fmt.Printf("Topic %s is now %s\n", c.Args().Get(0), status)
	return nil
}

func suggestTopic(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: suggest <idea>", 1)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	commentary, ok := newSuggester(ctx, cfg, metrics.New()).Analyze(ctx, c.Args().First())
	if !ok {
		return cli.Exit("no suggestion available (is GEMINI_API_KEY set?)", 1)
	}
	fmt.Println(commentary)
	return nil
}
