package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "predictionclub"
	app.Usage = "High-school prediction club server"
	app.Action = cli.ShowAppHelp
	app.Commands = []*cli.Command{
		{
			Name:        "serve",
			Usage:       "Start the web API, the Telegram bot and the session worker",
			Category:    "Server",
			Description: `Configuration is read from the environment and an optional .env file.`,
			Action:      serve,
		},
		{
			Name:     "seed",
			Usage:    "Insert the sample topics into the local database",
			Category: "Local backend",
			Action:   seed,
		},
		{
			Name:      "settle",
			Usage:     "Record the outcome of a prediction in the local database",
			ArgsUsage: "<prediction-id> <won|lost>",
			Category:  "Local backend",
			Action:    settle,
		},
		{
			Name:      "topic-status",
			Usage:     "Change the status of a topic in the local database",
			ArgsUsage: "<topic-id> <active|closed|settled>",
			Category:  "Local backend",
			Action:    topicStatus,
		},
		{
			Name:      "suggest",
			Usage:     "Ask the model to review a topic idea",
			ArgsUsage: "<idea>",
			Category:  "Tools",
			Action:    suggestTopic,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
