package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/klimadashboard/klimasync/internal/news"
	"github.com/klimadashboard/klimasync/pkg/slack"
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Import approved Slack news posts",
	Long: `Import the earliest thumbs-up approved message from the news channel
into the Directus news collection. At most one message is imported per run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Slack.BotToken == "" || cfg.Slack.NewsChannelID == "" {
			return eris.New("news: slack.bot_token and slack.news_channel_id must be configured")
		}

		dc, err := directusClient()
		if err != nil {
			return err
		}

		importer := news.NewImporter(slack.NewClient(cfg.Slack.BotToken), dc, cfg.Slack.NewsChannelID)
		ts, err := importer.Run(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "news")
		}

		if ts == "" {
			fmt.Println("No new approved messages")
		} else {
			fmt.Printf("Imported message %s\n", ts)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newsCmd)
}
