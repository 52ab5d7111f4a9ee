// Package news imports approved Slack messages into the Directus news
// collection. The team posts drafts into a dedicated channel; a thumbs-up
// reaction marks a post as ready, and country flag reactions choose which
// dashboard sites it appears on.
package news

import (
	"context"
	"html"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/directus"
	"github.com/klimadashboard/klimasync/pkg/slack"
)

// Collection is the Directus collection news posts are written to.
const Collection = "news"

// messageIDField stores the Slack timestamp on imported items so a message
// is never imported twice.
const messageIDField = "slack_message_id"

// Importer pulls the channel history and publishes the earliest approved
// message that has not been imported yet. One message per run keeps the
// review queue moving without flooding the site.
type Importer struct {
	slack     slack.Client
	directus  directus.Client
	channelID string
	log       *zap.Logger
}

// NewImporter creates an Importer for the given news channel.
func NewImporter(sc slack.Client, dc directus.Client, channelID string) *Importer {
	return &Importer{
		slack:     sc,
		directus:  dc,
		channelID: channelID,
		log:       zap.L().Named("news"),
	}
}

// Run imports at most one message and returns its Slack timestamp, or an
// empty string when nothing was ready to import.
func (i *Importer) Run(ctx context.Context) (string, error) {
	messages, err := i.slack.ChannelHistory(ctx, i.channelID)
	if err != nil {
		return "", eris.Wrap(err, "news: fetch channel history")
	}

	for _, msg := range messages {
		if msg.Timestamp == "" || msg.Text == "" || msg.User == "" {
			continue
		}

		existing, err := i.directus.FindByKey(ctx, Collection, messageIDField, msg.Timestamp)
		if err != nil {
			return "", eris.Wrapf(err, "news: check message %s", msg.Timestamp)
		}
		if existing != nil {
			i.log.Debug("message already imported", zap.String("ts", msg.Timestamp))
			continue
		}

		reactions, err := i.slack.MessageReactions(ctx, i.channelID, msg.Timestamp)
		if err != nil {
			i.log.Warn("fetching reactions failed", zap.String("ts", msg.Timestamp), zap.Error(err))
			continue
		}
		if !approved(reactions) {
			continue
		}

		if err := i.importMessage(ctx, msg, determineSites(reactions)); err != nil {
			return "", err
		}
		return msg.Timestamp, nil
	}

	i.log.Info("no new approved messages")
	return "", nil
}

func (i *Importer) importMessage(ctx context.Context, msg slack.Message, sites string) error {
	item := directus.Item{
		messageIDField: msg.Timestamp,
		"status":       "published",
		"author":       i.authorID(ctx, msg.User),
		"sites":        sites,
		"translations": []directus.Item{{
			"languages_code": "de",
			"text":           slackToHTML(msg.Text),
		}},
	}

	if _, err := i.directus.CreateItem(ctx, Collection, item); err != nil {
		return eris.Wrapf(err, "news: create item for message %s", msg.Timestamp)
	}

	i.log.Info("message imported",
		zap.String("ts", msg.Timestamp),
		zap.String("sites", sites),
	)
	return nil
}

// authorID maps the Slack author to a Directus user via their email
// address. Lookup failures are tolerated; the post is then unattributed.
func (i *Importer) authorID(ctx context.Context, slackUserID string) any {
	email, err := i.slack.UserEmail(ctx, slackUserID)
	if err != nil || email == "" {
		i.log.Warn("resolving slack user email failed", zap.String("user", slackUserID), zap.Error(err))
		return nil
	}
	user, err := i.directus.FindUserByEmail(ctx, email)
	if err != nil || user == nil {
		i.log.Warn("no directus user for email", zap.String("email", email), zap.Error(err))
		return nil
	}
	return user["id"]
}

// approved reports whether the message carries at least one thumbs-up.
func approved(reactions []slack.Reaction) bool {
	for _, r := range reactions {
		if r.Name == "+1" && r.Count > 0 {
			return true
		}
	}
	return false
}

// determineSites picks the target sites from country flag reactions. With
// no flag reaction the post goes to both sites.
func determineSites(reactions []slack.Reaction) string {
	names := make(map[string]bool, len(reactions))
	for _, r := range reactions {
		names[r.Name] = true
	}
	germany := names["de"] || names["flag-de"]
	austria := names["at"] || names["flag-at"]
	switch {
	case germany && !austria:
		return "de"
	case austria && !germany:
		return "at"
	default:
		return "at,de"
	}
}

var (
	mentionRE     = regexp.MustCompile(`<@([UW][A-Za-z0-9]+)>`)
	channelTagRE  = regexp.MustCompile(`(?i)<!channel>`)
	hereTagRE     = regexp.MustCompile(`(?i)<!here>`)
	channelLinkRE = regexp.MustCompile(`<#([CW][A-Za-z0-9]+)\|([^>]+)>`)
	labeledLinkRE = regexp.MustCompile(`<(https?://[^|]+)\|([^>]+)>`)
	bareLinkRE    = regexp.MustCompile(`<(https?://[^>]+)>`)
	boldRE        = regexp.MustCompile(`\*(.*?)\*`)
	italicRE      = regexp.MustCompile(`_(.*?)_`)
	strikeRE      = regexp.MustCompile(`~(.*?)~`)
)

// slackToHTML converts Slack message markup into the HTML fragment stored
// in the news translation.
func slackToHTML(text string) string {
	out := html.UnescapeString(text)
	out = mentionRE.ReplaceAllString(out, `<span>@$1</span>`)
	out = channelTagRE.ReplaceAllString(out, `<span>@channel</span>`)
	out = hereTagRE.ReplaceAllString(out, `<span>@here</span>`)
	out = channelLinkRE.ReplaceAllString(out, `<a href="#">$2</a>`)
	out = labeledLinkRE.ReplaceAllString(out, `<a href="$1">$2</a>`)
	out = bareLinkRE.ReplaceAllString(out, `<a href="$1">$1</a>`)
	out = boldRE.ReplaceAllString(out, `<strong>$1</strong>`)
	out = italicRE.ReplaceAllString(out, `<em>$1</em>`)
	out = strikeRE.ReplaceAllString(out, `<del>$1</del>`)
	return out
}
