// Package mocks provides testify mocks for the slack package.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/klimadashboard/klimasync/pkg/slack"
)

// Client is a mock implementation of slack.Client.
type Client struct {
	mock.Mock
}

func (m *Client) ChannelHistory(ctx context.Context, channelID string) ([]slack.Message, error) {
	args := m.Called(ctx, channelID)
	msgs, _ := args.Get(0).([]slack.Message)
	return msgs, args.Error(1)
}

func (m *Client) MessageReactions(ctx context.Context, channelID, timestamp string) ([]slack.Reaction, error) {
	args := m.Called(ctx, channelID, timestamp)
	reactions, _ := args.Get(0).([]slack.Reaction)
	return reactions, args.Error(1)
}

func (m *Client) UserEmail(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// Notifier is a mock implementation of slack.Notifier.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(ctx context.Context, level slack.Level, message string) error {
	args := m.Called(ctx, level, message)
	return args.Error(0)
}
