// Package mocks provides testify mocks for the anthropic package.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/klimadashboard/klimasync/pkg/anthropic"
)

// Client is a mock implementation of anthropic.Client.
type Client struct {
	mock.Mock
}

func (m *Client) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*anthropic.MessageResponse)
	return resp, args.Error(1)
}
