// Package mocks provides a testify mock of the directus.Client interface.
package mocks

import (
	"context"
	"net/url"

	"github.com/stretchr/testify/mock"

	"github.com/klimadashboard/klimasync/internal/directus"
)

// Client is a mock implementation of directus.Client.
type Client struct {
	mock.Mock
}

func (m *Client) ListItems(ctx context.Context, collection string, params url.Values) ([]directus.Item, error) {
	args := m.Called(ctx, collection, params)
	items, _ := args.Get(0).([]directus.Item)
	return items, args.Error(1)
}

func (m *Client) FindByKey(ctx context.Context, collection, field, value string) (directus.Item, error) {
	args := m.Called(ctx, collection, field, value)
	item, _ := args.Get(0).(directus.Item)
	return item, args.Error(1)
}

func (m *Client) CreateItem(ctx context.Context, collection string, fields directus.Item) (directus.Item, error) {
	args := m.Called(ctx, collection, fields)
	item, _ := args.Get(0).(directus.Item)
	return item, args.Error(1)
}

func (m *Client) CreateItems(ctx context.Context, collection string, items []directus.Item) error {
	args := m.Called(ctx, collection, items)
	return args.Error(0)
}

func (m *Client) UpdateItem(ctx context.Context, collection string, id any, fields directus.Item) (directus.Item, error) {
	args := m.Called(ctx, collection, id, fields)
	item, _ := args.Get(0).(directus.Item)
	return item, args.Error(1)
}

func (m *Client) UpdateSingleton(ctx context.Context, collection string, fields directus.Item) error {
	args := m.Called(ctx, collection, fields)
	return args.Error(0)
}

func (m *Client) FindUserByEmail(ctx context.Context, email string) (directus.Item, error) {
	args := m.Called(ctx, email)
	item, _ := args.Get(0).(directus.Item)
	return item, args.Error(1)
}
