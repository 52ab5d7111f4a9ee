// Package mocks provides a testify mock of the fetcher.Fetcher interface
// for dataset tests.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// Fetcher is a mock implementation of fetcher.Fetcher.
type Fetcher struct {
	mock.Mock
}

func (m *Fetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *Fetcher) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	args := m.Called(ctx, url, path)
	return args.Get(0).(int64), args.Error(1)
}
