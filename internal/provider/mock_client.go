package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/rescue-radar/internal/formatter"
)

// MockClient is a mock implementation of the Client interface for testing.
type MockClient struct {
	mock.Mock
	ProviderName string
	SourceKind   formatter.SourceKind
}

// NewMockClient creates a MockClient reporting the given name and kind.
func NewMockClient(kind formatter.SourceKind) *MockClient {
	return &MockClient{ProviderName: string(kind), SourceKind: kind}
}

// Name implements Client.
func (m *MockClient) Name() string { return m.ProviderName }

// Kind implements Client.
func (m *MockClient) Kind() formatter.SourceKind { return m.SourceKind }

// Search is the mock implementation of the Search method.
func (m *MockClient) Search(ctx context.Context, q Query) (Page, error) {
	args := m.Called(ctx, q)
	page, _ := args.Get(0).(Page)
	return page, args.Error(1)
}

// GetByID is the mock implementation of the GetByID method.
func (m *MockClient) GetByID(ctx context.Context, nativeID string) (formatter.RawRecord, error) {
	args := m.Called(ctx, nativeID)
	rec, _ := args.Get(0).(formatter.RawRecord)
	return rec, args.Error(1)
}

// ListBreeds is the mock implementation of the ListBreeds method.
func (m *MockClient) ListBreeds(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	breeds, _ := args.Get(0).([]string)
	return breeds, args.Error(1)
}
