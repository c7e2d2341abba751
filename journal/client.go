package journal

import (
	"context"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// DatasetID is the lode dataset journal records are written to.
const DatasetID = "strata"

// Client abstracts journal storage. Implementations must preserve record
// order within a batch.
type Client interface {
	// WriteRecords persists a batch of records.
	WriteRecords(ctx context.Context, records []Record) error
	// Close releases client resources.
	Close() error
}

// LodeClient is the lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
}

// NewFSClient creates a journal client with filesystem storage rooted at
// root.
func NewFSClient(root string) (*LodeClient, error) {
	return newLodeClient(lode.NewFSFactory(root))
}

// NewMemoryClient creates a journal client with in-memory storage. Use in
// tests.
func NewMemoryClient() (*LodeClient, error) {
	return newLodeClient(lode.NewMemoryFactory())
}

func newLodeClient(factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(DatasetID),
		factory,
		lode.WithHiveLayout("day", "run_id", "event_type"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, err
	}
	return &LodeClient{dataset: ds}, nil
}

// WriteRecords implements Client. Records are converted to maps because
// the Hive layout reads partition values from map keys.
func (c *LodeClient) WriteRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.toMap())
	}
	_, err := c.dataset.Write(ctx, rows, lode.Metadata{})
	return err
}

// Close implements Client.
func (c *LodeClient) Close() error {
	// The dataset does not require an explicit close in the current lode
	// API.
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)

// StubClient records batches without persisting. Use for testing journal
// behaviour without storage.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]Record
	Err     error
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client. Returns Err when set.
func (c *StubClient) WriteRecords(ctx context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	batch := make([]Record, len(records))
	copy(batch, records)
	c.Batches = append(c.Batches, batch)
	return nil
}

// Records returns all written records in write order.
func (c *StubClient) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Record
	for _, batch := range c.Batches {
		out = append(out, batch...)
	}
	return out
}

// SetErr makes subsequent writes fail with err. Pass nil to heal.
func (c *StubClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
