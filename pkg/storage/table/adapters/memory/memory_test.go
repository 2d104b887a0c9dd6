package memory_test

import (
	"testing"

	"github.com/open-collar/reliablequeue/pkg/storage/table"
	"github.com/open-collar/reliablequeue/pkg/storage/table/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type MemoryTableTestSuite struct {
	test.Suite
	t *memory.Table
}

func (s *MemoryTableTestSuite) SetupTest() {
	s.Suite.SetupTest()
	s.t = memory.New()
}

func (s *MemoryTableTestSuite) TestInsertGet() {
	item, err := s.t.Insert(s.Ctx, table.Item{
		PartitionKey: "orders",
		RowKey:       "00000001",
		Properties:   map[string]any{"state": "pending"},
	})
	s.NoError(err)
	s.NotEmpty(item.ETag)

	got, err := s.t.Get(s.Ctx, "orders", "00000001")
	s.NoError(err)
	s.Equal("pending", got.Properties["state"])
	s.Equal(item.ETag, got.ETag)
}

func (s *MemoryTableTestSuite) TestInsertDuplicateConflicts() {
	_, err := s.t.Insert(s.Ctx, table.Item{PartitionKey: "orders", RowKey: "a"})
	s.NoError(err)

	_, err = s.t.Insert(s.Ctx, table.Item{PartitionKey: "orders", RowKey: "a"})
	s.Error(err)
}

func (s *MemoryTableTestSuite) TestReplaceRequiresMatchingETag() {
	inserted, err := s.t.Insert(s.Ctx, table.Item{
		PartitionKey: "orders",
		RowKey:       "a",
		Properties:   map[string]any{"state": "pending"},
	})
	s.NoError(err)

	// Stale ETag is rejected.
	_, err = s.t.Replace(s.Ctx, table.Item{
		PartitionKey: "orders",
		RowKey:       "a",
		ETag:         "stale",
		Properties:   map[string]any{"state": "leased"},
	})
	s.Error(err)

	// Current ETag succeeds and rotates the ETag.
	replaced, err := s.t.Replace(s.Ctx, table.Item{
		PartitionKey: "orders",
		RowKey:       "a",
		ETag:         inserted.ETag,
		Properties:   map[string]any{"state": "leased"},
	})
	s.NoError(err)
	s.NotEqual(inserted.ETag, replaced.ETag)
}

func (s *MemoryTableTestSuite) TestQueryOrdersByRowKey() {
	for _, rk := range []string{"00000003", "00000001", "00000002"} {
		_, err := s.t.Insert(s.Ctx, table.Item{PartitionKey: "orders", RowKey: rk})
		s.Require().NoError(err)
	}

	results, err := s.t.Query(s.Ctx, table.QueryOptions{PartitionKey: "orders"})
	s.NoError(err)
	s.Require().Len(results, 3)
	s.Equal("00000001", results[0].RowKey)
	s.Equal("00000002", results[1].RowKey)
	s.Equal("00000003", results[2].RowKey)
}

func (s *MemoryTableTestSuite) TestDeleteNotFound() {
	err := s.t.Delete(s.Ctx, "orders", "missing")
	s.Error(err)
}

func TestMemoryTableSuite(t *testing.T) {
	test.Run(t, new(MemoryTableTestSuite))
}
