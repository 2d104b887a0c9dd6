package memory_test

import (
	"testing"

	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	"github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/blob/tests"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type MemorySuite struct {
	tests.BlobSuite
}

func (s *MemorySuite) SetupTest() {
	s.Suite.SetupTest()
	s.Store = memory.New(blob.Config{})
}

func TestMemoryBlob(t *testing.T) {
	test.Run(t, new(MemorySuite))
}
