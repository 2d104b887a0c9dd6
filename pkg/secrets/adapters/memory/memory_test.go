package memory_test

import (
	"testing"

	"github.com/open-collar/reliablequeue/pkg/secrets/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/secrets/tests"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type MemorySecretsTestSuite struct {
	tests.SecretsTestSuite
}

func (s *MemorySecretsTestSuite) SetupTest() {
	s.SecretsTestSuite.SetupTest()
	s.Manager = memory.New()
}

func TestMemorySecrets(t *testing.T) {
	test.Run(t, new(MemorySecretsTestSuite))
}
