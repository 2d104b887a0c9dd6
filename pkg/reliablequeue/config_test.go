package reliablequeue

import (
	"testing"

	"github.com/open-collar/reliablequeue/pkg/test"
)

type ConfigTestSuite struct {
	test.Suite
}

func TestConfigTestSuite(t *testing.T) {
	test.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestDefaultConfigValidates() {
	s.Require().NoError(DefaultQueueConfig().Validate())
}

func (s *ConfigTestSuite) TestZeroMaxAttemptsIsInvalid() {
	cfg := DefaultQueueConfig()
	cfg.MaxAttempts = 0
	s.Error(cfg.Validate())
}

func (s *ConfigTestSuite) TestUnrecognizedModeIsInvalid() {
	cfg := DefaultQueueConfig()
	cfg.Mode = Mode("Sideways")
	s.Error(cfg.Validate())
}

func (s *ConfigTestSuite) TestNegativeMaxPayloadBytesIsInvalid() {
	cfg := DefaultQueueConfig()
	cfg.MaxPayloadBytes = -1
	s.Error(cfg.Validate())
}
