package reliablequeue

import (
	"fmt"

	"github.com/open-collar/reliablequeue/pkg/validator"
)

// appValidator is shared across QueueConfig.Validate and
// validateMetadata; constructing a validator.Validator registers its
// custom tags once per process rather than once per call.
var appValidator = validator.New()

// maxMetadataEntries and maxMetadataValueBytes keep MessageRecord's
// metadata map small enough to live comfortably alongside the rest of a
// table row (SPEC_FULL.md §3 "small map").
const (
	maxMetadataEntries    = 16
	maxMetadataValueBytes = 256
)

// validateMetadata enforces the entry-count and per-value size caps a
// send() call's Metadata must respect.
func validateMetadata(metadata map[string]string) error {
	if len(metadata) > maxMetadataEntries {
		return ErrMetadataInvalid(fmt.Sprintf("metadata has %d entries, maximum is %d", len(metadata), maxMetadataEntries))
	}
	for key, value := range metadata {
		if err := appValidator.ValidateVar(value, fmt.Sprintf("max=%d", maxMetadataValueBytes)); err != nil {
			return ErrMetadataInvalid(fmt.Sprintf("metadata value for key %q exceeds %d bytes", key, maxMetadataValueBytes))
		}
	}
	return nil
}
