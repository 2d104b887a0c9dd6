package reliablequeue

import "github.com/open-collar/reliablequeue/pkg/errors"

func errIsNotFound(err error) bool {
	return errors.CodeOf(err) == errors.CodeNotFound
}

func errIsConflict(err error) bool {
	return errors.CodeOf(err) == errors.CodeConflict
}
