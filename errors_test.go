package loonypg_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	loonypg "github.com/loony-js/loony-postgres"
)

func TestPgErrorError(t *testing.T) {
	pgErr := &loonypg.PgError{Severity: "ERROR", Code: "42P01", Message: `relation "widgets" does not exist`}
	assert.Equal(t, `ERROR: relation "widgets" does not exist (SQLSTATE 42P01)`, pgErr.Error())
}

func TestTimeoutOnlyMatchesTimeouts(t *testing.T) {
	assert.False(t, loonypg.Timeout(errors.New("not a timeout")))
	assert.False(t, loonypg.Timeout(nil))
}

func TestSafeToRetry(t *testing.T) {
	assert.False(t, loonypg.SafeToRetry(errors.New("sent something")))
}
