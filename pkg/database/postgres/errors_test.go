package pg

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCheckNoRows(t *testing.T) {
	notFound := errors.New("not found")
	other := errors.New("other")

	assert.Nil(t, CheckNoRows(nil, notFound))
	assert.Equal(t, notFound, CheckNoRows(sql.ErrNoRows, notFound))
	assert.Equal(t, notFound, CheckNoRows(errors.Wrap(sql.ErrNoRows, "wrapped"), notFound))
	assert.Equal(t, other, CheckNoRows(other, notFound))
}

func TestCheckUniqueViolation(t *testing.T) {
	exists := errors.New("exists")

	assert.Nil(t, CheckUniqueViolation(nil, exists))

	violation := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	assert.Equal(t, exists, CheckUniqueViolation(violation, exists))
	assert.Equal(t, exists, CheckUniqueViolation(errors.Wrap(violation, "insert"), exists))

	serialization := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	assert.Equal(t, serialization, CheckUniqueViolation(serialization, exists))
}
