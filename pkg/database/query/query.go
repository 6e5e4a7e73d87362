package query

import (
	"encoding/binary"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Cursor is an opaque position in a paged result set. Stores encode a row
// id as 8 big endian bytes.
type Cursor []byte

var EmptyCursor = Cursor([]byte{})

func ToCursor(val uint64) Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	return b
}

// ToUint64 decodes the cursor, treating an empty cursor as the start.
func (c Cursor) ToUint64() (uint64, error) {
	switch len(c) {
	case 0:
		return 0, nil
	case 8:
		return binary.BigEndian.Uint64(c), nil
	}
	return 0, errors.Errorf("invalid cursor length %d", len(c))
}

func (c Cursor) String() string {
	if len(c) == 0 {
		return ""
	}
	if v, err := c.ToUint64(); err == nil {
		return strconv.FormatUint(v, 10)
	}
	return base58.Encode(c)
}

// The ordering of a returned set of records
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)

// SQL returns the ORDER BY keyword for the ordering.
func (o Ordering) SQL() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// PaginateQuery appends keyset pagination over the id column to a query
// whose WHERE clause is already open, numbering new placeholders after the
// existing args.
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}, error) {
	if len(cursor) > 0 {
		id, err := cursor.ToUint64()
		if err != nil {
			return "", nil, err
		}

		op := ">"
		if direction == Descending {
			op = "<"
		}
		args = append(args, id)
		query += " AND id " + op + " $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY id " + direction.SQL()

	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return query, args, nil
}
