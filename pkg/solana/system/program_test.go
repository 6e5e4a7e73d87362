package system

import (
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
)

func TestProgramKeys(t *testing.T) {
	assert.Equal(t, "11111111111111111111111111111111", base58.Encode(ProgramKey))
	assert.Equal(t, "SysvarRent111111111111111111111111111111111", base58.Encode(RentSysVar))
}
