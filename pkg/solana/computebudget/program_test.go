package computebudget

import (
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
)

func TestProgramKey(t *testing.T) {
	assert.Equal(t, "ComputeBudget111111111111111111111111111111", base58.Encode(ProgramKey))
}

func TestComputeBudgetInstructions(t *testing.T) {
	limit := SetComputeUnitLimit(200_000)
	assert.Equal(t, ProgramKey, limit.Program)
	assert.Empty(t, limit.Accounts)
	assert.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, limit.Data)

	price := SetComputeUnitPrice(5_000)
	assert.Equal(t, ProgramKey, price.Program)
	assert.Empty(t, price.Accounts)
	assert.Equal(t, []byte{3, 0x88, 0x13, 0, 0, 0, 0, 0, 0}, price.Data)
}
