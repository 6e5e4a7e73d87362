package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
)

const (
	keyPrefix = "staking:submission"

	fieldId                   = "id"
	fieldSignature            = "signature"
	fieldWallet               = "wallet"
	fieldOperation            = "operation"
	fieldAmount               = "amount"
	fieldStrategy             = "strategy"
	fieldLastValidBlockHeight = "last_valid_block_height"
	fieldState                = "state"
	fieldReconcileState       = "reconcile_state"
	fieldError                = "error"
	fieldVersion              = "version"
	fieldCreatedAt            = "created_at"
	fieldUpdatedAt            = "updated_at"
)

func recordKey(signature string) string {
	return fmt.Sprintf("%s:record:%s", keyPrefix, signature)
}

func stateKey(state submission.State) string {
	return fmt.Sprintf("%s:state:%d", keyPrefix, state)
}

func sequenceKey() string {
	return keyPrefix + ":sequence"
}

func unreconciledKey() string {
	return keyPrefix + ":unreconciled"
}

func toHash(obj *submission.Record) map[string]interface{} {
	res := map[string]interface{}{
		fieldId:                   obj.Id,
		fieldSignature:            obj.Signature,
		fieldWallet:               obj.Wallet,
		fieldOperation:            string(obj.Operation),
		fieldAmount:               obj.Amount,
		fieldStrategy:             obj.Strategy,
		fieldLastValidBlockHeight: obj.LastValidBlockHeight,
		fieldState:                uint8(obj.State),
		fieldReconcileState:       uint8(obj.ReconcileState),
		fieldVersion:              obj.Version,
		fieldCreatedAt:            obj.CreatedAt.UnixNano(),
		fieldUpdatedAt:            obj.UpdatedAt.UnixNano(),
	}
	if obj.Error != nil {
		res[fieldError] = *obj.Error
	}
	return res
}

func fromHash(values map[string]string) (*submission.Record, error) {
	if len(values) == 0 {
		return nil, submission.ErrNotFound
	}

	var uints [7]uint64
	for i, field := range []string{
		fieldId,
		fieldAmount,
		fieldLastValidBlockHeight,
		fieldState,
		fieldReconcileState,
		fieldVersion,
		fieldCreatedAt,
	} {
		v, err := strconv.ParseUint(values[field], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s field", field)
		}
		uints[i] = v
	}

	updatedAt, err := strconv.ParseInt(values[fieldUpdatedAt], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s field", fieldUpdatedAt)
	}

	errMsg, hasErr := values[fieldError]

	return &submission.Record{
		Id:                   uints[0],
		Signature:            values[fieldSignature],
		Wallet:               values[fieldWallet],
		Operation:            submission.Operation(values[fieldOperation]),
		Amount:               uints[1],
		Strategy:             values[fieldStrategy],
		LastValidBlockHeight: uints[2],
		State:                submission.State(uints[3]),
		ReconcileState:       submission.ReconcileState(uints[4]),
		Error:                pointer.StringIfValid(hasErr, errMsg),
		Version:              uints[5],
		CreatedAt:            time.Unix(0, int64(uints[6])),
		UpdatedAt:            time.Unix(0, updatedAt),
	}, nil
}
