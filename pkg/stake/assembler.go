package stake

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/computebudget"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/token"
)

var (
	// ErrInstructionOrdering indicates an instruction references an account
	// as writable before the instruction that creates it.
	ErrInstructionOrdering = errors.New("account referenced before it is created")

	ErrEmptyPlan = errors.New("no instructions to assemble")
)

// PlannedInstruction is an instruction along with the accounts it creates.
type PlannedInstruction struct {
	Instruction solana.Instruction
	Creates     []ed25519.PublicKey
}

// Assembled is an unsigned transaction ready for the submission cascade.
type Assembled struct {
	Transaction solana.Transaction

	// Zero when the blockhash came from the client's cache
	LastValidBlockHeight uint64

	// Advisory simulation failures
	Warnings []string
}

type Assembler struct {
	log  *logrus.Entry
	conf *conf
}

func NewAssembler(configProvider ConfigProvider) *Assembler {
	return &Assembler{
		log:  logrus.StandardLogger().WithField("type", "stake/assembler"),
		conf: configProvider(),
	}
}

// Assemble builds an unsigned transaction paid for by the session wallet.
//
// The ordering check runs before any network call. A fresh assembly always
// queries the node for a new blockhash, otherwise the client's short lived
// blockhash cache may be used.
func (a *Assembler) Assemble(ctx context.Context, session *Session, plan []*PlannedInstruction, fresh bool) (*Assembled, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Assemble")
	defer tracer.End()

	if err := CheckOrdering(plan); err != nil {
		tracer.OnError(err)
		return nil, err
	}

	var instructions []solana.Instruction
	if limit := a.conf.computeUnitLimit.Get(ctx); limit > 0 {
		instructions = append(instructions, computebudget.SetComputeUnitLimit(uint32(limit)))
	}
	if price := a.conf.computeUnitPrice.Get(ctx); price > 0 {
		instructions = append(instructions, computebudget.SetComputeUnitPrice(price))
	}
	for _, planned := range plan {
		instructions = append(instructions, planned.Instruction)
	}

	res := &Assembled{}
	if fresh {
		latest, err := session.Client.GetFreshBlockhash(ctx, solana.CommitmentConfirmed)
		if err != nil {
			tracer.OnError(err)
			return nil, errors.Wrap(err, "failed to get fresh blockhash")
		}
		res.Transaction = solana.NewTransaction(session.Version, session.Owner(), instructions...)
		res.Transaction.SetBlockhash(latest.Blockhash)
		res.LastValidBlockHeight = latest.LastValidBlockHeight
	} else {
		blockhash, err := session.Client.GetLatestBlockhash(ctx)
		if err != nil {
			tracer.OnError(err)
			return nil, errors.Wrap(err, "failed to get recent blockhash")
		}
		res.Transaction = solana.NewTransaction(session.Version, session.Owner(), instructions...)
		res.Transaction.SetBlockhash(blockhash)
	}

	if a.conf.enableSimulation.Get(ctx) {
		if warning := a.simulate(ctx, session, res.Transaction); len(warning) > 0 {
			res.Warnings = append(res.Warnings, warning)
		}
	}

	return res, nil
}

// simulate never fails the assembly. Any problem is returned as a warning.
func (a *Assembler) simulate(ctx context.Context, session *Session, txn solana.Transaction) string {
	log := a.log.WithFields(logrus.Fields{
		"method": "simulate",
		"wallet": base58.Encode(session.Owner()),
	})

	result, err := session.Client.SimulateTransaction(ctx, txn, solana.CommitmentConfirmed)
	if err != nil {
		log.WithError(err).Warn("simulation unavailable")
		return fmt.Sprintf("simulation unavailable: %s", err.Error())
	}
	if result.Err == nil {
		return ""
	}

	var reason error = result.Err
	if programErr, ok := staking.ProgramErrorFromTransactionError(result.Err); ok {
		reason = programErr
	}

	log.WithError(reason).WithField("logs", result.Logs).Warn("simulation failed")
	return fmt.Sprintf("simulation failed: %s", reason.Error())
}

// CheckOrdering verifies that every instruction creating an account comes
// before each instruction that references the account as writable.
func CheckOrdering(plan []*PlannedInstruction) error {
	if len(plan) == 0 {
		return ErrEmptyPlan
	}

	for creatorIndex, creator := range plan {
		for _, created := range creator.Creates {
			for i := 0; i < creatorIndex; i++ {
				if _, writable := plan[i].Instruction.References(created); writable {
					return errors.Wrapf(
						ErrInstructionOrdering,
						"instruction %d writes %s which is created by instruction %d",
						i,
						base58.Encode(created),
						creatorIndex,
					)
				}
			}
		}
	}

	return nil
}

// PlanPrerequisites returns the instructions that must run before an
// operation for a wallet that has never staked: an idempotent associated
// token account creation and register_user.
func (a *Assembler) PlanPrerequisites(ctx context.Context, session *Session, needsTokenAccount bool) ([]*PlannedInstruction, error) {
	if !a.conf.enablePrerequisitePlanning.Get(ctx) {
		return nil, nil
	}

	var res []*PlannedInstruction
	owner := session.Owner()

	if needsTokenAccount {
		ata, err := session.Deriver.UserTokenAccount(owner)
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive user token account")
		}

		exists, err := token.NewClient(session.Client, session.Mint).Exists(ctx, ata, solana.CommitmentConfirmed)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check user token account")
		}

		if !exists {
			ix, created, err := token.CreateAssociatedTokenAccountIdempotent(owner, owner, session.Mint)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(created, ata) {
				return nil, errors.New("associated token account mismatch")
			}

			res = append(res, &PlannedInstruction{
				Instruction: ix,
				Creates:     []ed25519.PublicKey{created},
			})
		}
	}

	userInfo, err := session.Deriver.UserInfo(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive user info")
	}

	_, err = session.Client.GetAccountInfo(ctx, userInfo.Address, solana.CommitmentConfirmed)
	if err == solana.ErrNoAccountInfo {
		register, err := NewEncoder(session.Program, session.Deriver).RegisterUser(owner, nil)
		if err != nil {
			return nil, err
		}
		res = append(res, register)
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to check user info")
	}

	return res, nil
}
