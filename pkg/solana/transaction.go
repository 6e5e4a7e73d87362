package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrUnknownSigner = errors.New("signer is not a required signer of the transaction")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

// MessageVersion is the wire format of a transaction message.
type MessageVersion uint8

const (
	MessageVersionLegacy MessageVersion = iota
	MessageVersion0
)

// ParseMessageVersion maps the common textual names for a version.
func ParseMessageVersion(v string) (MessageVersion, error) {
	switch strings.ToLower(v) {
	case "legacy", "":
		return MessageVersionLegacy, nil
	case "v0", "0":
		return MessageVersion0, nil
	}
	return 0, errors.Errorf("unsupported message version: %q", v)
}

func (v MessageVersion) String() string {
	switch v {
	case MessageVersionLegacy:
		return "legacy"
	case MessageVersion0:
		return "v0"
	}
	return "unknown"
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// MessageAddressTableLookup is only produced when decoding v0 transactions
// built elsewhere. Messages compiled here always use static keys.
type MessageAddressTableLookup struct {
	PublicKey       ed25519.PublicKey
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

type Message struct {
	Version             MessageVersion
	Header              Header
	Accounts            []ed25519.PublicKey
	RecentBlockhash     Blockhash
	Instructions        []CompiledInstruction
	AddressTableLookups []MessageAddressTableLookup
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewLegacyTransaction compiles a legacy transaction paid for by payer.
func NewLegacyTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	return NewTransaction(MessageVersionLegacy, payer, instructions...)
}

// NewV0Transaction compiles a versioned (v0) transaction paid for by payer.
func NewV0Transaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	return NewTransaction(MessageVersion0, payer, instructions...)
}

// NewTransaction compiles the instructions into an unsigned transaction of the
// requested version. The blockhash is left empty.
func NewTransaction(version MessageVersion, payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	metas := collectAccounts(payer, instructions)

	m := Message{
		Version:  version,
		Accounts: make([]ed25519.PublicKey, 0, len(metas)),
	}
	for _, meta := range metas {
		key := meta.PublicKey
		if len(key) == 0 {
			key = make([]byte, ed25519.PublicKeySize)
		}
		m.Accounts = append(m.Accounts, key)

		switch {
		case meta.IsSigner && !meta.IsWritable:
			m.Header.NumSignatures++
			m.Header.NumReadonlySigned++
		case meta.IsSigner:
			m.Header.NumSignatures++
		case !meta.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, normalizeKey(ix.Program))),
			Data:         ix.Data,
			Accounts:     make([]byte, 0, len(ix.Accounts)),
		}
		for _, a := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, byte(indexOf(m.Accounts, normalizeKey(a.PublicKey))))
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// collectAccounts flattens, deduplicates and orders every account referenced
// by the instructions. Duplicate references are merged by promoting the
// strongest permission seen.
func collectAccounts(payer ed25519.PublicKey, instructions []Instruction) []AccountMeta {
	all := []AccountMeta{{
		PublicKey:  payer,
		IsSigner:   true,
		IsWritable: true,
		isPayer:    true,
	}}
	for _, ix := range instructions {
		all = append(all, AccountMeta{PublicKey: ix.Program, isProgram: true})
		all = append(all, ix.Accounts...)
	}

	merged := make([]AccountMeta, 0, len(all))
	seen := make(map[string]int, len(all))
	for _, meta := range all {
		key := string(normalizeKey(meta.PublicKey))
		if idx, ok := seen[key]; ok {
			existing := &merged[idx]
			existing.IsSigner = existing.IsSigner || meta.IsSigner
			existing.IsWritable = existing.IsWritable || meta.IsWritable
			existing.isPayer = existing.isPayer || meta.isPayer
			continue
		}

		seen[key] = len(merged)
		merged = append(merged, meta)
	}

	sort.Sort(accountOrder(merged))
	return merged
}

// Signature returns the fee payer signature, which is the transaction id.
func (t *Transaction) Signature() []byte {
	return t.Signatures[0][:]
}

// ID is the base58 transaction signature.
func (t *Transaction) ID() string {
	return t.Signatures[0].String()
}

// IsSigned reports whether every required signature slot is populated.
func (t *Transaction) IsSigned() bool {
	var empty Signature
	for _, s := range t.Signatures {
		if s == empty {
			return false
		}
	}
	return len(t.Signatures) > 0
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// ClearSignatures zeroes every signature slot, which must happen whenever the
// message changes.
func (t *Transaction) ClearSignatures() {
	t.Signatures = make([]Signature, t.Message.Header.NumSignatures)
}

// Sign signs the message with each key. Keys may be given in any order.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	message := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Public().(ed25519.PublicKey)

		var sig Signature
		copy(sig[:], ed25519.Sign(s, message))
		if err := t.AddSignature(pub, sig); err != nil {
			return err
		}
	}

	return nil
}

// AddSignature places an externally produced signature into the slot that
// belongs to pub.
func (t *Transaction) AddSignature(pub ed25519.PublicKey, sig Signature) error {
	index := indexOf(t.Message.Accounts, pub)
	if index < 0 || index >= len(t.Signatures) {
		return errors.Wrapf(ErrUnknownSigner, "account %s", base58.Encode(pub))
	}

	t.Signatures[index] = sig
	return nil
}

// RequiredSigners returns the accounts that must sign, fee payer first.
func (t *Transaction) RequiredSigners() []ed25519.PublicKey {
	return t.Message.Accounts[:t.Message.Header.NumSignatures]
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s))
	}
	sb.WriteString("Message:\n")
	sb.WriteString(fmt.Sprintf("  Version: %s\n", t.Message.Version))
	sb.WriteString(fmt.Sprintf("  Header: %+v\n", t.Message.Header))
	sb.WriteString(fmt.Sprintf("  Blockhash: %s\n", t.Message.RecentBlockhash))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, base58.Encode(a)))
	}
	sb.WriteString("  Instructions:\n")
	for i, ix := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d: program=%d accounts=%v data=%x\n", i, ix.ProgramIndex, ix.Accounts, ix.Data))
	}
	for _, l := range t.Message.AddressTableLookups {
		sb.WriteString(fmt.Sprintf("  Lookup %s: writable=%v readonly=%v\n", base58.Encode(l.PublicKey), l.WritableIndexes, l.ReadonlyIndexes))
	}
	return sb.String()
}

func normalizeKey(pub ed25519.PublicKey) ed25519.PublicKey {
	if len(pub) == 0 {
		return make([]byte, ed25519.PublicKeySize)
	}
	return pub
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}
	return -1
}
