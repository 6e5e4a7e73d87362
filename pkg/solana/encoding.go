package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/shortvec"
)

// versionPrefix is set on the first message byte of versioned messages. Legacy
// messages start with the signature count, which never has the high bit set.
const versionPrefix = 0x80

func (t Transaction) Marshal() []byte {
	b := bytes.NewBuffer(nil)

	_, _ = shortvec.EncodeLen(b, len(t.Signatures))
	for _, s := range t.Signatures {
		_, _ = b.Write(s[:])
	}
	_, _ = b.Write(t.Message.Marshal())

	return b.Bytes()
}

// Base64 is the encoding accepted by sendTransaction and simulateTransaction.
func (t Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Marshal())
}

func (t *Transaction) Unmarshal(b []byte) error {
	buf := bytes.NewBuffer(b)

	sigLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read signature length")
	}

	t.Signatures = make([]Signature, sigLen)
	for i := 0; i < sigLen; i++ {
		if _, err = io.ReadFull(buf, t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read signature at %d", i)
		}
	}

	return (&t.Message).Unmarshal(buf.Bytes())
}

func (m Message) Marshal() []byte {
	b := bytes.NewBuffer(nil)

	switch m.Version {
	case MessageVersionLegacy:
	case MessageVersion0:
		_ = b.WriteByte(versionPrefix | byte(m.Version-1))
	default:
		panic("unsupported message version")
	}

	_ = b.WriteByte(m.Header.NumSignatures)
	_ = b.WriteByte(m.Header.NumReadonlySigned)
	_ = b.WriteByte(m.Header.NumReadOnly)

	_, _ = shortvec.EncodeLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		_, _ = b.Write(a)
	}

	_, _ = b.Write(m.RecentBlockhash[:])

	_, _ = shortvec.EncodeLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		_ = b.WriteByte(i.ProgramIndex)
		writeBytes(b, i.Accounts)
		writeBytes(b, i.Data)
	}

	if m.Version == MessageVersionLegacy {
		return b.Bytes()
	}

	_, _ = shortvec.EncodeLen(b, len(m.AddressTableLookups))
	for _, l := range m.AddressTableLookups {
		_, _ = b.Write(l.PublicKey)
		writeBytes(b, l.WritableIndexes)
		writeBytes(b, l.ReadonlyIndexes)
	}

	return b.Bytes()
}

func (m *Message) Unmarshal(b []byte) (err error) {
	if len(b) == 0 {
		return errors.New("empty message")
	}

	buf := bytes.NewBuffer(b)

	m.Version = MessageVersionLegacy
	if b[0]&versionPrefix != 0 {
		raw, _ := buf.ReadByte()
		if raw&^versionPrefix != 0 {
			return errors.Errorf("unsupported message version: %d", raw&^versionPrefix)
		}
		m.Version = MessageVersion0
	}

	if m.Header.NumSignatures, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num signatures")
	}
	if m.Header.NumReadonlySigned, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly signatures")
	}
	if m.Header.NumReadOnly, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly")
	}

	accountLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read account len")
	}
	m.Accounts = make([]ed25519.PublicKey, accountLen)
	for i := range m.Accounts {
		m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		if _, err = io.ReadFull(buf, m.Accounts[i]); err != nil {
			return errors.Wrapf(err, "failed to read account at index %d", i)
		}
	}

	if _, err = io.ReadFull(buf, m.RecentBlockhash[:]); err != nil {
		return errors.Wrap(err, "failed to read recent block hash")
	}

	instructionLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read instruction len")
	}
	m.Instructions = make([]CompiledInstruction, instructionLen)
	for i := range m.Instructions {
		var c CompiledInstruction

		if c.ProgramIndex, err = buf.ReadByte(); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] program index", i)
		}
		if c.Accounts, err = readBytes(buf); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] accounts", i)
		}
		if c.Data, err = readBytes(buf); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data", i)
		}

		m.Instructions[i] = c
	}

	m.AddressTableLookups = nil
	if m.Version == MessageVersion0 {
		lookupLen, err := shortvec.DecodeLen(buf)
		if err != nil {
			return errors.Wrap(err, "failed to read address table lookup len")
		}
		for i := 0; i < lookupLen; i++ {
			l := MessageAddressTableLookup{PublicKey: make([]byte, ed25519.PublicKeySize)}
			if _, err = io.ReadFull(buf, l.PublicKey); err != nil {
				return errors.Wrapf(err, "failed to read lookup[%d] address", i)
			}
			if l.WritableIndexes, err = readBytes(buf); err != nil {
				return errors.Wrapf(err, "failed to read lookup[%d] writable indexes", i)
			}
			if l.ReadonlyIndexes, err = readBytes(buf); err != nil {
				return errors.Wrapf(err, "failed to read lookup[%d] readonly indexes", i)
			}
			m.AddressTableLookups = append(m.AddressTableLookups, l)
		}
	}

	return m.validateIndexes()
}

// validateIndexes checks every compiled index against the static keys plus
// whatever the lookup tables load.
func (m *Message) validateIndexes() error {
	total := len(m.Accounts)
	for _, l := range m.AddressTableLookups {
		total += len(l.WritableIndexes) + len(l.ReadonlyIndexes)
	}

	for i, c := range m.Instructions {
		if int(c.ProgramIndex) >= total {
			return errors.Errorf("program index out of range: %d:%d", i, c.ProgramIndex)
		}
		for _, index := range c.Accounts {
			if int(index) >= total {
				return errors.Errorf("account index out of range: %d:%d", i, index)
			}
		}
	}
	return nil
}

func writeBytes(b *bytes.Buffer, v []byte) {
	_, _ = shortvec.EncodeLen(b, len(v))
	_, _ = b.Write(v)
}

func readBytes(buf *bytes.Buffer) ([]byte, error) {
	n, err := shortvec.DecodeLen(buf)
	if err != nil {
		return nil, err
	}
	v := make([]byte, n)
	if _, err := io.ReadFull(buf, v); err != nil {
		return nil, err
	}
	return v, nil
}
