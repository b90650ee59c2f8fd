package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/c360/symbolws/errors"
)

// Uint64 is an unsigned 64-bit value the node encodes as a decimal string.
// Plain JSON numbers are accepted as well.
type Uint64 uint64

// UnmarshalJSON implements json.Unmarshaler.
func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse uint64 %q: %w", s, err)
	}
	*u = Uint64(v)
	return nil
}

// MarshalJSON keeps the node's string encoding so values above 2^53 survive.
func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// BlockHeader is the header part of a block topic message.
type BlockHeader struct {
	Signature             string `json:"signature"`
	SignerPublicKey       string `json:"signerPublicKey"`
	Version               int    `json:"version"`
	Network               int    `json:"network"`
	Type                  int    `json:"type"`
	Height                Uint64 `json:"height"`
	Timestamp             Uint64 `json:"timestamp"`
	Difficulty            Uint64 `json:"difficulty"`
	ProofGamma            string `json:"proofGamma"`
	ProofVerificationHash string `json:"proofVerificationHash"`
	ProofScalar           string `json:"proofScalar"`
	PreviousBlockHash     string `json:"previousBlockHash"`
	TransactionsHash      string `json:"transactionsHash"`
	ReceiptsHash          string `json:"receiptsHash"`
	StateHash             string `json:"stateHash"`
	BeneficiaryAddress    string `json:"beneficiaryAddress"`
	FeeMultiplier         uint32 `json:"feeMultiplier"`
}

// BlockMeta carries the hashes computed by the node.
type BlockMeta struct {
	Hash           string `json:"hash"`
	GenerationHash string `json:"generationHash"`
}

// Block is the payload of the block topic.
type Block struct {
	Block BlockHeader `json:"block"`
	Meta  BlockMeta   `json:"meta"`
}

// FinalizedBlock is the payload of the finalizedBlock topic.
type FinalizedBlock struct {
	FinalizationEpoch uint32 `json:"finalizationEpoch"`
	FinalizationPoint uint32 `json:"finalizationPoint"`
	Height            Uint64 `json:"height"`
	Hash              string `json:"hash"`
}

// Mosaic is an amount of one mosaic attached to a transfer.
type Mosaic struct {
	ID     string `json:"id"`
	Amount Uint64 `json:"amount"`
}

// TransactionBody holds the fields common to every transaction type plus the
// transfer fields. Raw keeps the full object for type-specific decoding.
type TransactionBody struct {
	Signature        string          `json:"signature"`
	SignerPublicKey  string          `json:"signerPublicKey"`
	Version          int             `json:"version"`
	Network          int             `json:"network"`
	Type             int             `json:"type"`
	MaxFee           Uint64          `json:"maxFee"`
	Deadline         Uint64          `json:"deadline"`
	RecipientAddress string          `json:"recipientAddress,omitempty"`
	Mosaics          []Mosaic        `json:"mosaics,omitempty"`
	Message          string          `json:"message,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// TransactionMeta is the node-side metadata of a transaction.
type TransactionMeta struct {
	Hash                string `json:"hash"`
	MerkleComponentHash string `json:"merkleComponentHash,omitempty"`
	Height              Uint64 `json:"height"`
}

// Transaction is the payload of confirmedAdded, unconfirmedAdded and partialAdded.
type Transaction struct {
	Transaction TransactionBody `json:"transaction"`
	Meta        TransactionMeta `json:"meta"`
}

// TransactionHash is the payload of unconfirmedRemoved and partialRemoved.
type TransactionHash struct {
	Meta struct {
		Hash string `json:"hash"`
	} `json:"meta"`
}

// Cosignature is the payload of the cosignature topic.
type Cosignature struct {
	Version         Uint64 `json:"version"`
	SignerPublicKey string `json:"signerPublicKey"`
	Signature       string `json:"signature"`
	ParentHash      string `json:"parentHash"`
}

// Status is the payload of the status topic, sent when a transaction is rejected.
type Status struct {
	Hash     string `json:"hash"`
	Code     string `json:"code"`
	Deadline Uint64 `json:"deadline"`
}

func decodeData[T any](f Frame, want ...Topic) (T, error) {
	var out T
	if f.Kind != KindTopic {
		return out, errors.WrapInvalid(
			fmt.Errorf("%w: frame kind %s has no payload", errors.ErrInvalidData, f.Kind),
			"Codec", "decodeData", "check frame kind")
	}
	match := false
	for _, t := range want {
		if f.Topic == t {
			match = true
			break
		}
	}
	if !match {
		return out, errors.WrapInvalid(
			fmt.Errorf("%w: topic %q", errors.ErrInvalidData, string(f.Topic)),
			"Codec", "decodeData", "check topic")
	}
	if len(f.Data) == 0 {
		return out, errors.WrapInvalid(
			fmt.Errorf("%w: missing data", errors.ErrInvalidData),
			"Codec", "decodeData", "check payload")
	}
	if err := json.Unmarshal(f.Data, &out); err != nil {
		return out, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Codec", "decodeData", "unmarshal "+string(f.Topic))
	}
	return out, nil
}

// Block decodes a block topic payload.
func (f Frame) Block() (Block, error) {
	return decodeData[Block](f, TopicBlock)
}

// FinalizedBlock decodes a finalizedBlock topic payload.
func (f Frame) FinalizedBlock() (FinalizedBlock, error) {
	return decodeData[FinalizedBlock](f, TopicFinalizedBlock)
}

// Transaction decodes a confirmedAdded, unconfirmedAdded or partialAdded payload.
func (f Frame) Transaction() (Transaction, error) {
	tx, err := decodeData[Transaction](f, TopicConfirmedAdded, TopicUnconfirmedAdded, TopicPartialAdded)
	if err != nil {
		return tx, err
	}
	var body struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	if err := json.Unmarshal(f.Data, &body); err == nil {
		tx.Transaction.Raw = body.Transaction
	}
	return tx, nil
}

// TransactionHash decodes an unconfirmedRemoved or partialRemoved payload.
func (f Frame) TransactionHash() (TransactionHash, error) {
	return decodeData[TransactionHash](f, TopicUnconfirmedRemoved, TopicPartialRemoved)
}

// Cosignature decodes a cosignature topic payload.
func (f Frame) Cosignature() (Cosignature, error) {
	return decodeData[Cosignature](f, TopicCosignature)
}

// Status decodes a status topic payload.
func (f Frame) Status() (Status, error) {
	return decodeData[Status](f, TopicStatus)
}
