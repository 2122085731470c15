// Copyright 2025 Certen Protocol

package pegtx

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

func genTestKey(t *testing.T) (*btcec.PrivateKey, [33]byte) {
	t.Helper()
	var raw [32]byte
	raw[31] = 0x07
	priv, pub := btcec.PrivKeyFromBytes(raw[:])
	var out [33]byte
	copy(out[:], pub.SerializeCompressed())
	return priv, out
}

func TestWorkProofRoundTrip(t *testing.T) {
	tx := &WorkProofTransaction{PublicKey: bytes.Repeat([]byte{0xab}, 33), Nonce: 42}

	var buf bytes.Buffer
	if err := tx.EncodeTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded WorkProofTransaction
	if err := decoded.DecodeFrom(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.PublicKey, tx.PublicKey) || decoded.Nonce != tx.Nonce {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestWorkHashDeterministic(t *testing.T) {
	tx := &WorkProofTransaction{PublicKey: []byte("key"), Nonce: 7}
	h1 := tx.WorkHash()
	h2 := tx.WorkHash()
	if h1 != h2 {
		t.Fatal("WorkHash should be deterministic for the same inputs")
	}
}

func TestTransferSignatureRoundTrip(t *testing.T) {
	priv, from := genTestKey(t)
	to := bytes.Repeat([]byte{0x02}, 33)

	tx := &TransferTransaction{From: from[:], To: to, Amount: 100, FeeAmount: 1000, Nonce: 0}
	digest, err := tx.Sighash()
	if err != nil {
		t.Fatalf("sighash: %v", err)
	}
	sig := ecdsa.Sign(priv, digest[:])
	tx.Signature = sig.Serialize()

	ok, err := tx.VerifySignature()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}

	var buf bytes.Buffer
	if err := tx.EncodeTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded TransferTransaction
	if err := decoded.DecodeFrom(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Amount != 100 || decoded.FeeAmount != 1000 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestTransferSignatureRejectsTamperedAmount(t *testing.T) {
	priv, from := genTestKey(t)
	to := bytes.Repeat([]byte{0x02}, 33)

	tx := &TransferTransaction{From: from[:], To: to, Amount: 100, FeeAmount: 1000, Nonce: 0}
	digest, _ := tx.Sighash()
	sig := ecdsa.Sign(priv, digest[:])
	tx.Signature = sig.Serialize()

	tx.Amount = 999 // tamper after signing
	ok, err := tx.VerifySignature()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered amount should invalidate the signature")
	}
}

func TestWithdrawalSignatureRoundTrip(t *testing.T) {
	priv, from := genTestKey(t)
	script := bytes.Repeat([]byte{0x76, 0xa9}, 10)

	tx := &WithdrawalTransaction{From: from[:], To: script, Amount: 1000, Nonce: 3}
	digest, err := tx.Sighash()
	if err != nil {
		t.Fatalf("sighash: %v", err)
	}
	sig := ecdsa.Sign(priv, digest[:])
	tx.Signature = sig.Serialize()

	ok, err := tx.VerifySignature()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}
}

func TestTransactionEnvelopeRoundTrip(t *testing.T) {
	inner := &WorkProofTransaction{PublicKey: bytes.Repeat([]byte{0x01}, 33), Nonce: 5}
	env := &Transaction{Kind: KindWorkProof, WorkProof: inner}

	var buf bytes.Buffer
	if err := env.EncodeTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded Transaction
	if err := decoded.DecodeFrom(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindWorkProof || decoded.WorkProof == nil || decoded.WorkProof.Nonce != 5 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestTransactionEnvelopeUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0xff)

	var decoded Transaction
	if err := decoded.DecodeFrom(&buf); err == nil {
		t.Fatal("expected error for unknown kind tag")
	}
}
