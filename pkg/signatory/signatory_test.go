// Copyright 2025 Certen Protocol

package signatory

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func genKey(t *testing.T, seed byte) [33]byte {
	t.Helper()
	var raw [32]byte
	raw[31] = seed | 1 // avoid the zero scalar
	priv, pub := btcec.PrivKeyFromBytes(raw[:])
	_ = priv
	var out [33]byte
	copy(out[:], pub.SerializeCompressed())
	return out
}

func TestDeriveFromValidatorsSortedByKey(t *testing.T) {
	k1 := genKey(t, 1)
	k2 := genKey(t, 2)
	k3 := genKey(t, 3)

	validators := map[[33]byte]uint64{
		k3: 30,
		k1: 10,
		k2: 20,
	}

	set, err := DeriveFromValidators(validators)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(set.Signatories) != 3 {
		t.Fatalf("got %d signatories, want 3", len(set.Signatories))
	}
	for i := 1; i < len(set.Signatories); i++ {
		if bytes.Compare(set.Signatories[i-1].PubKey[:], set.Signatories[i].PubKey[:]) >= 0 {
			t.Fatalf("signatories not sorted ascending at index %d", i)
		}
	}
	if got := set.TotalVotingPower(); got != 60 {
		t.Fatalf("total voting power = %d, want 60", got)
	}
}

func TestDeriveFromValidatorsRejectsBadKey(t *testing.T) {
	var bad [33]byte
	bad[0] = 0xff // not a valid compressed point prefix
	validators := map[[33]byte]uint64{bad: 10}

	if _, err := DeriveFromValidators(validators); err == nil {
		t.Fatal("expected error for malformed public key")
	}
}

func TestSetEncodeDecodeRoundTrip(t *testing.T) {
	k1 := genKey(t, 1)
	k2 := genKey(t, 2)
	set := Set{Signatories: []Signatory{
		{PubKey: k1, VotingPower: 5},
		{PubKey: k2, VotingPower: 7},
	}}

	var buf bytes.Buffer
	if err := set.EncodeTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded Set
	if err := decoded.DecodeFrom(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Signatories) != 2 || decoded.Signatories[0].VotingPower != 5 || decoded.Signatories[1].VotingPower != 7 {
		t.Fatalf("round trip mismatch: %+v", decoded.Signatories)
	}
}

func TestOutputScriptNonEmpty(t *testing.T) {
	k1 := genKey(t, 1)
	set := Set{Signatories: []Signatory{{PubKey: k1, VotingPower: 100}}}
	var recipient [33]byte
	recipient[0] = 0x42

	script, err := OutputScript(set, recipient)
	if err != nil {
		t.Fatalf("output script: %v", err)
	}
	if len(script) == 0 {
		t.Fatal("expected non-empty script")
	}
}

func TestOutputScriptDiffersByRecipient(t *testing.T) {
	k1 := genKey(t, 1)
	set := Set{Signatories: []Signatory{{PubKey: k1, VotingPower: 100}}}
	var r1, r2 [33]byte
	r1[0], r2[0] = 0x01, 0x02

	s1, err := OutputScript(set, r1)
	if err != nil {
		t.Fatalf("output script: %v", err)
	}
	s2, err := OutputScript(set, r2)
	if err != nil {
		t.Fatalf("output script: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Fatal("expected scripts for distinct recipients to differ")
	}
}

func TestOutputScriptRejectsEmptySet(t *testing.T) {
	var recipient [33]byte
	if _, err := OutputScript(Set{}, recipient); err == nil {
		t.Fatal("expected error for empty signatory set")
	}
}
