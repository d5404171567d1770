package node

import (
	"context"
	"testing"
)

func TestDryRunWalletIsDeterministic(t *testing.T) {
	payload := []byte("anchor payload bytes")
	w := DryRunWallet{}

	txid1, err := w.Broadcast(context.Background(), payload)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	txid2, err := w.Broadcast(context.Background(), payload)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid1 != txid2 {
		t.Fatalf("expected deterministic txid, got %s and %s", txid1, txid2)
	}
	if len(txid1) != 64 {
		t.Fatalf("expected 32-byte hex txid, got length %d", len(txid1))
	}
}

func TestDryRunWalletDiffersByPayload(t *testing.T) {
	w := DryRunWallet{}
	a, err := w.Broadcast(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	b, err := w.Broadcast(context.Background(), []byte("b"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if a == b {
		t.Fatalf("expected different txids for different payloads")
	}
}
