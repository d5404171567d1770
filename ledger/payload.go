package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	AnchorPayloadLen = 79

	protocolID      = "BSV-ANCHOR"
	protocolVersion = 0x01
)

// BuildAnchorPayload assembles the fixed 79-byte on-chain anchor payload
// (spec.md §4.4). previousTxid is the all-zero array for the first anchor.
func BuildAnchorPayload(root [32]byte, commitmentCount uint32, previousTxid [32]byte) []byte {
	out := make([]byte, AnchorPayloadLen)
	copy(out[0:10], protocolID)
	out[10] = protocolVersion
	copy(out[11:43], root[:])
	binary.BigEndian.PutUint32(out[43:47], commitmentCount)
	copy(out[47:79], previousTxid[:])
	return out
}

// AnchorPayload is the decoded form of a 79-byte anchor payload.
type AnchorPayload struct {
	Version         byte
	RootHash        [32]byte
	CommitmentCount uint32
	PreviousTxid    [32]byte
}

// ParseAnchorPayload decodes and validates a 79-byte anchor payload.
func ParseAnchorPayload(b []byte) (AnchorPayload, error) {
	if len(b) != AnchorPayloadLen {
		return AnchorPayload{}, NewErrorf(ErrInputValidation, "anchor payload must be %d bytes, got %d", AnchorPayloadLen, len(b))
	}
	if string(b[0:10]) != protocolID {
		return AnchorPayload{}, NewErrorf(ErrInputValidation, "anchor payload: bad protocol identifier %q", b[0:10])
	}
	var out AnchorPayload
	out.Version = b[10]
	copy(out.RootHash[:], b[11:43])
	out.CommitmentCount = binary.BigEndian.Uint32(b[43:47])
	copy(out.PreviousTxid[:], b[47:79])
	return out, nil
}

// HashToBytes32 decodes a hex-encoded 32-byte hash into a fixed array.
func HashToBytes32(hexHash string) ([32]byte, error) {
	var out [32]byte
	if hexHash == "" {
		return out, nil
	}
	b, err := hex.DecodeString(hexHash)
	if err != nil {
		return out, fmt.Errorf("ledger: bad hash hex %q: %w", hexHash, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("ledger: hash must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// TxidToBytes32 decodes a hex txid into a fixed array, used for the
// previous-anchor field of the payload. An empty txid decodes to all-zero
// bytes, matching the "absent for index 0" convention.
func TxidToBytes32(txidHex string) ([32]byte, error) {
	return HashToBytes32(txidHex)
}
