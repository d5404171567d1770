package proofsvc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single proof-protocol frame, guarding against
// a peer declaring an unbounded length prefix (the JSON analogue of the
// teacher's MaxRelayMsgBytes check on its binary frames).
const MaxFrameBytes = 8 * 1024 * 1024

const lengthPrefixBytes = 4

// WriteFrame writes one length-prefixed JSON frame: a 4-byte
// big-endian length followed by the JSON encoding of msg. Proof
// messages are variable-shaped (a commitment payload plus a proof's
// sibling list), so the wire format trades the teacher's fixed binary
// header for a JSON body behind the same length-prefix framing idea.
func WriteFrame(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("proofsvc: encode frame: %w", err)
	}
	if len(body) > MaxFrameBytes {
		return fmt.Errorf("proofsvc: frame of %d bytes exceeds MaxFrameBytes", len(body))
	}

	var prefix [lengthPrefixBytes]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed JSON frame and returns its raw
// body. Callers dispatch on the embedded "kind" field via DecodeMessage.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixBytes]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("proofsvc: declared frame length %d exceeds MaxFrameBytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("proofsvc: truncated frame: %w", err)
	}
	return body, nil
}

// kindEnvelope peeks at a frame's tag without committing to a concrete
// message type, the JSON analogue of the teacher's command-by-string
// dispatch.
type kindEnvelope struct {
	Kind Kind `json:"kind"`
}

// DecodeMessage inspects body's "kind" field and unmarshals it into the
// matching concrete message type, returned as `any`. Callers type-switch
// on the result.
func DecodeMessage(body []byte) (any, error) {
	var env kindEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("proofsvc: decode envelope: %w", err)
	}
	switch env.Kind {
	case KindProofRequest:
		var m ProofRequest
		return &m, json.Unmarshal(body, &m)
	case KindProofResponse:
		var m ProofResponse
		return &m, json.Unmarshal(body, &m)
	case KindProofPush:
		var m ProofPush
		return &m, json.Unmarshal(body, &m)
	case KindProofAck:
		var m ProofAck
		return &m, json.Unmarshal(body, &m)
	case KindProofError:
		var m ProofErrorMsg
		return &m, json.Unmarshal(body, &m)
	default:
		return nil, fmt.Errorf("proofsvc: unknown message kind %q", env.Kind)
	}
}

// ReadMessage is ReadFrame followed by DecodeMessage, the common case
// for a peer loop.
func ReadMessage(r io.Reader) (any, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(body)
}
