package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadFrame reads one complete frame from r: the 8-byte prefix, then
// whatever shape-specific length and payload follow. It returns one of
// KeyFrame, DataFrame, or FinFrame as an any, dispatching on the tag as
// specified in spec.md §4.5. A peer closing the connection cleanly
// before any bytes are read surfaces as io.EOF; a short read anywhere
// else surfaces as an error wrapping ErrTruncated.
func ReadFrame(r io.Reader) (any, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return nil, err
	}
	p, shape, err := DecodePrefix(prefix[:])
	if err != nil {
		return nil, err
	}

	switch shape {
	case ShapeKey:
		return readKeyBody(r, p)
	case ShapeFin:
		return readFinBody(r, p)
	default:
		return readDataBody(r, p)
	}
}

func readLength(r io.Reader) (uint32, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return binary.BigEndian.Uint32(lb[:]), nil
}

func readKeyBody(r io.Reader, p Prefix) (KeyFrame, error) {
	length, err := readLength(r)
	if err != nil {
		return KeyFrame{}, err
	}
	if length != KeyPayloadLen {
		return KeyFrame{}, fmt.Errorf("%w: KEY length %d != %d", ErrBadLength, length, KeyPayloadLen)
	}
	var payload [KeyPayloadLen]byte
	if _, err := io.ReadFull(r, payload[:]); err != nil {
		return KeyFrame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	f := KeyFrame{SessionID: p.SessionID}
	copy(f.Key[:], payload[0:16])
	copy(f.IV[:], payload[16:32])
	return f, nil
}

func readFinBody(r io.Reader, p Prefix) (FinFrame, error) {
	length, err := readLength(r)
	if err != nil {
		return FinFrame{}, err
	}
	if length != 0 {
		return FinFrame{}, fmt.Errorf("%w: FIN length %d != 0", ErrBadLength, length)
	}
	return FinFrame{SessionID: p.SessionID}, nil
}

func readDataBody(r io.Reader, p Prefix) (DataFrame, error) {
	var checksum [ChecksumLen]byte
	if _, err := io.ReadFull(r, checksum[:]); err != nil {
		return DataFrame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	length, err := readLength(r)
	if err != nil {
		return DataFrame{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return DataFrame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return DataFrame{
		SessionID:    p.SessionID,
		SegmentIndex: p.SegmentIndex(),
		Checksum:     checksum,
		Ciphertext:   payload,
	}, nil
}

// ReadResponse reads the fixed 4-byte ACK/NACK response token.
func ReadResponse(r io.Reader) ([4]byte, error) {
	var tok [4]byte
	if _, err := io.ReadFull(r, tok[:]); err != nil {
		return tok, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return tok, nil
}

// IsAck reports whether tok is the ACK token (all four bytes compared,
// per spec.md §4.1's opaque-token comparison rule).
func IsAck(tok [4]byte) bool {
	return tok == AckToken
}
