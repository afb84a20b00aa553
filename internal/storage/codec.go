package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Compression names for the vector artifact.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

const (
	vectorsMagic   = "VSTV"
	vectorsVersion = 1

	flagZstd uint16 = 1 << 0
)

// vectorsHeader precedes the payload of a vector artifact. All fields are little-endian.
type vectorsHeader struct {
	Magic       [4]byte
	Version     uint16
	Flags       uint16
	Dimension   uint32
	Count       uint64
	PayloadSize uint64 // bytes following the header
	Checksum    uint32 // CRC-32 (IEEE) of the uncompressed payload
}

// encodeVectors writes count×dimension float32 values with a header and checksum.
func encodeVectors(w io.Writer, dimension int, flat []float32, compression string) error {
	if dimension <= 0 || len(flat)%dimension != 0 {
		return fmt.Errorf("encode vectors: %d floats do not fit dimension %d", len(flat), dimension)
	}
	raw := float32SliceToBytes(flat)
	h := vectorsHeader{
		Version:   vectorsVersion,
		Dimension: uint32(dimension),
		Count:     uint64(len(flat) / dimension),
		Checksum:  crc32.ChecksumIEEE(raw),
	}
	copy(h.Magic[:], vectorsMagic)

	payload := raw
	switch compression {
	case CompressionNone, "":
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		_ = enc.Close()
		h.Flags |= flagZstd
	default:
		return fmt.Errorf("unknown compression: %s (supported: none, zstd)", compression)
	}
	h.PayloadSize = uint64(len(payload))

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write vectors header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write vectors payload: %w", err)
	}
	return nil
}

// decodeVectors reads an artifact written by encodeVectors. Any inconsistency is
// reported as ErrCorrupt.
func decodeVectors(r io.Reader) (dimension int, flat []float32, err error) {
	var h vectorsHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return 0, nil, fmt.Errorf("%w: read vectors header: %v", ErrCorrupt, err)
	}
	if string(h.Magic[:]) != vectorsMagic {
		return 0, nil, fmt.Errorf("%w: bad vectors magic %q", ErrCorrupt, h.Magic[:])
	}
	if h.Version != vectorsVersion {
		return 0, nil, fmt.Errorf("%w: unsupported vectors version %d", ErrCorrupt, h.Version)
	}
	if h.Dimension == 0 {
		return 0, nil, fmt.Errorf("%w: zero dimension", ErrCorrupt)
	}
	if h.Count > math.MaxInt32/uint64(h.Dimension) {
		return 0, nil, fmt.Errorf("%w: implausible vector count %d", ErrCorrupt, h.Count)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read vectors payload: %w", err)
	}
	if uint64(len(payload)) != h.PayloadSize {
		return 0, nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(payload), h.PayloadSize)
	}
	rawSize := int(h.Count) * int(h.Dimension) * 4
	raw := payload
	if h.Flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return 0, nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return 0, nil, fmt.Errorf("%w: decompress vectors: %v", ErrCorrupt, err)
		}
	}
	if len(raw) != rawSize {
		return 0, nil, fmt.Errorf("%w: %d payload bytes for %d vectors of dimension %d", ErrCorrupt, len(raw), h.Count, h.Dimension)
	}
	if crc32.ChecksumIEEE(raw) != h.Checksum {
		return 0, nil, fmt.Errorf("%w: vectors checksum mismatch", ErrCorrupt)
	}
	return int(h.Dimension), bytesToFloat32Slice(raw), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

var errBlobLength = errors.New("embedding blob length is not a multiple of 4")
