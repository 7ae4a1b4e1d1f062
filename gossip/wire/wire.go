// Package wire implements the gossip frame format: a fixed header followed
// by a length-prefixed little-endian payload carrying a digest, a delta,
// or both, depending on the frame kind.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jorisvilardell/zuklink/cluster"
	"github.com/jorisvilardell/zuklink/internal/binario"
)

// ErrBadFrame is returned for any datagram that does not parse. Malformed
// frames are dropped by the engine, never surfaced to the caller.
var ErrBadFrame = errors.New("malformed frame")

const (
	// ProtocolVersion is bumped on incompatible format changes.
	ProtocolVersion = 0x01

	// HeaderSize is magic + version + kind.
	HeaderSize = 6
)

var frameMagic = [4]byte{0x5A, 0x55, 0x4B, 0x59} // "ZUKY"

// Kind identifies the role of a frame within a gossip round.
type Kind uint8

const (
	KindSyn    Kind = 0x01
	KindSynAck Kind = 0x02
	KindAck    Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindSyn:
		return "syn"
	case KindSynAck:
		return "synack"
	case KindAck:
		return "ack"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Frame is a decoded gossip datagram. Syn carries a digest, Ack carries a
// delta, SynAck carries both.
type Frame struct {
	Kind   Kind
	Digest cluster.Digest
	Delta  cluster.Delta
}

// EncodeFrame serializes the frame into a single datagram payload.
func EncodeFrame(f Frame) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+DigestSize(f.Digest)+DeltaSize(f.Delta)))
	buf.Write(frameMagic[:])
	buf.WriteByte(ProtocolVersion)
	buf.WriteByte(byte(f.Kind))

	w := binario.NewWriter(buf, binary.LittleEndian)

	switch f.Kind {
	case KindSyn:
		if err := writeDigest(w, f.Digest); err != nil {
			return nil, err
		}
	case KindSynAck:
		if err := writeDigest(w, f.Digest); err != nil {
			return nil, err
		}

		if err := writeDelta(w, f.Delta); err != nil {
			return nil, err
		}
	case KindAck:
		if err := writeDelta(w, f.Delta); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrBadFrame, f.Kind)
	}

	return buf.Bytes(), nil
}

// DecodeFrame parses a datagram. All input is untrusted: any violation of
// the format or of the key and value size limits fails the whole frame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame

	if len(b) < HeaderSize {
		return f, fmt.Errorf("%w: short frame (%d bytes)", ErrBadFrame, len(b))
	}

	if !bytes.Equal(b[:4], frameMagic[:]) {
		return f, fmt.Errorf("%w: bad magic", ErrBadFrame)
	}

	if b[4] != ProtocolVersion {
		return f, fmt.Errorf("%w: unsupported version %d", ErrBadFrame, b[4])
	}

	f.Kind = Kind(b[5])

	r := binario.NewReader(bytes.NewReader(b[HeaderSize:]), binary.LittleEndian)

	var err error

	switch f.Kind {
	case KindSyn:
		f.Digest, err = readDigest(r)
	case KindSynAck:
		if f.Digest, err = readDigest(r); err == nil {
			f.Delta, err = readDelta(r)
		}
	case KindAck:
		f.Delta, err = readDelta(r)
	default:
		return f, fmt.Errorf("%w: unknown kind %d", ErrBadFrame, b[5])
	}

	if err != nil {
		return f, err
	}

	return f, nil
}

func writeDigest(w *binario.Writer, d cluster.Digest) error {
	if err := w.WriteUint32(uint32(len(d))); err != nil {
		return err
	}

	for _, de := range d {
		if err := w.WriteShortString(string(de.ID)); err != nil {
			return err
		}

		if err := w.WriteUint64(de.Gen); err != nil {
			return err
		}

		if err := w.WriteUint64(de.MaxVersion); err != nil {
			return err
		}
	}

	return nil
}

func readDigest(r *binario.Reader) (cluster.Digest, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	// The tightest per-entry encoding is way above this, the check only
	// prevents absurd allocations from a corrupted count.
	if count > maxDigestEntries {
		return nil, fmt.Errorf("%w: digest count %d", ErrBadFrame, count)
	}

	digest := make(cluster.Digest, 0, count)

	for i := uint32(0); i < count; i++ {
		id, err := readNodeID(r)
		if err != nil {
			return nil, err
		}

		gen, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
		}

		maxVersion, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
		}

		digest = append(digest, cluster.DigestEntry{
			ID:         id,
			Gen:        gen,
			MaxVersion: maxVersion,
		})
	}

	return digest, nil
}

func writeDelta(w *binario.Writer, d cluster.Delta) error {
	if err := w.WriteUint32(uint32(len(d))); err != nil {
		return err
	}

	for _, nd := range d {
		if err := w.WriteShortString(string(nd.ID)); err != nil {
			return err
		}

		if err := w.WriteUint64(nd.Gen); err != nil {
			return err
		}

		if err := w.WriteUint32(uint32(len(nd.Entries))); err != nil {
			return err
		}

		for _, e := range nd.Entries {
			if err := writeEntry(w, e); err != nil {
				return err
			}
		}
	}

	return nil
}

func readDelta(r *binario.Reader) (cluster.Delta, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	if count > maxDeltaNodes {
		return nil, fmt.Errorf("%w: delta node count %d", ErrBadFrame, count)
	}

	delta := make(cluster.Delta, 0, count)

	for i := uint32(0); i < count; i++ {
		id, err := readNodeID(r)
		if err != nil {
			return nil, err
		}

		gen, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
		}

		entryCount, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadFrame, err)
		}

		if entryCount > maxDeltaEntries {
			return nil, fmt.Errorf("%w: delta entry count %d", ErrBadFrame, entryCount)
		}

		entries := make([]cluster.Entry, 0, entryCount)

		for j := uint32(0); j < entryCount; j++ {
			e, err := readEntry(r)
			if err != nil {
				return nil, err
			}

			entries = append(entries, e)
		}

		delta = append(delta, cluster.NodeDelta{
			ID:      id,
			Gen:     gen,
			Entries: entries,
		})
	}

	return delta, nil
}

func writeEntry(w *binario.Writer, e cluster.Entry) error {
	if err := w.WriteShortString(e.Key); err != nil {
		return err
	}

	if err := w.WriteUint64(e.Version); err != nil {
		return err
	}

	tombstone := uint8(0)
	if e.Tombstone {
		tombstone = 1
	}

	if err := w.WriteUint8(tombstone); err != nil {
		return err
	}

	return w.WriteString(e.Value)
}

func readEntry(r *binario.Reader) (cluster.Entry, error) {
	var e cluster.Entry

	key, err := r.ReadShortString()
	if err != nil {
		return e, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	if len(key) == 0 || len(key) > cluster.MaxKeySize {
		return e, fmt.Errorf("%w: key size %d", ErrBadFrame, len(key))
	}

	version, err := r.ReadUint64()
	if err != nil {
		return e, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	tombstone, err := r.ReadUint8()
	if err != nil {
		return e, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	valueLen, err := r.ReadUint32()
	if err != nil {
		return e, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	if valueLen > cluster.MaxValueSize {
		return e, fmt.Errorf("%w: value size %d", ErrBadFrame, valueLen)
	}

	value, err := r.ReadRaw(int(valueLen))
	if err != nil {
		return e, fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	e.Key = key
	e.Version = version
	e.Tombstone = tombstone != 0
	e.Value = string(value)

	return e, nil
}

func readNodeID(r *binario.Reader) (cluster.NodeID, error) {
	raw, err := r.ReadShortString()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadFrame, err)
	}

	id := cluster.NodeID(raw)
	if !id.Valid() {
		return "", fmt.Errorf("%w: invalid node id %q", ErrBadFrame, raw)
	}

	return id, nil
}

// Sanity caps for untrusted count prefixes. Real frames are bounded by the
// MTU budget long before these are reached.
const (
	maxDigestEntries = 1 << 16
	maxDeltaNodes    = 1 << 16
	maxDeltaEntries  = 1 << 20
)
