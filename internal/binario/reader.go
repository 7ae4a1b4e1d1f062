package binario

import (
	"encoding/binary"
	"io"
)

type Reader struct {
	byteOrder binary.ByteOrder
	reader    io.Reader
	scratch   [8]byte
}

func NewReader(reader io.Reader, byteOrder binary.ByteOrder) *Reader {
	return &Reader{
		reader:    reader,
		byteOrder: byteOrder,
	}
}

func (r *Reader) ReadUint8() (uint8, error) {
	bs := r.scratch[:1]
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return bs[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	bs := r.scratch[:2]
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return r.byteOrder.Uint16(bs), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	bs := r.scratch[:4]
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return r.byteOrder.Uint32(bs), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	bs := r.scratch[:8]
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return r.byteOrder.Uint64(bs), nil
}

// ReadRaw reads exactly length bytes without a length prefix.
func (r *Reader) ReadRaw(length int) ([]byte, error) {
	return r.readN(length)
}

func (r *Reader) readN(length int) ([]byte, error) {
	bs := make([]byte, length)
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return nil, err
	}

	return bs, nil
}

// ReadBytes reads a uint32 length prefix followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	length, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	return r.readN(int(length))
}

func (r *Reader) ReadString() (string, error) {
	bs, err := r.ReadBytes()
	return string(bs), err
}

// ReadShortString reads a uint16 length prefix followed by that many bytes.
func (r *Reader) ReadShortString() (string, error) {
	length, err := r.ReadUint16()
	if err != nil {
		return "", err
	}

	bs, err := r.readN(int(length))

	return string(bs), err
}
