package binario

import (
	"encoding/binary"
	"io"
	"math"
)

type Writer struct {
	writer    io.Writer
	byteOrder binary.ByteOrder
	scratch   [8]byte
}

func NewWriter(writer io.Writer, byteOrder binary.ByteOrder) *Writer {
	return &Writer{
		writer:    writer,
		byteOrder: byteOrder,
	}
}

func (w *Writer) WriteUint8(value uint8) error {
	bs := w.scratch[:1]
	bs[0] = value
	_, err := w.writer.Write(bs)

	return err
}

func (w *Writer) WriteUint16(value uint16) error {
	bs := w.scratch[:2]
	w.byteOrder.PutUint16(bs, value)
	_, err := w.writer.Write(bs)

	return err
}

func (w *Writer) WriteUint32(value uint32) error {
	bs := w.scratch[:4]
	w.byteOrder.PutUint32(bs, value)
	_, err := w.writer.Write(bs)

	return err
}

func (w *Writer) WriteUint64(value uint64) error {
	bs := w.scratch[:8]
	w.byteOrder.PutUint64(bs, value)
	_, err := w.writer.Write(bs)

	return err
}

// WriteBytes writes a uint32 length prefix followed by the bytes.
func (w *Writer) WriteBytes(value []byte) error {
	if err := w.WriteUint32(uint32(len(value))); err != nil {
		return err
	}

	_, err := w.writer.Write(value)

	return err
}

func (w *Writer) WriteString(value string) error {
	return w.WriteBytes([]byte(value))
}

// WriteShortString writes a uint16 length prefix followed by the bytes.
// Strings longer than math.MaxUint16 are truncated at the limit.
func (w *Writer) WriteShortString(value string) error {
	if len(value) > math.MaxUint16 {
		value = value[:math.MaxUint16]
	}

	if err := w.WriteUint16(uint16(len(value))); err != nil {
		return err
	}

	_, err := w.writer.Write([]byte(value))

	return err
}
