package bitstream

import "math"

// Writer собирает битовый поток в том же порядке бит, что читает Reader.
// Используется для построения тестовых данных и в утилитах.
type Writer struct {
	buf []byte
	pos uint64
}

// NewWriter создает пустой писатель
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes возвращает записанные данные (последний байт дополнен нулями)
func (w *Writer) Bytes() []byte { return w.buf }

// BitLen возвращает количество записанных бит
func (w *Writer) BitLen() uint64 { return w.pos }

// WriteBits записывает младшие n бит значения v
func (w *Writer) WriteBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		if w.pos&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v&(1<<i) != 0 {
			w.buf[w.pos>>3] |= 1 << (w.pos & 7)
		}
		w.pos++
	}
}

// WriteBool записывает один бит
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(0, 1)
}

// WriteUint8 записывает 8 бит
func (w *Writer) WriteUint8(b byte) {
	w.WriteBits(uint32(b), 8)
}

// WriteBytes записывает байты без выравнивания
func (w *Writer) WriteBytes(p []byte) {
	for _, b := range p {
		w.WriteBits(uint32(b), 8)
	}
}

// WriteVarUint64 записывает protobuf varint
func (w *Writer) WriteVarUint64(v uint64) {
	for v >= 0x80 {
		w.WriteBits(uint32(v&0x7f|0x80), 8)
		v >>= 7
	}
	w.WriteBits(uint32(v), 8)
}

// WriteVarUint32 записывает protobuf varint
func (w *Writer) WriteVarUint32(v uint32) {
	w.WriteVarUint64(uint64(v))
}

// WriteVarInt32 записывает zigzag varint
func (w *Writer) WriteVarInt32(v int32) {
	w.WriteVarUint32(uint32(v<<1) ^ uint32(v>>31))
}

// WriteVarInt64 записывает zigzag varint
func (w *Writer) WriteVarInt64(v int64) {
	w.WriteVarUint64(uint64(v<<1) ^ uint64(v>>63))
}

// WriteUBitVar записывает идентификатор в формате ReadUBitVar
func (w *Writer) WriteUBitVar(v uint32) {
	rest := v >> 4
	switch {
	case v < 16:
		w.WriteBits(v, 6)
	case rest < 1<<4:
		w.WriteBits(v&15|16, 6)
		w.WriteBits(rest, 4)
	case rest < 1<<8:
		w.WriteBits(v&15|32, 6)
		w.WriteBits(rest, 8)
	default:
		w.WriteBits(v&15|48, 6)
		w.WriteBits(rest, 28)
	}
}

// WriteFPBitVar записывает компоненту пути поля
func (w *Writer) WriteFPBitVar(v uint32) {
	switch {
	case v < 1<<2:
		w.WriteBool(true)
		w.WriteBits(v, 2)
	case v < 1<<4:
		w.WriteBits(0b10, 2)
		w.WriteBits(v, 4)
	case v < 1<<10:
		w.WriteBits(0b100, 3)
		w.WriteBits(v, 10)
	case v < 1<<17:
		w.WriteBits(0b1000, 4)
		w.WriteBits(v, 17)
	default:
		w.WriteBits(0, 4)
		w.WriteBits(v, 31)
	}
}

// WriteString записывает строку с нулевым терминатором
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
	w.WriteBits(0, 8)
}

// WriteFloat32 записывает 32 бита IEEE-754
func (w *Writer) WriteFloat32(f float32) {
	w.WriteBits(math.Float32bits(f), 32)
}

// WriteCoord записывает координату в формате ReadCoord.
// Значения округляются до 1/32.
func (w *Writer) WriteCoord(f float32) {
	negative := f < 0
	if negative {
		f = -f
	}
	intval := uint32(f)
	fractval := uint32((f-float32(intval))*32 + 0.5)
	if fractval == 32 {
		intval++
		fractval = 0
	}

	hasInt := intval != 0
	hasFract := fractval != 0
	w.WriteBool(hasInt)
	w.WriteBool(hasFract)
	if !hasInt && !hasFract {
		return
	}
	w.WriteBool(negative)
	if hasInt {
		w.WriteBits(intval-1, 14)
	}
	if hasFract {
		w.WriteBits(fractval, 5)
	}
}
