package bitstream

import (
	"errors"
	"math"
)

// ErrOverflow возвращается, когда чтение выходит за конец буфера
var ErrOverflow = errors.New("bitstream overflow")

const (
	maxVarint32Bytes = 5
	maxVarint64Bytes = 10
)

// Reader читает битовый поток, младшие биты идут первыми.
// Ошибка переполнения "залипает": после неё все чтения возвращают нули,
// а вызывающий код проверяет Err() один раз в конце блока.
type Reader struct {
	buf  []byte
	pos  uint64 // позиция в битах
	size uint64 // размер в битах
	err  error
}

// NewReader создает читатель поверх буфера (буфер не копируется)
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, size: uint64(len(buf)) * 8}
}

// Err возвращает первую ошибку чтения
func (r *Reader) Err() error { return r.err }

// Position возвращает текущую позицию в битах
func (r *Reader) Position() uint64 { return r.pos }

// Size возвращает размер потока в битах
func (r *Reader) Size() uint64 { return r.size }

// Remaining возвращает количество непрочитанных бит
func (r *Reader) Remaining() uint64 {
	if r.pos >= r.size {
		return 0
	}
	return r.size - r.pos
}

// Skip пропускает n бит без декодирования
func (r *Reader) Skip(n uint64) {
	if r.pos+n > r.size {
		r.fail()
		return
	}
	r.pos += n
}

func (r *Reader) fail() {
	if r.err == nil {
		r.err = ErrOverflow
	}
	r.pos = r.size
}

// ReadBits читает до 32 бит
func (r *Reader) ReadBits(n uint) uint32 {
	if n == 0 || r.err != nil {
		return 0
	}
	if n > 32 || r.pos+uint64(n) > r.size {
		r.fail()
		return 0
	}

	idx := int(r.pos >> 3)
	shift := r.pos & 7

	var v uint64
	for i := 0; i < 5 && idx+i < len(r.buf); i++ {
		v |= uint64(r.buf[idx+i]) << (8 * uint(i))
	}
	v >>= shift

	r.pos += uint64(n)
	return uint32(v & (1<<n - 1))
}

// ReadBool читает один бит
func (r *Reader) ReadBool() bool {
	return r.ReadBits(1) == 1
}

// ReadUint8 читает 8 бит
func (r *Reader) ReadUint8() byte {
	return byte(r.ReadBits(8))
}

// ReadBytes читает n байт (позиция может быть не выровнена)
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || r.pos+uint64(n)*8 > r.size {
		r.fail()
		return nil
	}
	out := make([]byte, n)
	if r.pos&7 == 0 {
		start := r.pos >> 3
		copy(out, r.buf[start:start+uint64(n)])
		r.pos += uint64(n) * 8
		return out
	}
	for i := range out {
		out[i] = r.ReadUint8()
	}
	return out
}

// ReadBitsToBytes читает произвольное количество бит в байтовый срез
func (r *Reader) ReadBitsToBytes(n uint) []byte {
	out := make([]byte, 0, (n+7)/8)
	for n >= 8 {
		out = append(out, r.ReadUint8())
		n -= 8
	}
	if n > 0 {
		out = append(out, byte(r.ReadBits(n)))
	}
	return out
}

// ReadVarUint32 читает protobuf varint (не более 5 байт)
func (r *Reader) ReadVarUint32() uint32 {
	var v uint32
	for i := 0; i < maxVarint32Bytes; i++ {
		b := uint32(r.ReadUint8())
		v |= (b & 0x7f) << (7 * uint(i))
		if b&0x80 == 0 || r.err != nil {
			break
		}
	}
	return v
}

// ReadVarUint64 читает protobuf varint (не более 10 байт)
func (r *Reader) ReadVarUint64() uint64 {
	var v uint64
	for i := 0; i < maxVarint64Bytes; i++ {
		b := uint64(r.ReadUint8())
		v |= (b & 0x7f) << (7 * uint(i))
		if b&0x80 == 0 || r.err != nil {
			break
		}
	}
	return v
}

// ReadVarInt32 читает zigzag varint
func (r *Reader) ReadVarInt32() int32 {
	v := r.ReadVarUint32()
	return int32(v>>1) ^ -int32(v&1)
}

// ReadVarInt64 читает zigzag varint
func (r *Reader) ReadVarInt64() int64 {
	v := r.ReadVarUint64()
	return int64(v>>1) ^ -int64(v&1)
}

// ReadUBitVar читает идентификатор переменной длины (6 бит + расширение)
func (r *Reader) ReadUBitVar() uint32 {
	v := r.ReadBits(6)
	switch v & 0x30 {
	case 16:
		v = (v & 15) | (r.ReadBits(4) << 4)
	case 32:
		v = (v & 15) | (r.ReadBits(8) << 4)
	case 48:
		v = (v & 15) | (r.ReadBits(28) << 4)
	}
	return v
}

// ReadFPBitVar читает компоненту пути поля
func (r *Reader) ReadFPBitVar() uint32 {
	switch {
	case r.ReadBool():
		return r.ReadBits(2)
	case r.ReadBool():
		return r.ReadBits(4)
	case r.ReadBool():
		return r.ReadBits(10)
	case r.ReadBool():
		return r.ReadBits(17)
	}
	return r.ReadBits(31)
}

// ReadString читает строку до нулевого байта.
// Строки длиннее limit обрезаются, но поток дочитывается до терминатора.
func (r *Reader) ReadString(limit int) string {
	out := make([]byte, 0, 32)
	for r.err == nil {
		c := r.ReadUint8()
		if c == 0 {
			break
		}
		if len(out) < limit {
			out = append(out, c)
		}
	}
	return string(out)
}

// ReadCoord читает координату: целая часть 14 бит, дробная 5 бит
func (r *Reader) ReadCoord() float32 {
	hasInt := r.ReadBool()
	hasFract := r.ReadBool()
	if !hasInt && !hasFract {
		return 0
	}

	negative := r.ReadBool()
	var intval, fractval uint32
	if hasInt {
		intval = r.ReadBits(14) + 1
	}
	if hasFract {
		fractval = r.ReadBits(5)
	}

	v := float32(intval) + float32(fractval)*(1.0/(1<<5))
	if negative {
		return -v
	}
	return v
}

// ReadAngle читает угол из n бит в градусах
func (r *Reader) ReadAngle(n uint) float32 {
	return float32(r.ReadBits(n)) * 360.0 / float32(uint64(1)<<n)
}

// ReadNormal читает компоненту нормали: знак + 11 бит
func (r *Reader) ReadNormal() float32 {
	negative := r.ReadBool()
	v := float32(r.ReadBits(11)) * (1.0 / float32((1<<11)-1))
	if negative {
		return -v
	}
	return v
}

// Read3BitNormal читает единичный вектор, z восстанавливается из x и y
func (r *Reader) Read3BitNormal() [3]float32 {
	var out [3]float32
	hasX := r.ReadBool()
	hasY := r.ReadBool()
	if hasX {
		out[0] = r.ReadNormal()
	}
	if hasY {
		out[1] = r.ReadNormal()
	}
	negZ := r.ReadBool()

	sum := out[0]*out[0] + out[1]*out[1]
	if sum < 1 {
		out[2] = float32(math.Sqrt(float64(1 - sum)))
	}
	if negZ {
		out[2] = -out[2]
	}
	return out
}

// ReadFloat32 читает 32 бита как IEEE-754
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadBits(32))
}
