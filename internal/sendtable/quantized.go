package sendtable

import (
	"math"

	"github.com/annel0/demoparse/internal/bitstream"
)

// Флаги кодирования квантованных float
const (
	QuantizeRoundDown         = 1 << 0
	QuantizeRoundUp           = 1 << 1
	QuantizeEncodeZeroExactly = 1 << 2
	QuantizeEncodeIntegers    = 1 << 3
)

// QuantizedFloat декодер float, закодированного bits битами в диапазоне [low, high]
type QuantizedFloat struct {
	low        float32
	high       float32
	highLowMul float32
	decodeMul  float32
	bits       uint
	flags      int32
	noScale    bool
}

// NewQuantizedFloat подготавливает множители так же, как кодировщик сервера
func NewQuantizedFloat(bits, flags int32, low, high float32) *QuantizedFloat {
	q := &QuantizedFloat{low: low, high: high, bits: uint(bits)}
	if bits <= 0 || bits >= 32 {
		q.noScale = true
		return q
	}

	q.validateFlags(flags)
	steps := uint32(1) << q.bits

	if q.flags&QuantizeRoundDown != 0 {
		q.high -= (q.high - q.low) / float32(steps)
	} else if q.flags&QuantizeRoundUp != 0 {
		q.low += (q.high - q.low) / float32(steps)
	}

	if q.flags&QuantizeEncodeIntegers != 0 {
		delta := int32(q.high) - int32(q.low)
		if delta < 1 {
			delta = 1
		}
		rng := int32(1) << (int32(math.Ceil(math.Log2(float64(delta)))) + 1)

		b := q.bits
		for int32(1)<<b < rng {
			b++
		}
		if b > q.bits {
			q.bits = b
			steps = uint32(1) << q.bits
		}
		q.high = q.low + float32(rng) - float32(rng)/float32(steps)
	}

	q.assignMultipliers(steps)

	if q.flags&QuantizeRoundDown != 0 && q.quantize(q.low) == q.low {
		q.flags &^= QuantizeRoundDown
	}
	if q.flags&QuantizeRoundUp != 0 && q.quantize(q.high) == q.high {
		q.flags &^= QuantizeRoundUp
	}
	if q.flags&QuantizeEncodeZeroExactly != 0 && q.quantize(0) == 0 {
		q.flags &^= QuantizeEncodeZeroExactly
	}
	return q
}

func (q *QuantizedFloat) validateFlags(flags int32) {
	q.flags = flags
	if (q.low == 0 && q.flags&QuantizeRoundDown != 0) || (q.high == 0 && q.flags&QuantizeRoundUp != 0) {
		q.flags &^= QuantizeEncodeZeroExactly
	}
	if q.low == 0 && q.flags&QuantizeEncodeZeroExactly != 0 {
		q.flags |= QuantizeRoundDown
		q.flags &^= QuantizeEncodeZeroExactly
	}
	if q.high == 0 && q.flags&QuantizeEncodeZeroExactly != 0 {
		q.flags |= QuantizeRoundUp
		q.flags &^= QuantizeEncodeZeroExactly
	}
	if !(q.low < 0 && q.high > 0) {
		q.flags &^= QuantizeEncodeZeroExactly
	}
	if q.flags&QuantizeEncodeIntegers != 0 {
		q.flags &^= QuantizeRoundUp | QuantizeRoundDown | QuantizeEncodeZeroExactly
	}
}

func (q *QuantizedFloat) assignMultipliers(steps uint32) {
	rng := q.high - q.low

	var highVal uint32
	if q.bits == 32 {
		highVal = 0xfffffffe
	} else {
		highVal = uint32(1)<<q.bits - 1
	}

	overflows := func() bool {
		v := q.highLowMul * rng
		return uint32(v) > highVal || float64(v) > float64(highVal)
	}

	if math.Abs(float64(rng)) <= 0 {
		q.highLowMul = float32(highVal)
	} else {
		q.highLowMul = float32(highVal) / rng
	}

	if overflows() {
		for _, mul := range []float32{0.9999, 0.99, 0.9, 0.8, 0.7} {
			q.highLowMul = float32(highVal) / rng * mul
			if !overflows() {
				break
			}
		}
	}

	q.decodeMul = 1.0 / float32(steps-1)
}

func (q *QuantizedFloat) quantize(f float32) float32 {
	if f < q.low {
		return q.low
	}
	if f > q.high {
		return q.high
	}
	i := uint32((f - q.low) * q.highLowMul)
	return q.low + (q.high-q.low)*(float32(i)*q.decodeMul)
}

// Decode читает одно значение
func (q *QuantizedFloat) Decode(r *bitstream.Reader) float32 {
	if q.noScale {
		return r.ReadFloat32()
	}
	if q.flags&QuantizeRoundDown != 0 && r.ReadBool() {
		return q.low
	}
	if q.flags&QuantizeRoundUp != 0 && r.ReadBool() {
		return q.high
	}
	if q.flags&QuantizeEncodeZeroExactly != 0 && r.ReadBool() {
		return 0
	}
	u := r.ReadBits(q.bits)
	return q.low + (q.high-q.low)*(float32(u)*q.decodeMul)
}

// Bits итоговая разрядность (может вырасти при QuantizeEncodeIntegers)
func (q *QuantizedFloat) Bits() uint { return q.bits }

// Flags итоговые флаги после нормализации
func (q *QuantizedFloat) Flags() int32 { return q.flags }
