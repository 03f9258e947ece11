package sendtable

import (
	"fmt"
	"math"

	"github.com/annel0/demoparse/internal/bitstream"
)

// DecoderKind стратегия декодирования значения поля.
// Выбирается один раз при построении схемы.
type DecoderKind uint8

const (
	DecodeVarUint DecoderKind = iota
	DecodeBool
	DecodeVarInt
	DecodeFixed64
	DecodeFloat
	DecodeVector
	DecodeNormal
	DecodeQAngle
	DecodeQAnglePitchYaw
	DecodeString
	DecodeResource
)

var decoderKindNames = [...]string{
	DecodeVarUint:        "varuint",
	DecodeBool:           "bool",
	DecodeVarInt:         "varint",
	DecodeFixed64:        "fixed64",
	DecodeFloat:          "float",
	DecodeVector:         "vector",
	DecodeNormal:         "normal",
	DecodeQAngle:         "qangle",
	DecodeQAnglePitchYaw: "qangle_pitch_yaw",
	DecodeString:         "string",
	DecodeResource:       "resource",
}

func (k DecoderKind) String() string {
	if int(k) < len(decoderKindNames) {
		return decoderKindNames[k]
	}
	return fmt.Sprintf("decoder(%d)", uint8(k))
}

// FloatEncoding способ кодирования одной float-компоненты
type FloatEncoding uint8

const (
	FloatNoScale FloatEncoding = iota
	FloatCoord
	FloatQuantized
	FloatSimTime
)

const (
	maxStringSize = 1024
	simTimeStep   = 1.0 / 30
)

// Decoder декодер значения поля.
// Результат всегда одного из типов: bool, uint64, int64, float32,
// string, [2]float32, [3]float32, [4]float32.
type Decoder struct {
	Kind       DecoderKind
	Float      FloatEncoding
	Components int
	Bits       uint

	quant *QuantizedFloat
}

var (
	boolDecoder     = &Decoder{Kind: DecodeBool}
	varUintDecoder  = &Decoder{Kind: DecodeVarUint}
	varIntDecoder   = &Decoder{Kind: DecodeVarInt}
	stringDecoder   = &Decoder{Kind: DecodeString}
	fixed64Decoder  = &Decoder{Kind: DecodeFixed64}
	resourceDecoder = &Decoder{Kind: DecodeResource}
)

// newFloatDecoder выбирает кодирование float по параметрам поля
func newFloatDecoder(kind DecoderKind, components int, f *Field) *Decoder {
	d := &Decoder{Kind: kind, Components: components}
	switch {
	case f.Encoder == "coord":
		d.Float = FloatCoord
	case f.Name == "m_flSimulationTime" || f.Name == "m_flAnimTime":
		d.Float = FloatSimTime
	case f.BitCount <= 0 || f.BitCount >= 32:
		d.Float = FloatNoScale
	default:
		d.Float = FloatQuantized
		d.quant = NewQuantizedFloat(f.BitCount, f.EncodeFlags, f.LowValue, f.HighValue)
		d.Bits = d.quant.Bits()
	}
	return d
}

func (d *Decoder) readFloat(r *bitstream.Reader) float32 {
	switch d.Float {
	case FloatCoord:
		return r.ReadCoord()
	case FloatSimTime:
		return float32(r.ReadVarUint64()) * simTimeStep
	case FloatQuantized:
		return d.quant.Decode(r)
	}
	return r.ReadFloat32()
}

// Decode читает одно значение. prev нужен только углам без фиксированной
// разрядности: они передают лишь изменившиеся компоненты.
func (d *Decoder) Decode(r *bitstream.Reader, prev any) any {
	switch d.Kind {
	case DecodeBool:
		return r.ReadBool()
	case DecodeVarInt:
		return r.ReadVarInt64()
	case DecodeFixed64:
		lo := uint64(r.ReadBits(32))
		hi := uint64(r.ReadBits(32))
		return hi<<32 | lo
	case DecodeFloat:
		return d.readFloat(r)
	case DecodeVector:
		return d.readVector(r)
	case DecodeNormal:
		return r.Read3BitNormal()
	case DecodeQAngle:
		return d.readQAngle(r, prev)
	case DecodeQAnglePitchYaw:
		return [3]float32{r.ReadAngle(d.Bits), r.ReadAngle(d.Bits), 0}
	case DecodeString:
		return r.ReadString(maxStringSize)
	case DecodeResource:
		return r.ReadVarUint64()
	}
	return r.ReadVarUint64()
}

func (d *Decoder) readVector(r *bitstream.Reader) any {
	switch d.Components {
	case 2:
		return [2]float32{d.readFloat(r), d.readFloat(r)}
	case 4:
		return [4]float32{d.readFloat(r), d.readFloat(r), d.readFloat(r), d.readFloat(r)}
	}
	return [3]float32{d.readFloat(r), d.readFloat(r), d.readFloat(r)}
}

// readQAngle: при Bits == 0 передаются только изменившиеся компоненты
func (d *Decoder) readQAngle(r *bitstream.Reader, prev any) [3]float32 {
	if d.Bits != 0 {
		return [3]float32{d.readFloat(r), d.readFloat(r), d.readFloat(r)}
	}

	out, _ := prev.([3]float32)
	has := [3]bool{r.ReadBool(), r.ReadBool(), r.ReadBool()}
	for i := range out {
		if has[i] {
			out[i] = r.ReadCoord()
		}
	}
	return out
}

// Encode записывает значение в формате Decode.
// Квантованные float и нормали не поддерживаются: они нужны только при чтении.
func (d *Decoder) Encode(w *bitstream.Writer, v any) error {
	switch d.Kind {
	case DecodeBool:
		b, ok := v.(bool)
		if !ok {
			return d.typeError(v)
		}
		w.WriteBool(b)
	case DecodeVarUint, DecodeResource:
		u, ok := toUint64(v)
		if !ok {
			return d.typeError(v)
		}
		w.WriteVarUint64(u)
	case DecodeVarInt:
		i, ok := toInt64(v)
		if !ok {
			return d.typeError(v)
		}
		w.WriteVarInt64(i)
	case DecodeFixed64:
		u, ok := toUint64(v)
		if !ok {
			return d.typeError(v)
		}
		w.WriteBits(uint32(u), 32)
		w.WriteBits(uint32(u>>32), 32)
	case DecodeString:
		s, ok := v.(string)
		if !ok {
			return d.typeError(v)
		}
		w.WriteString(s)
	case DecodeFloat:
		f, ok := v.(float32)
		if !ok {
			return d.typeError(v)
		}
		return d.writeFloat(w, f)
	case DecodeVector, DecodeQAngle:
		var comps []float32
		switch vec := v.(type) {
		case [2]float32:
			comps = vec[:]
		case [3]float32:
			comps = vec[:]
		case [4]float32:
			comps = vec[:]
		default:
			return d.typeError(v)
		}
		if d.Kind == DecodeQAngle && d.Bits == 0 {
			for range comps {
				w.WriteBool(true)
			}
		}
		for _, c := range comps {
			if err := d.writeFloat(w, c); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("кодирование %s не поддерживается", d.Kind)
	}
	return nil
}

func (d *Decoder) writeFloat(w *bitstream.Writer, f float32) error {
	switch d.Float {
	case FloatNoScale:
		w.WriteBits(math.Float32bits(f), 32)
	case FloatCoord:
		w.WriteCoord(f)
	case FloatSimTime:
		w.WriteVarUint64(uint64(math.Round(float64(f) / simTimeStep)))
	default:
		return fmt.Errorf("кодирование квантованного float не поддерживается")
	}
	return nil
}

func (d *Decoder) typeError(v any) error {
	return fmt.Errorf("значение %T не подходит для декодера %s", v, d.Kind)
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}
