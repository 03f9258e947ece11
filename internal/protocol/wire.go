package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireField одно поле protobuf-сообщения, прочитанное без схемы
type wireField struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
}

// forEachField обходит поля сообщения в порядке следования
func forEachField(b []byte, fn func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.fixed = uint64(v)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f wireField) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("поле %d: неверный тип %d, ожидался %d", f.num, f.typ, typ)
	}
	return nil
}

func (f wireField) asUint() (uint64, error) {
	return f.varint, f.expect(protowire.VarintType)
}

func (f wireField) asInt32() (int32, error) {
	return int32(f.varint), f.expect(protowire.VarintType)
}

func (f wireField) asBool() (bool, error) {
	return f.varint != 0, f.expect(protowire.VarintType)
}

func (f wireField) asFloat() (float32, error) {
	return math.Float32frombits(uint32(f.fixed)), f.expect(protowire.Fixed32Type)
}

func (f wireField) asBytes() ([]byte, error) {
	return f.bytes, f.expect(protowire.BytesType)
}

func (f wireField) asString() (string, error) {
	return string(f.bytes), f.expect(protowire.BytesType)
}

// asInt32s читает repeated int32 как в упакованном, так и в обычном виде
func (f wireField) asInt32s(dst []int32) ([]int32, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, int32(f.varint)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			dst = append(dst, int32(v))
			b = b[n:]
		}
		return dst, nil
	}
	return dst, f.expect(protowire.VarintType)
}

// Вспомогательные функции кодирования; нулевые значения не пишутся

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32Field(b []byte, num protowire.Number, v int32) []byte {
	return appendVarintField(b, num, uint64(int64(v)))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintField(b, num, 1)
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessageField пишет вложенное сообщение даже если оно пустое
func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// appendTaggedVarint пишет varint-поле даже при нулевом значении
func appendTaggedVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendTaggedFloat пишет float-поле даже при нулевом значении
func appendTaggedFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}
