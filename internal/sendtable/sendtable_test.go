package sendtable

import (
	"errors"
	"testing"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// itemSchema схема с полями всех моделей
func itemSchema() *protocol.FlattenedSerializer {
	return &protocol.FlattenedSerializer{
		Symbols: []string{
			"CItem",    // 0
			"name",     // 1
			"char[32]", // 2
			"charges",  // 3
			"int32",    // 4
			"m_vecOrigin",
			"Vector",
			"coord",
			"m_hItems",
			"CNetworkUtlVectorBase< CHandle< CBaseEntity > >",
			"m_inner", // 10
			"CInner",
			"CInner*",
			"m_id",
			"uint32",
			"m_arr", // 15
			"uint16[4]",
		},
		Fields: []protocol.SerializerField{
			{VarNameSym: 1, VarTypeSym: 2},
			{VarNameSym: 3, VarTypeSym: 4},
			{VarNameSym: 5, VarTypeSym: 6, VarEncoderSym: 7, HasVarEncoder: true},
			{VarNameSym: 8, VarTypeSym: 9},
			{VarNameSym: 13, VarTypeSym: 14},
			{VarNameSym: 10, VarTypeSym: 12, FieldSerializerNameSym: 11, HasFieldSerializer: true},
			{VarNameSym: 15, VarTypeSym: 16},
		},
		Serializers: []protocol.SerializerEntry{
			{NameSym: 11, FieldsIndex: []int32{4}},
			{NameSym: 0, FieldsIndex: []int32{0, 1, 2, 3, 5, 6}},
		},
	}
}

func buildItem(t *testing.T) *Serializer {
	t.Helper()
	out, err := Build(itemSchema())
	require.NoError(t, err)
	s, ok := out["CItem"]
	require.True(t, ok)
	return s
}

func TestBuild_Models(t *testing.T) {
	s := buildItem(t)
	require.Len(t, s.Fields, 6)

	models := []FieldModel{ModelSimple, ModelSimple, ModelSimple, ModelVariableArray, ModelFixedTable, ModelFixedArray}
	for i, want := range models {
		if s.Fields[i].Model != want {
			t.Errorf("поле %s: модель %s, ожидалась %s", s.Fields[i].Name, s.Fields[i].Model, want)
		}
	}

	assert.Equal(t, DecodeString, s.Fields[0].Decoder.Kind)
	assert.Equal(t, DecodeVarInt, s.Fields[1].Decoder.Kind)
	assert.Equal(t, DecodeVector, s.Fields[2].Decoder.Kind)
	assert.Equal(t, FloatCoord, s.Fields[2].Decoder.Float)
	assert.Equal(t, DecodeVarUint, s.Fields[3].Decoder.Kind)
	assert.Equal(t, 4, s.Fields[5].Length)
	assert.Equal(t, float32(1), s.Fields[0].HighValue, "high_value по умолчанию 1")
}

func TestResolve(t *testing.T) {
	s := buildItem(t)

	cases := []struct {
		path []int32
		name string
		kind DecoderKind
	}{
		{[]int32{0}, "name", DecodeString},
		{[]int32{3}, "m_hItems", DecodeVarUint},
		{[]int32{3, 2}, "m_hItems.2", DecodeVarUint},
		{[]int32{4}, "m_inner", DecodeBool},
		{[]int32{4, 0}, "m_inner.m_id", DecodeVarUint},
		{[]int32{5, 3}, "m_arr.3", DecodeVarUint},
	}
	for _, c := range cases {
		name, dec, err := s.Resolve(NewFieldPath(c.path...))
		require.NoError(t, err, "путь %v", c.path)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.kind, dec.Kind, "путь %v", c.path)
	}

	for _, bad := range [][]int32{{9}, {5, 4}, {0, 1}} {
		_, _, err := s.Resolve(NewFieldPath(bad...))
		assert.Error(t, err, "путь %v должен быть ошибочным", bad)
	}
}

func TestPathOf(t *testing.T) {
	s := buildItem(t)

	fp, err := s.PathOf("m_inner.m_id")
	require.NoError(t, err)
	assert.Equal(t, NewFieldPath(4, 0), fp)

	fp, err = s.PathOf("m_hItems.2")
	require.NoError(t, err)
	assert.Equal(t, NewFieldPath(3, 2), fp)

	_, err = s.PathOf("missing")
	assert.Error(t, err)
	_, err = s.PathOf("name.extra")
	assert.Error(t, err)
}

func TestBuild_UnknownNestedSerializer(t *testing.T) {
	msg := itemSchema()
	msg.Serializers = msg.Serializers[1:]

	_, err := Build(msg)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := buildItem(t)
	b := buildItem(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	msg := itemSchema()
	msg.Fields[1].BitCount = 7
	out, err := Build(msg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), out["CItem"].Fingerprint())
}

func TestFieldPaths_RoundTrip(t *testing.T) {
	paths := []FieldPath{
		NewFieldPath(0),
		NewFieldPath(1),
		NewFieldPath(3),
		NewFieldPath(8),
		NewFieldPath(30),
		NewFieldPath(30, 0),
		NewFieldPath(30, 2),
		NewFieldPath(31),
		NewFieldPath(32, 1, 2),
		NewFieldPath(32, 1, 3),
		NewFieldPath(2),
	}

	w := bitstream.NewWriter()
	require.NoError(t, WriteFieldPaths(w, paths))

	got, err := ReadFieldPaths(bitstream.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, paths, got)
}

func TestReadFieldPaths_Ops(t *testing.T) {
	t.Run("PlusN", func(t *testing.T) {
		w := bitstream.NewWriter()
		writeOp(w, codePlusN)
		w.WriteFPBitVar(3)
		writeOp(w, opFinish)

		got, err := ReadFieldPaths(bitstream.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, []FieldPath{NewFieldPath(7)}, got)
	})

	t.Run("PopOnePlusOne на первом уровне", func(t *testing.T) {
		w := bitstream.NewWriter()
		writeOp(w, 27745)
		writeOp(w, opFinish)

		_, err := ReadFieldPaths(bitstream.NewReader(w.Bytes()))
		assert.True(t, errors.Is(err, ErrFieldPathDepth))
	})

	t.Run("обрыв потока", func(t *testing.T) {
		_, err := ReadFieldPaths(bitstream.NewReader(nil))
		assert.Error(t, err)
	})
}

func TestReadFields_RoundTrip(t *testing.T) {
	s := buildItem(t)

	values := []FieldValue{
		{NewFieldPath(0), "Boots"},
		{NewFieldPath(1), int64(3)},
		{NewFieldPath(2), [3]float32{1.5, -2, 0}},
		{NewFieldPath(3), uint64(2)},
		{NewFieldPath(3, 0), uint64(7)},
		{NewFieldPath(4, 0), uint64(42)},
		{NewFieldPath(5, 1), uint64(5)},
	}

	w := bitstream.NewWriter()
	require.NoError(t, WriteFields(w, s, values))

	st := NewState()
	fieldErrs, err := ReadFields(bitstream.NewReader(w.Bytes()), s, st)
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)

	want := map[string]any{
		"name":         "Boots",
		"charges":      int64(3),
		"m_vecOrigin":  [3]float32{1.5, -2, 0},
		"m_hItems":     uint64(2),
		"m_hItems.0":   uint64(7),
		"m_inner.m_id": uint64(42),
		"m_arr.1":      uint64(5),
	}
	for name, v := range want {
		p, ok := st.Lookup(name)
		require.True(t, ok, "поле %s не задано", name)
		assert.Equal(t, v, p.Value, "поле %s", name)
	}
	assert.Equal(t, len(want), st.Len())
	assert.Equal(t, Key("name"), st.Keys()[0], "порядок ключей - порядок установки")
}

func TestReadFields_BadLastPath(t *testing.T) {
	s := buildItem(t)

	w := bitstream.NewWriter()
	require.NoError(t, WriteFieldPaths(w, []FieldPath{NewFieldPath(0), NewFieldPath(9)}))
	w.WriteString("Boots")

	st := NewState()
	fieldErrs, err := ReadFields(bitstream.NewReader(w.Bytes()), s, st)
	var unresolved *UnresolvedPathError
	require.True(t, errors.As(err, &unresolved), "ожидалась UnresolvedPathError, получено %v", err)
	assert.Equal(t, NewFieldPath(9), unresolved.Path)
	require.Len(t, fieldErrs, 1)

	var fe *FieldDecodeError
	require.True(t, errors.As(error(fieldErrs[0]), &fe))
	assert.Equal(t, NewFieldPath(9), fe.Path)

	p, ok := st.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, "Boots", p.Value)
	assert.Equal(t, 1, st.Len())
}

func TestReadFields_BadPathInTheMiddle(t *testing.T) {
	s := buildItem(t)

	w := bitstream.NewWriter()
	require.NoError(t, WriteFieldPaths(w, []FieldPath{
		NewFieldPath(0),
		NewFieldPath(1, 5), // charges простое поле, вложенного индекса нет
		NewFieldPath(3),
	}))
	w.WriteString("Boots")
	w.WriteVarInt32(99)
	w.WriteVarUint32(2)

	st := NewState()
	fieldErrs, err := ReadFields(bitstream.NewReader(w.Bytes()), s, st)
	var unresolved *UnresolvedPathError
	require.True(t, errors.As(err, &unresolved), "ожидалась UnresolvedPathError, получено %v", err)
	assert.Equal(t, NewFieldPath(1, 5), unresolved.Path)

	require.Len(t, fieldErrs, 2, "неразрешимый путь и все следующие")
	assert.Equal(t, NewFieldPath(1, 5), fieldErrs[0].Path)
	assert.Equal(t, NewFieldPath(3), fieldErrs[1].Path)
	assert.ErrorIs(t, fieldErrs[1], ErrFieldSkipped)

	p, ok := st.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, "Boots", p.Value)
	assert.Equal(t, 1, st.Len(), "значение неизвестной ширины не попадает в следующие поля")
}

func TestQuantizedFloat(t *testing.T) {
	t.Run("без флагов", func(t *testing.T) {
		q := NewQuantizedFloat(8, 0, 0, 255)
		w := bitstream.NewWriter()
		w.WriteBits(51, 8)
		assert.InDelta(t, 51.0, q.Decode(bitstream.NewReader(w.Bytes())), 1e-3)
	})

	t.Run("ноль точно", func(t *testing.T) {
		q := NewQuantizedFloat(8, QuantizeEncodeZeroExactly, -10, 10)
		require.Equal(t, int32(QuantizeEncodeZeroExactly), q.Flags())

		w := bitstream.NewWriter()
		w.WriteBool(true)
		w.WriteBool(false)
		w.WriteBits(255, 8)
		r := bitstream.NewReader(w.Bytes())
		assert.Equal(t, float32(0), q.Decode(r))
		assert.InDelta(t, 10.0, q.Decode(r), 1e-4)
	})

	t.Run("округление вниз снимается", func(t *testing.T) {
		q := NewQuantizedFloat(8, QuantizeRoundDown, 0, 100)
		assert.Equal(t, int32(0), q.Flags())
	})

	t.Run("целые числа", func(t *testing.T) {
		q := NewQuantizedFloat(4, QuantizeEncodeIntegers, 0, 100)
		assert.Equal(t, uint(8), q.Bits())

		w := bitstream.NewWriter()
		w.WriteBits(100, 8)
		assert.InDelta(t, 100.0, q.Decode(bitstream.NewReader(w.Bytes())), 1e-3)
	})

	t.Run("без масштаба", func(t *testing.T) {
		q := NewQuantizedFloat(0, 0, 0, 1)
		w := bitstream.NewWriter()
		w.WriteFloat32(3.25)
		assert.Equal(t, float32(3.25), q.Decode(bitstream.NewReader(w.Bytes())))
	})
}

func TestDecoder_QAngleKeepsUnchangedComponents(t *testing.T) {
	d := &Decoder{Kind: DecodeQAngle, Components: 3, Float: FloatCoord}

	w := bitstream.NewWriter()
	w.WriteBool(false)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteCoord(45)

	got := d.Decode(bitstream.NewReader(w.Bytes()), [3]float32{10, 20, 30})
	assert.Equal(t, [3]float32{10, 45, 30}, got)
}

func TestDecoder_SimTimeAndFixed64(t *testing.T) {
	sim := newFloatDecoder(DecodeFloat, 1, &Field{Name: "m_flSimulationTime"})
	require.Equal(t, FloatSimTime, sim.Float)

	w := bitstream.NewWriter()
	w.WriteVarUint64(90)
	require.NoError(t, fixed64Decoder.Encode(w, uint64(0x1122334455667788)))

	r := bitstream.NewReader(w.Bytes())
	assert.InDelta(t, 3.0, sim.Decode(r, nil), 1e-5)
	assert.Equal(t, uint64(0x1122334455667788), fixed64Decoder.Decode(r, nil))
}

func TestState_CloneIsIndependent(t *testing.T) {
	st := NewState()
	st.Set("a", uint64(1))
	st.Set("b", "x")

	cp := st.Clone()
	st.Set("a", uint64(2))
	st.Set("c", true)

	p, _ := cp.Lookup("a")
	assert.Equal(t, uint64(1), p.Value)
	assert.Equal(t, 2, cp.Len())

	cp.Merge(st)
	assert.Equal(t, []uint64{Key("a"), Key("b"), Key("c")}, cp.Keys())
}
