package stringtable

import (
	"testing"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/demo"
	"github.com/annel0/demoparse/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityNames_ResetAndLookup(t *testing.T) {
	m := NewManager()
	m.Create("EntityNames", Options{}, []Entry{{Index: 0, Key: "old0"}, {Index: 7, Key: "old7"}})

	err := m.Update("EntityNames", []Entry{{Index: 0, Key: "hero1"}, {Index: 1, Key: "hero2"}}, true)
	require.NoError(t, err)

	tbl, ok := m.ByName("EntityNames")
	require.True(t, ok)

	e, ok := tbl.ByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "hero2", e.Key)

	_, ok = tbl.ByIndex(5)
	assert.False(t, ok, "пустой слот должен возвращать отсутствие, а не ошибку")

	_, ok = tbl.ByIndex(7)
	assert.False(t, ok, "полный сброс должен удалять прежние записи")

	_, ok = m.LookupByKey("EntityNames", "old0")
	assert.False(t, ok)
}

func TestFullReset_EquivalentToFreshTable(t *testing.T) {
	set := []Entry{
		{Index: 0, Key: "a", Value: []byte("1")},
		{Index: 1, Key: "b", Value: []byte("2")},
		{Index: 4, Key: "c", Value: []byte("3")},
	}

	reset := NewManager()
	reset.Create("t", Options{}, []Entry{{Index: 0, Key: "x", Value: []byte("9")}, {Index: 2, Key: "b", Value: []byte("old")}})
	require.NoError(t, reset.Update("t", set, true))

	fresh := NewManager()
	fresh.Create("t", Options{}, set)

	for _, key := range []string{"a", "b", "c", "x", "missing"} {
		v1, ok1 := reset.LookupByKey("t", key)
		v2, ok2 := fresh.LookupByKey("t", key)
		assert.Equal(t, ok2, ok1, "ключ %q", key)
		assert.Equal(t, v2, v1, "ключ %q", key)
	}

	rt, _ := reset.ByName("t")
	ft, _ := fresh.ByName("t")
	assert.Equal(t, ft.Entries(), rt.Entries())
}

func TestUpdate_MergeKeepsUnchangedParts(t *testing.T) {
	m := NewManager()
	m.Create("t", Options{}, []Entry{{Index: 0, Key: "k", Value: []byte("v1")}})

	require.NoError(t, m.Update("t", []Entry{{Index: 0, Value: []byte("v2")}}, false))
	v, ok := m.LookupByKey("t", "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, m.Update("t", []Entry{{Index: 0, Key: "renamed"}}, false))
	key, ok := m.LookupByIndex("t", 0)
	require.True(t, ok)
	assert.Equal(t, "renamed", key)
	v, _ = m.LookupByKey("t", "renamed")
	assert.Equal(t, []byte("v2"), v, "значение не должно меняться при смене ключа")
	_, ok = m.LookupByKey("t", "k")
	assert.False(t, ok)

	assert.Error(t, m.Update("missing", nil, false))
}

func TestEmptyKey_NotIndexed(t *testing.T) {
	m := NewManager()
	m.Create("t", Options{}, []Entry{
		{Index: 0, Value: []byte("без ключа")},
		{Index: 1, Key: "k", Value: []byte("v")},
	})

	tbl, ok := m.ByName("t")
	require.True(t, ok)
	_, ok = tbl.ByKey("")
	assert.False(t, ok, "запись без ключа не должна находиться по пустому ключу")
	_, ok = m.LookupByKey("t", "")
	assert.False(t, ok)

	e, ok := tbl.ByIndex(0)
	require.True(t, ok, "по индексу запись доступна")
	assert.Equal(t, []byte("без ключа"), e.Value)

	t.Run("ключ назначен позже", func(t *testing.T) {
		require.NoError(t, m.Update("t", []Entry{{Index: 0, Key: "late"}}, false))
		v, ok := m.LookupByKey("t", "late")
		require.True(t, ok)
		assert.Equal(t, []byte("без ключа"), v)
		_, ok = m.LookupByKey("t", "")
		assert.False(t, ok)
	})
}

func TestManagerReset_KeepsTables(t *testing.T) {
	m := NewManager()
	opts := Options{UserDataFixedSize: true, UserDataSizeBits: 8}
	m.Create("a", opts, []Entry{{Index: 0, Key: "x", Value: []byte{1}}})
	m.Create("b", Options{}, []Entry{{Index: 0, Key: "y"}})

	m.Reset()
	assert.Equal(t, []string{"a", "b"}, m.Names())
	tbl, ok := m.ByID(0)
	require.True(t, ok)
	assert.Equal(t, "a", tbl.Name)
	assert.Equal(t, opts, tbl.Options, "параметры таблицы нужны для следующих обновлений")
	assert.Zero(t, tbl.Len())
	_, ok = m.LookupByKey("a", "x")
	assert.False(t, ok)
}

func TestLookups_ReturnCopies(t *testing.T) {
	m := NewManager()
	m.Create("t", Options{}, []Entry{{Index: 0, Key: "k", Value: []byte("abc")}})

	v, _ := m.LookupByKey("t", "k")
	v[0] = 'z'

	v2, _ := m.LookupByKey("t", "k")
	assert.Equal(t, []byte("abc"), v2, "внешние изменения не должны влиять на таблицу")
}

func TestParseEntries_RoundTrip(t *testing.T) {
	opts := Options{}
	in := []Entry{
		{Index: 0, Key: "npc_dota_hero_axe", Value: []byte{1, 2, 3}},
		{Index: 1, Key: "npc_dota_hero_lina"},
		{Index: 5, Value: []byte("only value")},
	}

	out, err := ParseEntries(EncodeEntries(in, opts), len(in), opts)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseEntries_VarintBitcountsAndFixed(t *testing.T) {
	t.Run("varint", func(t *testing.T) {
		opts := Options{UsingVarintBitcounts: true, Flags: flagValueCompressed}
		in := []Entry{{Index: 0, Key: "k", Value: []byte("value")}}
		out, err := ParseEntries(EncodeEntries(in, opts), 1, opts)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("fixed", func(t *testing.T) {
		opts := Options{UserDataFixedSize: true, UserDataSizeBits: 12}
		in := []Entry{{Index: 0, Key: "k", Value: []byte{0xab, 0x0c}}}
		out, err := ParseEntries(EncodeEntries(in, opts), 1, opts)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestParseEntries_KeyHistory(t *testing.T) {
	w := bitstream.NewWriter()

	// запись 0: полный ключ
	w.WriteBool(true)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteString("item_boots")
	w.WriteBool(false)

	// запись 1: префикс "item_" из истории[0] + "blink"
	w.WriteBool(true)
	w.WriteBool(true)
	w.WriteBool(true)
	w.WriteBits(0, 5)
	w.WriteBits(5, 5)
	w.WriteString("blink")
	w.WriteBool(false)

	out, err := ParseEntries(w.Bytes(), 2, Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "item_boots", out[0].Key)
	assert.Equal(t, "item_blink", out[1].Key)
	assert.Nil(t, out[1].Value)
}

func TestParseEntries_CompressedValue(t *testing.T) {
	raw := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	packed := demo.Compress(raw)

	w := bitstream.NewWriter()
	w.WriteBool(true)
	w.WriteBool(false) // без ключа
	w.WriteBool(true)  // есть значение
	w.WriteBool(true)  // сжато
	w.WriteBits(uint32(len(packed)), 17)
	w.WriteBytes(packed)

	out, err := ParseEntries(w.Bytes(), 1, Options{Flags: flagValueCompressed})
	require.NoError(t, err)
	assert.Equal(t, raw, out[0].Value)
}

func TestParseEntries_Truncated(t *testing.T) {
	opts := Options{}
	data := EncodeEntries([]Entry{{Index: 0, Key: "long key here", Value: []byte("v")}}, opts)
	_, err := ParseEntries(data[:4], 1, opts)
	assert.Error(t, err)
}

func TestHandleCreateAndUpdate(t *testing.T) {
	m := NewManager()

	var seen []string
	m.OnChange(func(tbl *Table, e Entry) {
		seen = append(seen, tbl.Name+":"+e.Key)
	})

	opts := Options{}
	create := &protocol.CreateStringTable{
		Name:           InstanceBaseline,
		NumEntries:     2,
		StringData:     demo.Compress(EncodeEntries([]Entry{{Index: 0, Key: "1", Value: []byte{1}}, {Index: 1, Key: "2", Value: []byte{2}}}, opts)),
		DataCompressed: true,
	}
	tbl, err := m.HandleCreate(create)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.ID)
	assert.Equal(t, 2, tbl.Len())

	update := &protocol.UpdateStringTable{
		TableID:           0,
		NumChangedEntries: 1,
		StringData:        EncodeEntries([]Entry{{Index: 1, Value: []byte{9}}}, opts),
	}
	_, err = m.HandleUpdate(update)
	require.NoError(t, err)

	v, ok := m.LookupByKey(InstanceBaseline, "2")
	require.True(t, ok)
	assert.Equal(t, []byte{9}, v)
	assert.Equal(t, []string{"instancebaseline:1", "instancebaseline:2", "instancebaseline:2"}, seen)

	_, err = m.HandleUpdate(&protocol.UpdateStringTable{TableID: 3})
	assert.Error(t, err)
}

func TestHandleSnapshotAndClear(t *testing.T) {
	m := NewManager()
	m.Create("EntityNames", Options{}, []Entry{{Index: 0, Key: "stale"}})

	m.HandleSnapshot(&protocol.StringTables{Tables: []protocol.StringTableSnapshot{
		{TableName: "EntityNames", Items: []protocol.StringTableItem{{Key: "hero1"}, {Key: "hero2"}}},
		{TableName: "ActiveModifiers", Items: []protocol.StringTableItem{{Key: "m", Data: []byte{1}}}},
	}})

	key, ok := m.LookupByIndex("EntityNames", 1)
	require.True(t, ok)
	assert.Equal(t, "hero2", key)
	assert.Equal(t, []string{"ActiveModifiers", "EntityNames"}, m.Names())

	m.Clear()
	_, ok = m.ByName("EntityNames")
	assert.False(t, ok)
	assert.Empty(t, m.Names())
}
