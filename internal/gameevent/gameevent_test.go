package gameevent

import (
	"errors"
	"testing"

	"github.com/annel0/demoparse/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testList() *List {
	l := NewList()
	l.Load(&protocol.GameEventList{Descriptors: []protocol.GameEventDescriptor{
		{EventID: 3, Name: "dota_player_kill", Keys: []protocol.GameEventKeyInfo{
			{Type: int32(KeyShort), Name: "victim_userid"},
			{Type: int32(KeyShort), Name: "killer1_userid"},
			{Type: int32(KeyBool), Name: "tower_kill"},
			{Type: int32(KeyFloat), Name: "bounty"},
		}},
		{EventID: 9, Name: "dota_chase_hero", Keys: []protocol.GameEventKeyInfo{
			{Type: int32(KeyString), Name: "target"},
			{Type: int32(KeyUint64), Name: "steamid"},
		}},
	}})
	return l
}

func TestList_Lookup(t *testing.T) {
	l := testList()
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"dota_chase_hero", "dota_player_kill"}, l.Names())

	byID, ok := l.ByID(3)
	require.True(t, ok)
	byName, ok := l.ByName("dota_player_kill")
	require.True(t, ok)
	assert.Same(t, byID, byName)

	i, ok := byID.KeyIndex("tower_kill")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, KeyBool, byID.Keys[i].Type)

	_, ok = l.ByID(100)
	assert.False(t, ok)
	_, ok = l.ByName("missing")
	assert.False(t, ok)

	t.Run("новый список заменяет прежний", func(t *testing.T) {
		l.Load(&protocol.GameEventList{Descriptors: []protocol.GameEventDescriptor{{EventID: 1, Name: "dota_pause"}}})
		assert.Equal(t, 1, l.Len())
		_, ok := l.ByName("dota_player_kill")
		assert.False(t, ok)
	})
}

func TestList_Decode(t *testing.T) {
	l := testList()
	ev, err := l.Decode(&protocol.GameEvent{
		EventID:    3,
		ServerTick: 4200,
		Keys: []protocol.GameEventKey{
			{Type: int32(KeyShort), Short: 4},
			{Type: int32(KeyShort), Short: 7},
			{Type: int32(KeyBool), Bool: true},
			{Type: int32(KeyFloat), Float: 150.5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "dota_player_kill", ev.Name())
	assert.Equal(t, int32(4200), ev.Tick)

	killer, ok := ev.GetInt("killer1_userid")
	require.True(t, ok)
	assert.Equal(t, int64(7), killer)

	tower, ok := ev.GetBool("tower_kill")
	require.True(t, ok)
	assert.True(t, tower)

	bounty, ok := ev.GetFloat("bounty")
	require.True(t, ok)
	assert.InDelta(t, 150.5, bounty, 1e-6)

	_, ok = ev.Get("missing")
	assert.False(t, ok)
	_, ok = ev.GetString("bounty")
	assert.False(t, ok, "тип значения не совпадает")

	assert.Equal(t, map[string]any{
		"victim_userid":  int32(4),
		"killer1_userid": int32(7),
		"tower_kill":     true,
		"bounty":         float32(150.5),
	}, ev.Map())
}

func TestList_DecodeShortAndUnknown(t *testing.T) {
	l := testList()

	t.Run("недостающие ключи", func(t *testing.T) {
		ev, err := l.Decode(&protocol.GameEvent{
			EventID: 9,
			Keys:    []protocol.GameEventKey{{Type: int32(KeyString), String: "npc_dota_hero_lina"}},
		})
		require.NoError(t, err)
		target, ok := ev.GetString("target")
		require.True(t, ok)
		assert.Equal(t, "npc_dota_hero_lina", target)
		_, ok = ev.Get("steamid")
		assert.False(t, ok, "ключ, которого нет в сообщении, не задан")
	})

	t.Run("неизвестный идентификатор", func(t *testing.T) {
		_, err := l.Decode(&protocol.GameEvent{EventID: 55, EventName: "custom"})
		assert.True(t, errors.Is(err, ErrUnknownEvent), "получено %v", err)
	})
}

func TestKeyType_String(t *testing.T) {
	assert.Equal(t, "uint64", KeyUint64.String())
	assert.Equal(t, "KeyType(42)", KeyType(42).String())
}
