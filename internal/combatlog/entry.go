// Package combatlog разбирает записи журнала боя (DOTA_UM_CombatLogDataHLTV)
// и хранит последние из них. Имена в записях это индексы таблицы строк
// CombatLogNames.
package combatlog

import (
	"fmt"

	"github.com/annel0/demoparse/internal/protocol"
)

// NamesTable таблица строк с именами участников журнала
const NamesTable = "CombatLogNames"

// Type вид записи; от него зависит, какие поля заполнены
type Type int32

// Виды записей
const (
	Damage Type = iota
	Heal
	ModifierAdd
	ModifierRemove
	Death
	Ability
	Item
	Location
	Gold
	GameState
	XP
	Purchase
	Buyback
	AbilityTrigger
	PlayerStats
	Multikill
	Killstreak
	TeamBuildingKill
	FirstBlood
	ModifierRefresh
	NeutralCampStack
	PickupRune
	RevealedInvisible
	HeroSaved
	ManaRestored
	HeroLevelUp
	BottleHealAlly
	EndgameStats
	InterruptChannel
	AlliedGold
	AegisTaken
)

var typeNames = [...]string{
	"DAMAGE", "HEAL", "MODIFIER_ADD", "MODIFIER_REMOVE", "DEATH", "ABILITY",
	"ITEM", "LOCATION", "GOLD", "GAME_STATE", "XP", "PURCHASE", "BUYBACK",
	"ABILITY_TRIGGER", "PLAYERSTATS", "MULTIKILL", "KILLSTREAK",
	"TEAM_BUILDING_KILL", "FIRST_BLOOD", "MODIFIER_REFRESH",
	"NEUTRAL_CAMP_STACK", "PICKUP_RUNE", "REVEALED_INVISIBLE", "HERO_SAVED",
	"MANA_RESTORED", "HERO_LEVELUP", "BOTTLE_HEAL_ALLY", "ENDGAME_STATS",
	"INTERRUPT_CHANNEL", "ALLIED_GOLD", "AEGIS_TAKEN",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int32(t))
}

// Flags признаки записи
type Flags uint32

// Признаки записи
const (
	AttackerIsIllusion Flags = 1 << 0
	AttackerIsHero     Flags = 1 << 1
	TargetIsIllusion   Flags = 1 << 3
	TargetIsHero       Flags = 1 << 4
	VisibleRadiant     Flags = 1 << 7
	VisibleDire        Flags = 1 << 8
	AbilityToggledOn   Flags = 1 << 9
	AbilityToggledOff  Flags = 1 << 10
)

// Has проверяет наличие всех признаков f
func (fl Flags) Has(f Flags) bool { return fl&f == f }

// Entry одна запись журнала
type Entry struct {
	Type  Type
	Flags Flags

	TargetName       uint32
	TargetSourceName uint32
	AttackerName     uint32
	DamageSourceName uint32
	InflictorName    uint32

	Value        uint32
	Health       int32
	Timestamp    float32
	StunDuration float32
	SlowDuration float32
	AbilityLevel uint32
}

// Decode разбирает CMsgDOTACombatLogEntry
func Decode(payload []byte) (Entry, error) {
	var m protocol.CombatLogEntry
	if err := m.Unmarshal(payload); err != nil {
		return Entry{}, &protocol.MalformedPacketError{ID: protocol.DOTACombatLogDataHLTV, Err: err}
	}

	e := Entry{
		Type:             Type(m.Type),
		TargetName:       m.TargetName,
		TargetSourceName: m.TargetSourceName,
		AttackerName:     m.AttackerName,
		DamageSourceName: m.DamageSourceName,
		InflictorName:    m.InflictorName,
		Value:            m.Value,
		Health:           m.Health,
		Timestamp:        m.Timestamp,
		StunDuration:     m.StunDuration,
		SlowDuration:     m.SlowDuration,
		AbilityLevel:     m.AbilityLevel,
	}
	for _, f := range []struct {
		set  bool
		flag Flags
	}{
		{m.IsAttackerIllusion, AttackerIsIllusion},
		{m.IsAttackerHero, AttackerIsHero},
		{m.IsTargetIllusion, TargetIsIllusion},
		{m.IsTargetHero, TargetIsHero},
		{m.IsVisibleRadiant, VisibleRadiant},
		{m.IsVisibleDire, VisibleDire},
		{m.IsAbilityToggleOn, AbilityToggledOn},
		{m.IsAbilityToggleOff, AbilityToggledOff},
	} {
		if f.set {
			e.Flags |= f.flag
		}
	}
	return e, nil
}

// NameLookup источник имён; *stringtable.Manager подходит
type NameLookup interface {
	LookupByIndex(table string, index int32) (string, bool)
}

// Names имена участников записи
type Names struct {
	Target       string
	TargetSource string
	Attacker     string
	DamageSource string
	Inflictor    string
}

// Resolve подставляет имена из CombatLogNames; неизвестные индексы дают пустую строку
func (e Entry) Resolve(names NameLookup) Names {
	name := func(i uint32) string {
		s, _ := names.LookupByIndex(NamesTable, int32(i))
		return s
	}
	return Names{
		Target:       name(e.TargetName),
		TargetSource: name(e.TargetSourceName),
		Attacker:     name(e.AttackerName),
		DamageSource: name(e.DamageSourceName),
		Inflictor:    name(e.InflictorName),
	}
}
