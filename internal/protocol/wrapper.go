package protocol

import "fmt"

// PacketID числовой идентификатор внутреннего сообщения пакета
type PacketID = uint32

// Определение констант для идентификаторов сообщений
const (
	// Сетевые сообщения
	NetTick         PacketID = 4
	NetSetConVar    PacketID = 6
	NetSignonState  PacketID = 7
	NetSpawnGroupLd PacketID = 8

	// Сообщения сервера (svc_*)
	SvcServerInfo           PacketID = 40
	SvcFlattenedSerializer  PacketID = 41
	SvcClassInfo            PacketID = 42
	SvcPrint                PacketID = 16
	SvcCreateStringTable    PacketID = 44
	SvcUpdateStringTable    PacketID = 45
	SvcVoiceInit            PacketID = 46
	SvcVoiceData            PacketID = 47
	SvcClearAllStringTables PacketID = 51
	SvcPacketEntities       PacketID = 55
	SvcTempEntities         PacketID = 56

	// Пользовательские и игровые сообщения
	UMSayText2            PacketID = 118
	UMParticleManager     PacketID = 145
	GELegacyGameEventList PacketID = 205
	GELegacyGameEvent     PacketID = 207
	DOTACombatLogDataHLTV PacketID = 554
	DOTAChatEvent         PacketID = 512
	DOTAOverheadEvent     PacketID = 521
)

var packetNames = map[PacketID]string{
	NetTick:                 "net_Tick",
	NetSetConVar:            "net_SetConVar",
	NetSignonState:          "net_SignonState",
	NetSpawnGroupLd:         "net_SpawnGroup_Load",
	SvcServerInfo:           "svc_ServerInfo",
	SvcFlattenedSerializer:  "svc_FlattenedSerializer",
	SvcClassInfo:            "svc_ClassInfo",
	SvcPrint:                "svc_Print",
	SvcCreateStringTable:    "svc_CreateStringTable",
	SvcUpdateStringTable:    "svc_UpdateStringTable",
	SvcVoiceInit:            "svc_VoiceInit",
	SvcVoiceData:            "svc_VoiceData",
	SvcClearAllStringTables: "svc_ClearAllStringTables",
	SvcPacketEntities:       "svc_PacketEntities",
	SvcTempEntities:         "svc_TempEntities",
	UMSayText2:              "UM_SayText2",
	UMParticleManager:       "UM_ParticleManager",
	GELegacyGameEventList:   "GE_Source1LegacyGameEventList",
	GELegacyGameEvent:       "GE_Source1LegacyGameEvent",
	DOTACombatLogDataHLTV:   "DOTA_UM_CombatLogDataHLTV",
	DOTAChatEvent:           "DOTA_UM_ChatEvent",
	DOTAOverheadEvent:       "DOTA_UM_OverheadEvent",
}

// PacketName возвращает имя сообщения по идентификатору
func PacketName(id PacketID) string {
	if name, ok := packetNames[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// IsEngineMessage сообщает, обрабатывается ли сообщение ядром парсера
// независимо от подписок наблюдателя
func IsEngineMessage(id PacketID) bool {
	switch id {
	case SvcServerInfo, SvcFlattenedSerializer, SvcCreateStringTable,
		SvcUpdateStringTable, SvcClearAllStringTables, SvcPacketEntities,
		GELegacyGameEventList:
		return true
	}
	return false
}
