package demo

import "fmt"

// Kind тип кадра демо-файла
type Kind int32

const (
	KindStop                Kind = 0
	KindFileHeader          Kind = 1
	KindFileInfo            Kind = 2
	KindSyncTick            Kind = 3
	KindSendTables          Kind = 4
	KindClassInfo           Kind = 5
	KindStringTables        Kind = 6
	KindPacket              Kind = 7
	KindSignonPacket        Kind = 8
	KindConsoleCmd          Kind = 9
	KindCustomData          Kind = 10
	KindCustomDataCallbacks Kind = 11
	KindUserCmd             Kind = 12
	KindFullPacket          Kind = 13
	KindSaveGame            Kind = 14
	KindSpawnGroups         Kind = 15
	KindAnimationData       Kind = 16
	KindAnimationHeader     Kind = 17

	// compressedFlag выставляется в поле cmd у сжатых кадров
	compressedFlag = 64
)

var kindNames = map[Kind]string{
	KindStop:                "DEM_Stop",
	KindFileHeader:          "DEM_FileHeader",
	KindFileInfo:            "DEM_FileInfo",
	KindSyncTick:            "DEM_SyncTick",
	KindSendTables:          "DEM_SendTables",
	KindClassInfo:           "DEM_ClassInfo",
	KindStringTables:        "DEM_StringTables",
	KindPacket:              "DEM_Packet",
	KindSignonPacket:        "DEM_SignonPacket",
	KindConsoleCmd:          "DEM_ConsoleCmd",
	KindCustomData:          "DEM_CustomData",
	KindCustomDataCallbacks: "DEM_CustomDataCallbacks",
	KindUserCmd:             "DEM_UserCmd",
	KindFullPacket:          "DEM_FullPacket",
	KindSaveGame:            "DEM_SaveGame",
	KindSpawnGroups:         "DEM_SpawnGroups",
	KindAnimationData:       "DEM_AnimationData",
	KindAnimationHeader:     "DEM_AnimationHeader",
}

// String возвращает имя типа кадра
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DEM_Unknown(%d)", int32(k))
}
