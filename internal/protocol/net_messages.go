package protocol

// Сообщения сервера, которые обрабатывает ядро парсера (svc_*)

// ServerInfo CSVCMsg_ServerInfo (частично)
type ServerInfo struct {
	Protocol     int32
	MaxClients   int32
	MaxClasses   int32
	PlayerSlot   int32
	TickInterval float32
	GameDir      string
	MapName      string
}

// Unmarshal разбирает CSVCMsg_ServerInfo
func (m *ServerInfo) Unmarshal(b []byte) error {
	*m = ServerInfo{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.Protocol, err = f.asInt32()
		case 10:
			m.MaxClients, err = f.asInt32()
		case 11:
			m.MaxClasses, err = f.asInt32()
		case 12:
			m.PlayerSlot, err = f.asInt32()
		case 13:
			m.TickInterval, err = f.asFloat()
		case 14:
			m.GameDir, err = f.asString()
		case 15:
			m.MapName, err = f.asString()
		}
		return err
	})
}

// Marshal кодирует CSVCMsg_ServerInfo
func (m *ServerInfo) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.Protocol)
	b = appendInt32Field(b, 10, m.MaxClients)
	b = appendInt32Field(b, 11, m.MaxClasses)
	b = appendInt32Field(b, 12, m.PlayerSlot)
	b = appendFloatField(b, 13, m.TickInterval)
	b = appendStringField(b, 14, m.GameDir)
	return appendStringField(b, 15, m.MapName)
}

// CreateStringTable CSVCMsg_CreateStringTable
type CreateStringTable struct {
	Name                 string
	NumEntries           int32
	UserDataFixedSize    bool
	UserDataSize         int32
	UserDataSizeBits     int32
	Flags                int32
	StringData           []byte
	UncompressedSize     int32
	DataCompressed       bool
	UsingVarintBitcounts bool
}

// Unmarshal разбирает CSVCMsg_CreateStringTable
func (m *CreateStringTable) Unmarshal(b []byte) error {
	*m = CreateStringTable{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.Name, err = f.asString()
		case 2:
			m.NumEntries, err = f.asInt32()
		case 3:
			m.UserDataFixedSize, err = f.asBool()
		case 4:
			m.UserDataSize, err = f.asInt32()
		case 5:
			m.UserDataSizeBits, err = f.asInt32()
		case 6:
			m.Flags, err = f.asInt32()
		case 7:
			m.StringData, err = f.asBytes()
		case 8:
			m.UncompressedSize, err = f.asInt32()
		case 9:
			m.DataCompressed, err = f.asBool()
		case 10:
			m.UsingVarintBitcounts, err = f.asBool()
		}
		return err
	})
}

// Marshal кодирует CSVCMsg_CreateStringTable
func (m *CreateStringTable) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Name)
	b = appendInt32Field(b, 2, m.NumEntries)
	b = appendBoolField(b, 3, m.UserDataFixedSize)
	b = appendInt32Field(b, 4, m.UserDataSize)
	b = appendInt32Field(b, 5, m.UserDataSizeBits)
	b = appendInt32Field(b, 6, m.Flags)
	b = appendBytesField(b, 7, m.StringData)
	b = appendInt32Field(b, 8, m.UncompressedSize)
	b = appendBoolField(b, 9, m.DataCompressed)
	return appendBoolField(b, 10, m.UsingVarintBitcounts)
}

// UpdateStringTable CSVCMsg_UpdateStringTable
type UpdateStringTable struct {
	TableID           int32
	NumChangedEntries int32
	StringData        []byte
}

// Unmarshal разбирает CSVCMsg_UpdateStringTable
func (m *UpdateStringTable) Unmarshal(b []byte) error {
	*m = UpdateStringTable{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.TableID, err = f.asInt32()
		case 2:
			m.NumChangedEntries, err = f.asInt32()
		case 3:
			m.StringData, err = f.asBytes()
		}
		return err
	})
}

// Marshal кодирует CSVCMsg_UpdateStringTable
func (m *UpdateStringTable) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.TableID)
	b = appendInt32Field(b, 2, m.NumChangedEntries)
	return appendBytesField(b, 3, m.StringData)
}

// ClearAllStringTables CSVCMsg_ClearAllStringTables
type ClearAllStringTables struct {
	MapName string
}

// Unmarshal разбирает CSVCMsg_ClearAllStringTables
func (m *ClearAllStringTables) Unmarshal(b []byte) error {
	*m = ClearAllStringTables{}
	return forEachField(b, func(f wireField) error {
		var err error
		if f.num == 1 {
			m.MapName, err = f.asString()
		}
		return err
	})
}

// Marshal кодирует CSVCMsg_ClearAllStringTables
func (m *ClearAllStringTables) Marshal() []byte {
	return appendStringField(nil, 1, m.MapName)
}

// PacketEntities CSVCMsg_PacketEntities
type PacketEntities struct {
	MaxEntries       int32
	UpdatedEntries   int32
	IsDelta          bool
	UpdateBaseline   bool
	Baseline         int32
	DeltaFrom        int32
	EntityData       []byte
	PendingFullFrame bool
	ServerTick       uint32
}

// Unmarshal разбирает CSVCMsg_PacketEntities
func (m *PacketEntities) Unmarshal(b []byte) error {
	*m = PacketEntities{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.MaxEntries, err = f.asInt32()
		case 2:
			m.UpdatedEntries, err = f.asInt32()
		case 3:
			m.IsDelta, err = f.asBool()
		case 4:
			m.UpdateBaseline, err = f.asBool()
		case 5:
			m.Baseline, err = f.asInt32()
		case 6:
			m.DeltaFrom, err = f.asInt32()
		case 7:
			m.EntityData, err = f.asBytes()
		case 8:
			m.PendingFullFrame, err = f.asBool()
		case 12:
			var v uint64
			v, err = f.asUint()
			m.ServerTick = uint32(v)
		}
		return err
	})
}

// Marshal кодирует CSVCMsg_PacketEntities
func (m *PacketEntities) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, m.MaxEntries)
	b = appendInt32Field(b, 2, m.UpdatedEntries)
	b = appendBoolField(b, 3, m.IsDelta)
	b = appendBoolField(b, 4, m.UpdateBaseline)
	b = appendInt32Field(b, 5, m.Baseline)
	b = appendInt32Field(b, 6, m.DeltaFrom)
	b = appendBytesField(b, 7, m.EntityData)
	b = appendBoolField(b, 8, m.PendingFullFrame)
	return appendVarintField(b, 12, uint64(m.ServerTick))
}
