package protocol

// Сообщения верхнего уровня, которые лежат прямо в кадрах демо-файла (CDemo*).
// Декодируются вручную через protowire, без сгенерированного кода.

// FileHeader CDemoFileHeader
type FileHeader struct {
	DemoFileStamp            string
	NetworkProtocol          int32
	ServerName               string
	ClientName               string
	MapName                  string
	GameDirectory            string
	FullpacketsVersion       int32
	AllowClientsideEntities  bool
	AllowClientsideParticles bool
	Addons                   string
	DemoVersionName          string
	DemoVersionGUID          string
	BuildNum                 int32
	Game                     string
}

// Unmarshal разбирает CDemoFileHeader
func (m *FileHeader) Unmarshal(b []byte) error {
	*m = FileHeader{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.DemoFileStamp, err = f.asString()
		case 2:
			m.NetworkProtocol, err = f.asInt32()
		case 3:
			m.ServerName, err = f.asString()
		case 4:
			m.ClientName, err = f.asString()
		case 5:
			m.MapName, err = f.asString()
		case 6:
			m.GameDirectory, err = f.asString()
		case 7:
			m.FullpacketsVersion, err = f.asInt32()
		case 8:
			m.AllowClientsideEntities, err = f.asBool()
		case 9:
			m.AllowClientsideParticles, err = f.asBool()
		case 10:
			m.Addons, err = f.asString()
		case 11:
			m.DemoVersionName, err = f.asString()
		case 12:
			m.DemoVersionGUID, err = f.asString()
		case 13:
			m.BuildNum, err = f.asInt32()
		case 14:
			m.Game, err = f.asString()
		}
		return err
	})
}

// Marshal кодирует CDemoFileHeader
func (m *FileHeader) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.DemoFileStamp)
	b = appendInt32Field(b, 2, m.NetworkProtocol)
	b = appendStringField(b, 3, m.ServerName)
	b = appendStringField(b, 4, m.ClientName)
	b = appendStringField(b, 5, m.MapName)
	b = appendStringField(b, 6, m.GameDirectory)
	b = appendInt32Field(b, 7, m.FullpacketsVersion)
	b = appendBoolField(b, 8, m.AllowClientsideEntities)
	b = appendBoolField(b, 9, m.AllowClientsideParticles)
	b = appendStringField(b, 10, m.Addons)
	b = appendStringField(b, 11, m.DemoVersionName)
	b = appendStringField(b, 12, m.DemoVersionGUID)
	b = appendInt32Field(b, 13, m.BuildNum)
	b = appendStringField(b, 14, m.Game)
	return b
}

// FileInfo CDemoFileInfo, итоговая информация в конце файла
type FileInfo struct {
	PlaybackTime   float32
	PlaybackTicks  int32
	PlaybackFrames int32
}

// Unmarshal разбирает CDemoFileInfo
func (m *FileInfo) Unmarshal(b []byte) error {
	*m = FileInfo{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.PlaybackTime, err = f.asFloat()
		case 2:
			m.PlaybackTicks, err = f.asInt32()
		case 3:
			m.PlaybackFrames, err = f.asInt32()
		}
		return err
	})
}

// Marshal кодирует CDemoFileInfo
func (m *FileInfo) Marshal() []byte {
	var b []byte
	b = appendFloatField(b, 1, m.PlaybackTime)
	b = appendInt32Field(b, 2, m.PlaybackTicks)
	return appendInt32Field(b, 3, m.PlaybackFrames)
}

// DemoPacket CDemoPacket: битовый поток внутренних сообщений
type DemoPacket struct {
	Data []byte
}

// Unmarshal разбирает CDemoPacket
func (m *DemoPacket) Unmarshal(b []byte) error {
	*m = DemoPacket{}
	return forEachField(b, func(f wireField) error {
		var err error
		if f.num == 3 {
			m.Data, err = f.asBytes()
		}
		return err
	})
}

// Marshal кодирует CDemoPacket
func (m *DemoPacket) Marshal() []byte {
	return appendBytesField(nil, 3, m.Data)
}

// SendTables CDemoSendTables: varint-длина и CSVCMsg_FlattenedSerializer
type SendTables struct {
	Data []byte
}

// Unmarshal разбирает CDemoSendTables
func (m *SendTables) Unmarshal(b []byte) error {
	*m = SendTables{}
	return forEachField(b, func(f wireField) error {
		var err error
		if f.num == 1 {
			m.Data, err = f.asBytes()
		}
		return err
	})
}

// Marshal кодирует CDemoSendTables
func (m *SendTables) Marshal() []byte {
	return appendBytesField(nil, 1, m.Data)
}

// ClassInfoEntry описание одного сетевого класса
type ClassInfoEntry struct {
	ClassID     int32
	NetworkName string
	TableName   string
}

// ClassInfo CDemoClassInfo
type ClassInfo struct {
	Classes []ClassInfoEntry
}

// Unmarshal разбирает CDemoClassInfo
func (m *ClassInfo) Unmarshal(b []byte) error {
	*m = ClassInfo{}
	return forEachField(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		data, err := f.asBytes()
		if err != nil {
			return err
		}
		var c ClassInfoEntry
		err = forEachField(data, func(f wireField) error {
			var err error
			switch f.num {
			case 1:
				c.ClassID, err = f.asInt32()
			case 2:
				c.NetworkName, err = f.asString()
			case 3:
				c.TableName, err = f.asString()
			}
			return err
		})
		m.Classes = append(m.Classes, c)
		return err
	})
}

// Marshal кодирует CDemoClassInfo
func (m *ClassInfo) Marshal() []byte {
	var b []byte
	for _, c := range m.Classes {
		var cb []byte
		cb = appendInt32Field(cb, 1, c.ClassID)
		cb = appendStringField(cb, 2, c.NetworkName)
		cb = appendStringField(cb, 3, c.TableName)
		b = appendMessageField(b, 1, cb)
	}
	return b
}

// StringTableItem элемент снимка таблицы строк
type StringTableItem struct {
	Key  string
	Data []byte
}

// StringTableSnapshot полный снимок одной таблицы
type StringTableSnapshot struct {
	TableName       string
	Items           []StringTableItem
	ItemsClientside []StringTableItem
	TableFlags      int32
}

// StringTables CDemoStringTables: полный снимок всех таблиц строк
type StringTables struct {
	Tables []StringTableSnapshot
}

func unmarshalItem(b []byte) (StringTableItem, error) {
	var it StringTableItem
	err := forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			it.Key, err = f.asString()
		case 2:
			it.Data, err = f.asBytes()
		}
		return err
	})
	return it, err
}

// Unmarshal разбирает CDemoStringTables
func (m *StringTables) Unmarshal(b []byte) error {
	*m = StringTables{}
	return forEachField(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		data, err := f.asBytes()
		if err != nil {
			return err
		}
		var t StringTableSnapshot
		err = forEachField(data, func(f wireField) error {
			switch f.num {
			case 1:
				var err error
				t.TableName, err = f.asString()
				return err
			case 2, 3:
				raw, err := f.asBytes()
				if err != nil {
					return err
				}
				it, err := unmarshalItem(raw)
				if err != nil {
					return err
				}
				if f.num == 2 {
					t.Items = append(t.Items, it)
				} else {
					t.ItemsClientside = append(t.ItemsClientside, it)
				}
			case 4:
				var err error
				t.TableFlags, err = f.asInt32()
				return err
			}
			return nil
		})
		m.Tables = append(m.Tables, t)
		return err
	})
}

// Marshal кодирует CDemoStringTables
func (m *StringTables) Marshal() []byte {
	var b []byte
	for _, t := range m.Tables {
		var tb []byte
		tb = appendStringField(tb, 1, t.TableName)
		for _, it := range t.Items {
			var ib []byte
			ib = appendStringField(ib, 1, it.Key)
			ib = appendBytesField(ib, 2, it.Data)
			tb = appendMessageField(tb, 2, ib)
		}
		for _, it := range t.ItemsClientside {
			var ib []byte
			ib = appendStringField(ib, 1, it.Key)
			ib = appendBytesField(ib, 2, it.Data)
			tb = appendMessageField(tb, 3, ib)
		}
		tb = appendInt32Field(tb, 4, t.TableFlags)
		b = appendMessageField(b, 1, tb)
	}
	return b
}

// FullPacket CDemoFullPacket: снимок таблиц строк и пакет с полным состоянием
type FullPacket struct {
	StringTables *StringTables
	Packet       *DemoPacket
}

// Unmarshal разбирает CDemoFullPacket
func (m *FullPacket) Unmarshal(b []byte) error {
	*m = FullPacket{}
	return forEachField(b, func(f wireField) error {
		switch f.num {
		case 1:
			data, err := f.asBytes()
			if err != nil {
				return err
			}
			m.StringTables = &StringTables{}
			return m.StringTables.Unmarshal(data)
		case 2:
			data, err := f.asBytes()
			if err != nil {
				return err
			}
			m.Packet = &DemoPacket{}
			return m.Packet.Unmarshal(data)
		}
		return nil
	})
}

// Marshal кодирует CDemoFullPacket
func (m *FullPacket) Marshal() []byte {
	var b []byte
	if m.StringTables != nil {
		b = appendMessageField(b, 1, m.StringTables.Marshal())
	}
	if m.Packet != nil {
		b = appendMessageField(b, 2, m.Packet.Marshal())
	}
	return b
}
