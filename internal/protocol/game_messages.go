package protocol

// Игровые события и журнал боя

// GameEventKeyInfo ключ в описании события
type GameEventKeyInfo struct {
	Type int32
	Name string
}

// GameEventDescriptor описание события из CMsgSource1LegacyGameEventList
type GameEventDescriptor struct {
	EventID int32
	Name    string
	Keys    []GameEventKeyInfo
}

// GameEventList CMsgSource1LegacyGameEventList
type GameEventList struct {
	Descriptors []GameEventDescriptor
}

// Unmarshal разбирает CMsgSource1LegacyGameEventList
func (m *GameEventList) Unmarshal(b []byte) error {
	*m = GameEventList{}
	return forEachField(b, func(f wireField) error {
		if f.num != 1 {
			return nil
		}
		data, err := f.asBytes()
		if err != nil {
			return err
		}
		d, err := unmarshalDescriptor(data)
		if err != nil {
			return err
		}
		m.Descriptors = append(m.Descriptors, d)
		return nil
	})
}

func unmarshalDescriptor(b []byte) (GameEventDescriptor, error) {
	var d GameEventDescriptor
	err := forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			d.EventID, err = f.asInt32()
		case 2:
			d.Name, err = f.asString()
		case 3:
			var data []byte
			if data, err = f.asBytes(); err != nil {
				return err
			}
			var k GameEventKeyInfo
			err = forEachField(data, func(kf wireField) error {
				var err error
				switch kf.num {
				case 1:
					k.Type, err = kf.asInt32()
				case 2:
					k.Name, err = kf.asString()
				}
				return err
			})
			d.Keys = append(d.Keys, k)
		}
		return err
	})
	return d, err
}

// Marshal кодирует CMsgSource1LegacyGameEventList
func (m *GameEventList) Marshal() []byte {
	var b []byte
	for _, d := range m.Descriptors {
		var db []byte
		db = appendTaggedVarint(db, 1, uint64(int64(d.EventID)))
		db = appendStringField(db, 2, d.Name)
		for _, k := range d.Keys {
			var kb []byte
			kb = appendInt32Field(kb, 1, k.Type)
			kb = appendStringField(kb, 2, k.Name)
			db = appendMessageField(db, 3, kb)
		}
		b = appendMessageField(b, 1, db)
	}
	return b
}

// GameEventKey значение ключа события; заполнено поле, соответствующее Type
type GameEventKey struct {
	Type   int32
	String string
	Float  float32
	Long   int32
	Short  int32
	Byte   int32
	Bool   bool
	Uint64 uint64
}

// GameEvent CMsgSource1LegacyGameEvent.
// Ключи идут в порядке описания события, имён в сообщении нет.
type GameEvent struct {
	EventName   string
	EventID     int32
	Keys        []GameEventKey
	ServerTick  int32
	Passthrough int32
}

// Unmarshal разбирает CMsgSource1LegacyGameEvent
func (m *GameEvent) Unmarshal(b []byte) error {
	*m = GameEvent{}
	return forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			m.EventName, err = f.asString()
		case 2:
			m.EventID, err = f.asInt32()
		case 3:
			var data []byte
			if data, err = f.asBytes(); err != nil {
				return err
			}
			var k GameEventKey
			if k, err = unmarshalEventKey(data); err == nil {
				m.Keys = append(m.Keys, k)
			}
		case 4:
			m.ServerTick, err = f.asInt32()
		case 5:
			m.Passthrough, err = f.asInt32()
		}
		return err
	})
}

func unmarshalEventKey(b []byte) (GameEventKey, error) {
	var k GameEventKey
	err := forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			k.Type, err = f.asInt32()
		case 2:
			k.String, err = f.asString()
		case 3:
			k.Float, err = f.asFloat()
		case 4:
			k.Long, err = f.asInt32()
		case 5:
			k.Short, err = f.asInt32()
		case 6:
			k.Byte, err = f.asInt32()
		case 7:
			k.Bool, err = f.asBool()
		case 8:
			k.Uint64, err = f.asUint()
		}
		return err
	})
	return k, err
}

// Marshal кодирует CMsgSource1LegacyGameEvent
func (m *GameEvent) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.EventName)
	b = appendTaggedVarint(b, 2, uint64(int64(m.EventID)))
	for _, k := range m.Keys {
		var kb []byte
		kb = appendInt32Field(kb, 1, k.Type)
		kb = appendStringField(kb, 2, k.String)
		kb = appendFloatField(kb, 3, k.Float)
		kb = appendInt32Field(kb, 4, k.Long)
		kb = appendInt32Field(kb, 5, k.Short)
		kb = appendInt32Field(kb, 6, k.Byte)
		kb = appendBoolField(kb, 7, k.Bool)
		kb = appendVarintField(kb, 8, k.Uint64)
		b = appendMessageField(b, 3, kb)
	}
	b = appendInt32Field(b, 4, m.ServerTick)
	return appendInt32Field(b, 5, m.Passthrough)
}

// CombatLogEntry CMsgDOTACombatLogEntry (частично).
// Имена это индексы в таблице строк CombatLogNames.
type CombatLogEntry struct {
	Type               int32
	TargetName         uint32
	TargetSourceName   uint32
	AttackerName       uint32
	DamageSourceName   uint32
	InflictorName      uint32
	IsAttackerIllusion bool
	IsAttackerHero     bool
	IsTargetIllusion   bool
	IsTargetHero       bool
	IsVisibleRadiant   bool
	IsVisibleDire      bool
	Value              uint32
	Health             int32
	Timestamp          float32
	StunDuration       float32
	SlowDuration       float32
	IsAbilityToggleOn  bool
	IsAbilityToggleOff bool
	AbilityLevel       uint32
}

// Unmarshal разбирает CMsgDOTACombatLogEntry
func (m *CombatLogEntry) Unmarshal(b []byte) error {
	*m = CombatLogEntry{}
	return forEachField(b, func(f wireField) error {
		var err error
		var v uint64
		switch f.num {
		case 1:
			m.Type, err = f.asInt32()
		case 2:
			v, err = f.asUint()
			m.TargetName = uint32(v)
		case 3:
			v, err = f.asUint()
			m.TargetSourceName = uint32(v)
		case 4:
			v, err = f.asUint()
			m.AttackerName = uint32(v)
		case 5:
			v, err = f.asUint()
			m.DamageSourceName = uint32(v)
		case 6:
			v, err = f.asUint()
			m.InflictorName = uint32(v)
		case 7:
			m.IsAttackerIllusion, err = f.asBool()
		case 8:
			m.IsAttackerHero, err = f.asBool()
		case 9:
			m.IsTargetIllusion, err = f.asBool()
		case 10:
			m.IsTargetHero, err = f.asBool()
		case 11:
			m.IsVisibleRadiant, err = f.asBool()
		case 12:
			m.IsVisibleDire, err = f.asBool()
		case 13:
			v, err = f.asUint()
			m.Value = uint32(v)
		case 14:
			m.Health, err = f.asInt32()
		case 15:
			m.Timestamp, err = f.asFloat()
		case 16:
			m.StunDuration, err = f.asFloat()
		case 17:
			m.SlowDuration, err = f.asFloat()
		case 18:
			m.IsAbilityToggleOn, err = f.asBool()
		case 19:
			m.IsAbilityToggleOff, err = f.asBool()
		case 20:
			v, err = f.asUint()
			m.AbilityLevel = uint32(v)
		}
		return err
	})
}

// Marshal кодирует CMsgDOTACombatLogEntry
func (m *CombatLogEntry) Marshal() []byte {
	var b []byte
	b = appendTaggedVarint(b, 1, uint64(int64(m.Type)))
	b = appendVarintField(b, 2, uint64(m.TargetName))
	b = appendVarintField(b, 3, uint64(m.TargetSourceName))
	b = appendVarintField(b, 4, uint64(m.AttackerName))
	b = appendVarintField(b, 5, uint64(m.DamageSourceName))
	b = appendVarintField(b, 6, uint64(m.InflictorName))
	b = appendBoolField(b, 7, m.IsAttackerIllusion)
	b = appendBoolField(b, 8, m.IsAttackerHero)
	b = appendBoolField(b, 9, m.IsTargetIllusion)
	b = appendBoolField(b, 10, m.IsTargetHero)
	b = appendBoolField(b, 11, m.IsVisibleRadiant)
	b = appendBoolField(b, 12, m.IsVisibleDire)
	b = appendVarintField(b, 13, uint64(m.Value))
	b = appendInt32Field(b, 14, m.Health)
	b = appendFloatField(b, 15, m.Timestamp)
	b = appendFloatField(b, 16, m.StunDuration)
	b = appendFloatField(b, 17, m.SlowDuration)
	b = appendBoolField(b, 18, m.IsAbilityToggleOn)
	b = appendBoolField(b, 19, m.IsAbilityToggleOff)
	return appendVarintField(b, 20, uint64(m.AbilityLevel))
}
