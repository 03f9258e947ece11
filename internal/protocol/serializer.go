package protocol

import "fmt"

// SerializerField ProtoFlattenedSerializerField_t
type SerializerField struct {
	VarTypeSym             int32
	VarNameSym             int32
	BitCount               int32
	LowValue               float32
	HighValue              float32
	EncodeFlags            int32
	FieldSerializerNameSym int32
	FieldSerializerVersion int32
	SendNodeSym            int32
	VarEncoderSym          int32

	HasLowValue        bool
	HasHighValue       bool
	HasFieldSerializer bool
	HasVarEncoder      bool
}

// SerializerEntry ProtoFlattenedSerializer_t
type SerializerEntry struct {
	NameSym     int32
	Version     int32
	FieldsIndex []int32
}

// FlattenedSerializer CSVCMsg_FlattenedSerializer: схемы всех сетевых классов
type FlattenedSerializer struct {
	Serializers []SerializerEntry
	Symbols     []string
	Fields      []SerializerField
}

// Symbol возвращает символ по индексу
func (m *FlattenedSerializer) Symbol(i int32) (string, error) {
	if i < 0 || int(i) >= len(m.Symbols) {
		return "", fmt.Errorf("символ %d вне таблицы (%d символов)", i, len(m.Symbols))
	}
	return m.Symbols[i], nil
}

// Unmarshal разбирает CSVCMsg_FlattenedSerializer
func (m *FlattenedSerializer) Unmarshal(b []byte) error {
	*m = FlattenedSerializer{}
	return forEachField(b, func(f wireField) error {
		switch f.num {
		case 1:
			data, err := f.asBytes()
			if err != nil {
				return err
			}
			s, err := unmarshalSerializerEntry(data)
			if err != nil {
				return err
			}
			m.Serializers = append(m.Serializers, s)
		case 2:
			s, err := f.asString()
			if err != nil {
				return err
			}
			m.Symbols = append(m.Symbols, s)
		case 3:
			data, err := f.asBytes()
			if err != nil {
				return err
			}
			fld, err := unmarshalSerializerField(data)
			if err != nil {
				return err
			}
			m.Fields = append(m.Fields, fld)
		}
		return nil
	})
}

func unmarshalSerializerEntry(b []byte) (SerializerEntry, error) {
	var s SerializerEntry
	err := forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			s.NameSym, err = f.asInt32()
		case 2:
			s.Version, err = f.asInt32()
		case 3:
			s.FieldsIndex, err = f.asInt32s(s.FieldsIndex)
		}
		return err
	})
	return s, err
}

func unmarshalSerializerField(b []byte) (SerializerField, error) {
	var fld SerializerField
	err := forEachField(b, func(f wireField) error {
		var err error
		switch f.num {
		case 1:
			fld.VarTypeSym, err = f.asInt32()
		case 2:
			fld.VarNameSym, err = f.asInt32()
		case 3:
			fld.BitCount, err = f.asInt32()
		case 4:
			fld.LowValue, err = f.asFloat()
			fld.HasLowValue = true
		case 5:
			fld.HighValue, err = f.asFloat()
			fld.HasHighValue = true
		case 6:
			fld.EncodeFlags, err = f.asInt32()
		case 7:
			fld.FieldSerializerNameSym, err = f.asInt32()
			fld.HasFieldSerializer = true
		case 8:
			fld.FieldSerializerVersion, err = f.asInt32()
		case 9:
			fld.SendNodeSym, err = f.asInt32()
		case 10:
			fld.VarEncoderSym, err = f.asInt32()
			fld.HasVarEncoder = true
		}
		return err
	})
	return fld, err
}

// Marshal кодирует CSVCMsg_FlattenedSerializer
func (m *FlattenedSerializer) Marshal() []byte {
	var b []byte
	for _, s := range m.Serializers {
		var sb []byte
		sb = appendInt32Field(sb, 1, s.NameSym)
		sb = appendInt32Field(sb, 2, s.Version)
		for _, idx := range s.FieldsIndex {
			sb = appendTaggedVarint(sb, 3, uint64(int64(idx)))
		}
		b = appendMessageField(b, 1, sb)
	}
	for _, sym := range m.Symbols {
		b = appendMessageField(b, 2, []byte(sym))
	}
	for _, fld := range m.Fields {
		var fb []byte
		fb = appendTaggedVarint(fb, 1, uint64(int64(fld.VarTypeSym)))
		fb = appendTaggedVarint(fb, 2, uint64(int64(fld.VarNameSym)))
		fb = appendInt32Field(fb, 3, fld.BitCount)
		if fld.HasLowValue {
			fb = appendTaggedFloat(fb, 4, fld.LowValue)
		}
		if fld.HasHighValue {
			fb = appendTaggedFloat(fb, 5, fld.HighValue)
		}
		fb = appendInt32Field(fb, 6, fld.EncodeFlags)
		if fld.HasFieldSerializer {
			fb = appendTaggedVarint(fb, 7, uint64(int64(fld.FieldSerializerNameSym)))
			fb = appendInt32Field(fb, 8, fld.FieldSerializerVersion)
		}
		fb = appendInt32Field(fb, 9, fld.SendNodeSym)
		if fld.HasVarEncoder {
			fb = appendTaggedVarint(fb, 10, uint64(int64(fld.VarEncoderSym)))
		}
		b = appendMessageField(b, 3, fb)
	}
	return b
}
