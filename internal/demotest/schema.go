package demotest

import "github.com/annel0/demoparse/internal/protocol"

// Field описание поля для SchemaBuilder
type Field struct {
	Name       string
	Type       string
	Encoder    string
	BitCount   int32
	Low        float32
	High       float32
	Flags      int32
	Serializer string // имя вложенного сериализатора
	Version    int32  // его версия
}

// SchemaBuilder собирает CSVCMsg_FlattenedSerializer.
// Вложенные сериализаторы нужно объявлять раньше ссылающихся на них.
type SchemaBuilder struct {
	msg  protocol.FlattenedSerializer
	syms map[string]int32
}

// NewSchema создает пустую схему
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{syms: make(map[string]int32)}
}

func (s *SchemaBuilder) sym(v string) int32 {
	if i, ok := s.syms[v]; ok {
		return i
	}
	i := int32(len(s.msg.Symbols))
	s.msg.Symbols = append(s.msg.Symbols, v)
	s.syms[v] = i
	return i
}

// Serializer добавляет сериализатор с полями
func (s *SchemaBuilder) Serializer(name string, version int32, fields ...Field) *SchemaBuilder {
	entry := protocol.SerializerEntry{NameSym: s.sym(name), Version: version}
	for _, f := range fields {
		pf := protocol.SerializerField{
			VarNameSym:  s.sym(f.Name),
			VarTypeSym:  s.sym(f.Type),
			BitCount:    f.BitCount,
			EncodeFlags: f.Flags,
		}
		if f.Low != 0 || f.High != 0 {
			pf.LowValue, pf.HighValue = f.Low, f.High
			pf.HasLowValue, pf.HasHighValue = true, true
		}
		if f.Encoder != "" {
			pf.VarEncoderSym = s.sym(f.Encoder)
			pf.HasVarEncoder = true
		}
		if f.Serializer != "" {
			pf.FieldSerializerNameSym = s.sym(f.Serializer)
			pf.FieldSerializerVersion = f.Version
			pf.HasFieldSerializer = true
		}
		entry.FieldsIndex = append(entry.FieldsIndex, int32(len(s.msg.Fields)))
		s.msg.Fields = append(s.msg.Fields, pf)
	}
	s.msg.Serializers = append(s.msg.Serializers, entry)
	return s
}

// Build возвращает собранное сообщение
func (s *SchemaBuilder) Build() *protocol.FlattenedSerializer {
	out := s.msg
	return &out
}

// ItemSchema схема из двух классов, которой пользуются тесты пакетов entity и parser:
// Item {name, charges, m_vecOrigin, m_hItems} и Hero {m_iHealth, m_flMana}
func ItemSchema() *protocol.FlattenedSerializer {
	return NewSchema().
		Serializer("Item", 0,
			Field{Name: "name", Type: "char[32]"},
			Field{Name: "charges", Type: "int32"},
			Field{Name: "m_vecOrigin", Type: "Vector", Encoder: "coord"},
			Field{Name: "m_hItems", Type: "CNetworkUtlVectorBase< CHandle< CBaseEntity > >"},
		).
		Serializer("Hero", 0,
			Field{Name: "m_iHealth", Type: "int32"},
			Field{Name: "m_flMana", Type: "float32"},
		).
		Build()
}

// ItemClasses список классов к ItemSchema
func ItemClasses() []protocol.ClassInfoEntry {
	return []protocol.ClassInfoEntry{
		{ClassID: 0, NetworkName: "Item", TableName: "Item"},
		{ClassID: 1, NetworkName: "Hero", TableName: "Hero"},
	}
}
