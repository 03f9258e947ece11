package protocol

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// MalformedPacketError данные известного сообщения не соответствуют схеме
type MalformedPacketError struct {
	ID  PacketID
	Err error
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("повреждённое сообщение %s: %v", PacketName(e.ID), e.Err)
}

func (e *MalformedPacketError) Unwrap() error { return e.Err }

// ErrUnrecognized возвращается при попытке получить JSON нераспознанного сообщения
var ErrUnrecognized = errors.New("unrecognized packet")

// Packet декодированное сообщение
type Packet struct {
	ID           PacketID
	Name         string        // имя по идентификатору, как в PacketName
	Type         string        // имя схемы protobuf; пусто у нераспознанных
	Message      proto.Message // nil, если схема не зарегистрирована
	Raw          []byte
	Unrecognized bool
}

// Field возвращает значение поля по имени из схемы
func (p *Packet) Field(name string) (any, bool) {
	if p.Message == nil {
		return nil, false
	}
	m := p.Message.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil || !m.Has(fd) {
		return nil, false
	}
	return m.Get(fd).Interface(), true
}

// JSON возвращает сообщение в виде JSON
func (p *Packet) JSON() ([]byte, error) {
	if p.Message == nil {
		return nil, ErrUnrecognized
	}
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(p.Message)
}

// Registry сопоставляет идентификаторы сообщений со схемами.
// Принадлежит одной сессии разбора; глобального состояния нет.
type Registry struct {
	mu      sync.RWMutex
	schemas map[PacketID]protoreflect.MessageDescriptor
}

// NewRegistry создает реестр со встроенными схемами
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[PacketID]protoreflect.MessageDescriptor)}
	for id, md := range builtinSchemas() {
		r.schemas[id] = md
	}
	return r
}

// RegisterSchema добавляет или заменяет схему сообщения
func (r *Registry) RegisterSchema(id PacketID, md protoreflect.MessageDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[id] = md
}

// Lookup возвращает схему сообщения
func (r *Registry) Lookup(id PacketID) (protoreflect.MessageDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.schemas[id]
	return md, ok
}

// Decode декодирует сообщение по схеме. Неизвестные сообщения не считаются
// ошибкой: возвращается пакет с флагом Unrecognized и сырыми байтами.
func (r *Registry) Decode(id PacketID, payload []byte) (*Packet, error) {
	p := &Packet{ID: id, Name: PacketName(id), Raw: payload}

	md, ok := r.Lookup(id)
	if !ok {
		p.Unrecognized = true
		return p, nil
	}

	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, &MalformedPacketError{ID: id, Err: err}
	}
	p.Type = string(md.Name())
	p.Message = msg
	return p, nil
}

var (
	builtinOnce sync.Once
	builtinFile protoreflect.FileDescriptor
	builtinErr  error
)

// builtinSchemas собирает дескрипторы встроенных сообщений во время выполнения
func builtinSchemas() map[PacketID]protoreflect.MessageDescriptor {
	builtinOnce.Do(func() {
		builtinFile, builtinErr = protodesc.NewFile(builtinFileProto(), nil)
	})
	if builtinErr != nil {
		// Дескриптор собирается из констант; ошибка здесь означает баг в builtinFileProto
		panic(fmt.Sprintf("ошибка сборки встроенных схем: %v", builtinErr))
	}

	msgs := builtinFile.Messages()
	return map[PacketID]protoreflect.MessageDescriptor{
		NetTick:               msgs.ByName("CNETMsg_Tick"),
		SvcPrint:              msgs.ByName("CSVCMsg_Print"),
		UMSayText2:            msgs.ByName("CUserMessageSayText2"),
		GELegacyGameEventList: msgs.ByName("CMsgSource1LegacyGameEventList"),
		GELegacyGameEvent:     msgs.ByName("CMsgSource1LegacyGameEvent"),
		DOTACombatLogDataHLTV: msgs.ByName("CMsgDOTACombatLogEntry"),
	}
}

type fieldSpec struct {
	name     string
	num      int32
	typ      descriptorpb.FieldDescriptorProto_Type
	repeated bool
	msg      string
}

const builtinPackage = "demoparse.builtin"

func message(name string, fields ...fieldSpec) *descriptorpb.DescriptorProto {
	d := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for _, f := range fields {
		label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		if f.repeated {
			label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
		}
		fd := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.name),
			Number: proto.Int32(f.num),
			Type:   f.typ.Enum(),
			Label:  label.Enum(),
		}
		if f.msg != "" {
			fd.TypeName = proto.String("." + builtinPackage + "." + f.msg)
		}
		d.Field = append(d.Field, fd)
	}
	return d
}

func builtinFileProto() *descriptorpb.FileDescriptorProto {
	const (
		u32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		i32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
		u64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		str  = descriptorpb.FieldDescriptorProto_TYPE_STRING
		bl   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		flt  = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
		msgT = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("demoparse/builtin.proto"),
		Package: proto.String(builtinPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("CNETMsg_Tick",
				fieldSpec{name: "tick", num: 1, typ: u32},
				fieldSpec{name: "host_frametime", num: 2, typ: u32},
				fieldSpec{name: "host_frametime_std_deviation", num: 3, typ: u32},
				fieldSpec{name: "host_computationtime", num: 4, typ: u32},
				fieldSpec{name: "host_computationtime_std_deviation", num: 5, typ: u32},
				fieldSpec{name: "host_framestarttime_std_deviation", num: 6, typ: u32},
				fieldSpec{name: "host_loss", num: 7, typ: u32},
			),
			message("CSVCMsg_Print",
				fieldSpec{name: "text", num: 1, typ: str},
			),
			message("CUserMessageSayText2",
				fieldSpec{name: "entityindex", num: 1, typ: u32},
				fieldSpec{name: "chat", num: 2, typ: bl},
				fieldSpec{name: "messagename", num: 3, typ: str},
				fieldSpec{name: "param1", num: 4, typ: str},
				fieldSpec{name: "param2", num: 5, typ: str},
				fieldSpec{name: "param3", num: 6, typ: str},
				fieldSpec{name: "param4", num: 7, typ: str},
			),
			message("GameEventKeyDescriptor",
				fieldSpec{name: "type", num: 1, typ: i32},
				fieldSpec{name: "name", num: 2, typ: str},
			),
			message("GameEventDescriptor",
				fieldSpec{name: "eventid", num: 1, typ: i32},
				fieldSpec{name: "name", num: 2, typ: str},
				fieldSpec{name: "keys", num: 3, typ: msgT, repeated: true, msg: "GameEventKeyDescriptor"},
			),
			message("CMsgSource1LegacyGameEventList",
				fieldSpec{name: "descriptors", num: 1, typ: msgT, repeated: true, msg: "GameEventDescriptor"},
			),
			message("GameEventKey",
				fieldSpec{name: "type", num: 1, typ: i32},
				fieldSpec{name: "val_string", num: 2, typ: str},
				fieldSpec{name: "val_float", num: 3, typ: flt},
				fieldSpec{name: "val_long", num: 4, typ: i32},
				fieldSpec{name: "val_short", num: 5, typ: i32},
				fieldSpec{name: "val_byte", num: 6, typ: i32},
				fieldSpec{name: "val_bool", num: 7, typ: bl},
				fieldSpec{name: "val_uint64", num: 8, typ: u64},
			),
			message("CMsgSource1LegacyGameEvent",
				fieldSpec{name: "event_name", num: 1, typ: str},
				fieldSpec{name: "eventid", num: 2, typ: i32},
				fieldSpec{name: "keys", num: 3, typ: msgT, repeated: true, msg: "GameEventKey"},
				fieldSpec{name: "server_tick", num: 4, typ: i32},
				fieldSpec{name: "passthrough", num: 5, typ: i32},
			),
			message("CMsgDOTACombatLogEntry",
				fieldSpec{name: "type", num: 1, typ: i32},
				fieldSpec{name: "target_name", num: 2, typ: u32},
				fieldSpec{name: "target_source_name", num: 3, typ: u32},
				fieldSpec{name: "attacker_name", num: 4, typ: u32},
				fieldSpec{name: "damage_source_name", num: 5, typ: u32},
				fieldSpec{name: "inflictor_name", num: 6, typ: u32},
				fieldSpec{name: "is_attacker_illusion", num: 7, typ: bl},
				fieldSpec{name: "is_attacker_hero", num: 8, typ: bl},
				fieldSpec{name: "is_target_illusion", num: 9, typ: bl},
				fieldSpec{name: "is_target_hero", num: 10, typ: bl},
				fieldSpec{name: "is_visible_radiant", num: 11, typ: bl},
				fieldSpec{name: "is_visible_dire", num: 12, typ: bl},
				fieldSpec{name: "value", num: 13, typ: u32},
				fieldSpec{name: "health", num: 14, typ: i32},
				fieldSpec{name: "timestamp", num: 15, typ: flt},
				fieldSpec{name: "stun_duration", num: 16, typ: flt},
				fieldSpec{name: "slow_duration", num: 17, typ: flt},
				fieldSpec{name: "is_ability_toggle_on", num: 18, typ: bl},
				fieldSpec{name: "is_ability_toggle_off", num: 19, typ: bl},
				fieldSpec{name: "ability_level", num: 20, typ: u32},
			),
		},
	}
}
