package sendtable

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/annel0/demoparse/internal/protocol"
	"github.com/cespare/xxhash/v2"
)

// Serializer упорядоченная схема полей сетевого класса
type Serializer struct {
	Name    string
	Version int32
	Fields  []*Field

	fingerprint uint64
}

// Key стабильный ключ поля по полному точечному имени
func Key(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Fingerprint хеш структуры схемы: одинаковые схемы дают одинаковый отпечаток
func (s *Serializer) Fingerprint() uint64 {
	if s.fingerprint == 0 {
		d := xxhash.New()
		s.writeFingerprint(d)
		s.fingerprint = d.Sum64()
	}
	return s.fingerprint
}

func (s *Serializer) writeFingerprint(d *xxhash.Digest) {
	var buf [4]byte
	putInt := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		d.Write(buf[:])
	}

	d.WriteString(s.Name)
	putInt(uint32(s.Version))
	putInt(uint32(len(s.Fields)))
	for _, f := range s.Fields {
		d.WriteString(f.Name)
		d.WriteString("\x00")
		d.WriteString(f.Type)
		d.WriteString("\x00")
		d.WriteString(f.Encoder)
		d.WriteString("\x00")
		putInt(uint32(f.BitCount))
		putInt(math.Float32bits(f.LowValue))
		putInt(math.Float32bits(f.HighValue))
		putInt(uint32(f.EncodeFlags))
		if f.Serializer != nil {
			f.Serializer.writeFingerprint(d)
		}
	}
}

// Resolve возвращает полное имя и декодер поля по пути
func (s *Serializer) Resolve(fp FieldPath) (string, *Decoder, error) {
	path := fp.Indices()
	if len(path) == 0 {
		return "", nil, fmt.Errorf("пустой путь поля")
	}
	name, dec, err := s.resolve(path, "")
	if err != nil {
		return "", nil, fmt.Errorf("%s: путь %v: %w", s.Name, path, err)
	}
	return name, dec, nil
}

func (s *Serializer) resolve(path []int32, prefix string) (string, *Decoder, error) {
	i := path[0]
	if i < 0 || int(i) >= len(s.Fields) {
		return "", nil, fmt.Errorf("индекс %d вне схемы %s (%d полей)", i, s.Name, len(s.Fields))
	}
	f := s.Fields[i]
	name := f.Name
	if prefix != "" {
		name = prefix + "." + f.Name
	}
	rest := path[1:]

	switch f.Model {
	case ModelSimple:
		if len(rest) == 0 {
			return name, f.Decoder, nil
		}
	case ModelFixedArray:
		if len(rest) == 0 {
			return name, f.Decoder, nil
		}
		if len(rest) == 1 && rest[0] >= 0 && int(rest[0]) < f.Length {
			return name + "." + strconv.Itoa(int(rest[0])), f.Decoder, nil
		}
	case ModelVariableArray:
		if len(rest) == 0 {
			return name, varUintDecoder, nil
		}
		if len(rest) == 1 && rest[0] >= 0 {
			return name + "." + strconv.Itoa(int(rest[0])), f.Decoder, nil
		}
	case ModelFixedTable:
		if len(rest) == 0 {
			return name, boolDecoder, nil
		}
		return f.Serializer.resolve(rest, name)
	case ModelVariableTable:
		if len(rest) == 0 {
			return name, varUintDecoder, nil
		}
		if len(rest) >= 2 && rest[0] >= 0 {
			return f.Serializer.resolve(rest[1:], name+"."+strconv.Itoa(int(rest[0])))
		}
	}
	return "", nil, fmt.Errorf("путь не соответствует полю %s (%s)", name, f.Model)
}

// Build строит схемы из CSVCMsg_FlattenedSerializer.
// Результат индексирован по имени; при нескольких версиях побеждает последняя.
func Build(msg *protocol.FlattenedSerializer) (map[string]*Serializer, error) {
	fields := make([]*Field, len(msg.Fields))
	versioned := make(map[string]*Serializer, len(msg.Serializers))
	out := make(map[string]*Serializer, len(msg.Serializers))

	for _, entry := range msg.Serializers {
		name, err := msg.Symbol(entry.NameSym)
		if err != nil {
			return nil, fmt.Errorf("имя сериализатора: %w", err)
		}
		s := &Serializer{Name: name, Version: entry.Version}

		for _, fi := range entry.FieldsIndex {
			if fi < 0 || int(fi) >= len(msg.Fields) {
				return nil, fmt.Errorf("сериализатор %s: поле %d вне таблицы", name, fi)
			}
			if fields[fi] == nil {
				f, err := buildField(msg, &msg.Fields[fi], versioned)
				if err != nil {
					return nil, fmt.Errorf("сериализатор %s: %w", name, err)
				}
				fields[fi] = f
			}
			s.Fields = append(s.Fields, fields[fi])
		}

		versioned[versionedName(name, entry.Version)] = s
		out[name] = s
	}
	return out, nil
}

func versionedName(name string, version int32) string {
	if version == 0 {
		return name
	}
	return name + strconv.Itoa(int(version))
}

func buildField(msg *protocol.FlattenedSerializer, pf *protocol.SerializerField, known map[string]*Serializer) (*Field, error) {
	name, err := msg.Symbol(pf.VarNameSym)
	if err != nil {
		return nil, err
	}
	typ, err := msg.Symbol(pf.VarTypeSym)
	if err != nil {
		return nil, err
	}

	f := &Field{
		Name:        name,
		Type:        typ,
		BitCount:    pf.BitCount,
		LowValue:    pf.LowValue,
		HighValue:   pf.HighValue,
		EncodeFlags: pf.EncodeFlags,
	}
	if !pf.HasHighValue {
		f.HighValue = 1
	}
	if pf.HasVarEncoder {
		if f.Encoder, err = msg.Symbol(pf.VarEncoderSym); err != nil {
			return nil, err
		}
	}

	if pf.HasFieldSerializer {
		ref, err := msg.Symbol(pf.FieldSerializerNameSym)
		if err != nil {
			return nil, err
		}
		nested, ok := known[versionedName(ref, pf.FieldSerializerVersion)]
		if !ok {
			return nil, fmt.Errorf("поле %s ссылается на неизвестный сериализатор %s", name, ref)
		}
		f.Serializer = nested
	}

	if err := f.classify(pf.HasFieldSerializer); err != nil {
		return nil, fmt.Errorf("поле %s: %w", name, err)
	}
	return f, nil
}
