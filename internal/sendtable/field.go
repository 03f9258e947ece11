package sendtable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/annel0/demoparse/internal/logging"
)

// FieldModel форма поля в дереве схемы
type FieldModel uint8

const (
	ModelSimple FieldModel = iota
	ModelFixedArray
	ModelVariableArray
	ModelFixedTable
	ModelVariableTable
)

func (m FieldModel) String() string {
	switch m {
	case ModelSimple:
		return "simple"
	case ModelFixedArray:
		return "fixed-array"
	case ModelVariableArray:
		return "variable-array"
	case ModelFixedTable:
		return "fixed-table"
	case ModelVariableTable:
		return "variable-table"
	}
	return "unknown"
}

// Field описание одного поля сериализатора
type Field struct {
	Name        string
	Type        string
	Encoder     string
	BitCount    int32
	LowValue    float32
	HighValue   float32
	EncodeFlags int32

	Model  FieldModel
	Length int // размер фиксированного массива

	// Decoder декодер значения (для массивов декодер элемента)
	Decoder *Decoder
	// Serializer вложенная схема для таблиц
	Serializer *Serializer
}

// fieldType разобранный тип вида Base< Generic >*[Count]
type fieldType struct {
	base    string
	generic *fieldType
	pointer bool
	count   int
}

var fieldTypeRe = regexp.MustCompile(`^([^<\[\*]+)(<\s(.*)\s>)?(\*)?(\[(.*)\])?$`)

// Размеры массивов, заданные константами движка
var arraySizeConstants = map[string]int{
	"MAX_ITEM_STOCKS":             8,
	"MAX_ABILITY_DRAFT_ABILITIES": 48,
}

func parseFieldType(s string) (*fieldType, error) {
	m := fieldTypeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, fmt.Errorf("не удалось разобрать тип %q", s)
	}

	ft := &fieldType{base: strings.TrimSpace(m[1]), pointer: m[4] == "*"}
	if m[3] != "" {
		g, err := parseFieldType(m[3])
		if err != nil {
			return nil, err
		}
		ft.generic = g
	}
	if m[6] != "" {
		if n, err := strconv.Atoi(m[6]); err == nil {
			ft.count = n
		} else if n, ok := arraySizeConstants[m[6]]; ok {
			ft.count = n
		} else {
			logging.Warn("Неизвестный размер массива %q в типе %q, поле считается простым", m[6], s)
		}
	}
	return ft, nil
}

func isVectorType(base string) bool {
	switch base {
	case "CUtlVector", "CNetworkUtlVectorBase", "CUtlVectorEmbeddedNetworkVar":
		return true
	}
	return false
}

// classify определяет модель поля и его декодер
func (f *Field) classify(hasSerializer bool) error {
	ft, err := parseFieldType(f.Type)
	if err != nil {
		return err
	}

	switch {
	case hasSerializer && (ft.pointer || !isVectorType(ft.base)):
		f.Model = ModelFixedTable
		f.Decoder = boolDecoder
	case hasSerializer:
		f.Model = ModelVariableTable
		f.Decoder = varUintDecoder
	case ft.count > 0 && ft.base != "char":
		f.Model = ModelFixedArray
		f.Length = ft.count
		f.Decoder = f.decoderFor(ft.base)
	case isVectorType(ft.base) && ft.generic != nil:
		f.Model = ModelVariableArray
		f.Decoder = f.decoderFor(ft.generic.base)
	default:
		f.Model = ModelSimple
		f.Decoder = f.decoderFor(ft.base)
	}
	return nil
}

// decoderFor подбирает стратегию декодирования по базовому типу и кодировщику
func (f *Field) decoderFor(base string) *Decoder {
	if f.Encoder == "fixed64" {
		return fixed64Decoder
	}

	switch base {
	case "bool":
		return boolDecoder
	case "char", "CUtlString", "CUtlSymbolLarge":
		return stringDecoder
	case "int8", "int16", "int32", "int64":
		return varIntDecoder
	case "uint8", "uint16", "uint32", "uint64", "CHandle", "CEntityHandle",
		"CGameSceneNodeHandle", "Color", "CUtlStringToken", "HSequence", "CEntityIndex":
		return varUintDecoder
	case "CStrongHandle":
		return resourceDecoder
	case "float32", "float64", "GameTime_t", "CNetworkedQuantizedFloat":
		return newFloatDecoder(DecodeFloat, 1, f)
	case "Vector":
		if f.Encoder == "normal" {
			return &Decoder{Kind: DecodeNormal, Components: 3}
		}
		return newFloatDecoder(DecodeVector, 3, f)
	case "Vector2D":
		return newFloatDecoder(DecodeVector, 2, f)
	case "Vector4D", "Quaternion":
		return newFloatDecoder(DecodeVector, 4, f)
	case "QAngle":
		return f.qangleDecoder()
	}
	return varUintDecoder
}

func (f *Field) qangleDecoder() *Decoder {
	if f.Encoder == "qangle_pitch_yaw" {
		return &Decoder{Kind: DecodeQAnglePitchYaw, Components: 3, Bits: uint(f.BitCount)}
	}
	if f.BitCount == 0 {
		return &Decoder{Kind: DecodeQAngle, Components: 3, Float: FloatCoord}
	}
	d := newFloatDecoder(DecodeQAngle, 3, f)
	d.Bits = uint(f.BitCount)
	return d
}
