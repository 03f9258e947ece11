package sendtable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/demoparse/internal/bitstream"
)

// FieldDecodeError ошибка одного поля. Значение поля остается незаданным.
type FieldDecodeError struct {
	Path FieldPath
	Err  error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("ошибка декодирования поля %s: %v", e.Path, e.Err)
}

func (e *FieldDecodeError) Unwrap() error { return e.Err }

// ErrFieldSkipped поле стоит после неразрешимого пути и не читалось
var ErrFieldSkipped = errors.New("поле пропущено после неразрешимого пути")

// UnresolvedPathError путь поля не разрешается схемой. Ширина значения
// неизвестна, поэтому ни следующие поля дельты, ни следующие дельты
// того же потока прочитать нельзя.
type UnresolvedPathError struct {
	Path FieldPath
	Err  error
}

func (e *UnresolvedPathError) Error() string {
	return fmt.Sprintf("путь %s не разрешается схемой: %v", e.Path, e.Err)
}

func (e *UnresolvedPathError) Unwrap() error { return e.Err }

// ReadFields читает дельту полей: сначала все пути, затем значения в том же порядке.
//
// Если путь не разрешается схемой, он и все следующие пути дельты попадают
// в fieldErrs, их значения остаются незаданными, а err == *UnresolvedPathError.
// Уже прочитанные поля сохраняются. Любая другая ошибка означает
// поврежденный поток.
func ReadFields(r *bitstream.Reader, s *Serializer, st *State) ([]*FieldDecodeError, error) {
	paths, err := ReadFieldPaths(r)
	if err != nil {
		return nil, err
	}

	var fieldErrs []*FieldDecodeError
	for i, fp := range paths {
		name, dec, err := s.Resolve(fp)
		if err != nil {
			fieldErrs = append(fieldErrs, &FieldDecodeError{Path: fp, Err: err})
			for _, rest := range paths[i+1:] {
				fieldErrs = append(fieldErrs, &FieldDecodeError{Path: rest, Err: ErrFieldSkipped})
			}
			return fieldErrs, &UnresolvedPathError{Path: fp, Err: err}
		}

		key := Key(name)
		var prev any
		if p, ok := st.props[key]; ok {
			prev = p.Value
		}

		v := dec.Decode(r, prev)
		if err := r.Err(); err != nil {
			return fieldErrs, fmt.Errorf("поле %s: %w", name, err)
		}
		st.SetByKey(key, name, v)
	}
	return fieldErrs, nil
}

// FieldValue значение для записи по пути
type FieldValue struct {
	Path  FieldPath
	Value any
}

// WriteFields кодирует дельту в формате ReadFields
func WriteFields(w *bitstream.Writer, s *Serializer, values []FieldValue) error {
	paths := make([]FieldPath, len(values))
	for i, v := range values {
		paths[i] = v.Path
	}
	if err := WriteFieldPaths(w, paths); err != nil {
		return err
	}

	for _, v := range values {
		name, dec, err := s.Resolve(v.Path)
		if err != nil {
			return err
		}
		if err := dec.Encode(w, v.Value); err != nil {
			return fmt.Errorf("поле %s: %w", name, err)
		}
	}
	return nil
}

// PathOf переводит полное точечное имя в путь поля
func (s *Serializer) PathOf(name string) (FieldPath, error) {
	var idx []int32
	cur := s
	parts := strings.Split(name, ".")

	for i := 0; i < len(parts); i++ {
		if cur == nil {
			return FieldPath{}, fmt.Errorf("поле %q не найдено в %s", name, s.Name)
		}
		fi := cur.fieldIndex(parts[i])
		if fi < 0 {
			return FieldPath{}, fmt.Errorf("поле %q не найдено в %s", name, s.Name)
		}
		idx = append(idx, int32(fi))
		f := cur.Fields[fi]
		cur = nil

		switch f.Model {
		case ModelFixedArray, ModelVariableArray:
			if i+1 < len(parts) {
				n, err := strconv.Atoi(parts[i+1])
				if err != nil {
					return FieldPath{}, fmt.Errorf("ожидался индекс элемента в %q", name)
				}
				idx = append(idx, int32(n))
				i++
			}
		case ModelFixedTable:
			cur = f.Serializer
		case ModelVariableTable:
			if i+1 < len(parts) {
				n, err := strconv.Atoi(parts[i+1])
				if err != nil {
					return FieldPath{}, fmt.Errorf("ожидался индекс элемента в %q", name)
				}
				idx = append(idx, int32(n))
				i++
				cur = f.Serializer
			}
		}
	}

	if len(idx) > MaxFieldPathDepth {
		return FieldPath{}, ErrFieldPathDepth
	}
	return NewFieldPath(idx...), nil
}

func (s *Serializer) fieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
