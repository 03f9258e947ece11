package stringtable

import (
	"fmt"

	"github.com/annel0/demoparse/internal/bitstream"
	"github.com/annel0/demoparse/internal/demo"
)

const (
	keyHistorySize = 32
	maxKeySize     = 1024
	maxValueBits   = 1 << 24

	// flagValueCompressed значения записей могут быть сжаты snappy
	flagValueCompressed = 1
)

// ParseEntries декодирует упакованные записи из CreateStringTable/UpdateStringTable.
// Для записей без значения Value == nil, для записей без ключа Key == "".
func ParseEntries(data []byte, count int, opts Options) ([]Entry, error) {
	r := bitstream.NewReader(data)
	out := make([]Entry, 0, count)
	keys := make([]string, 0, keyHistorySize)
	index := int32(-1)

	for i := 0; i < count; i++ {
		if r.ReadBool() {
			index++
		} else {
			index += int32(r.ReadVarUint32()) + 2
		}

		var e Entry
		e.Index = index

		if r.ReadBool() {
			key := ""
			if r.ReadBool() {
				pos := int(r.ReadBits(5))
				size := int(r.ReadBits(5))
				if pos < len(keys) {
					prefix := keys[pos]
					if size < len(prefix) {
						prefix = prefix[:size]
					}
					key = prefix
				}
				key += r.ReadString(maxKeySize)
			} else {
				key = r.ReadString(maxKeySize)
			}

			if len(keys) == keyHistorySize {
				copy(keys, keys[1:])
				keys = keys[:keyHistorySize-1]
			}
			keys = append(keys, key)
			e.Key = key
		}

		if r.ReadBool() {
			value, err := readValue(r, opts)
			if err != nil {
				return nil, fmt.Errorf("запись %d: %w", index, err)
			}
			e.Value = value
		}

		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("ошибка разбора записи %d из %d: %w", i, count, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func readValue(r *bitstream.Reader, opts Options) ([]byte, error) {
	if opts.UserDataFixedSize {
		return r.ReadBitsToBytes(uint(opts.UserDataSizeBits)), nil
	}

	compressed := false
	if opts.Flags&flagValueCompressed != 0 {
		compressed = r.ReadBool()
	}

	var size uint32
	if opts.UsingVarintBitcounts {
		size = r.ReadUBitVar()
	} else {
		size = r.ReadBits(17)
	}
	if uint64(size)*8 > maxValueBits {
		return nil, fmt.Errorf("слишком большое значение: %d байт", size)
	}

	value := r.ReadBytes(int(size))
	if !compressed || r.Err() != nil {
		return value, nil
	}
	out, err := demo.Decompress(value)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки значения: %w", err)
	}
	return out, nil
}

// EncodeEntries кодирует записи в формат ParseEntries.
// Ключи пишутся целиком, без ссылок на историю.
func EncodeEntries(entries []Entry, opts Options) []byte {
	w := bitstream.NewWriter()
	index := int32(-1)

	for _, e := range entries {
		if e.Index == index+1 {
			w.WriteBool(true)
		} else {
			w.WriteBool(false)
			w.WriteVarUint32(uint32(e.Index - index - 2))
		}
		index = e.Index

		w.WriteBool(e.Key != "")
		if e.Key != "" {
			w.WriteBool(false)
			w.WriteString(e.Key)
		}

		w.WriteBool(e.Value != nil)
		if e.Value == nil {
			continue
		}
		if opts.UserDataFixedSize {
			bits := uint(opts.UserDataSizeBits)
			for i := 0; bits > 0; i++ {
				n := min(bits, 8)
				var b byte
				if i < len(e.Value) {
					b = e.Value[i]
				}
				w.WriteBits(uint32(b), n)
				bits -= n
			}
			continue
		}
		if opts.Flags&flagValueCompressed != 0 {
			w.WriteBool(false)
		}
		if opts.UsingVarintBitcounts {
			w.WriteUBitVar(uint32(len(e.Value)))
		} else {
			w.WriteBits(uint32(len(e.Value)), 17)
		}
		w.WriteBytes(e.Value)
	}
	return w.Bytes()
}
