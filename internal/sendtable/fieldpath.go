package sendtable

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/annel0/demoparse/internal/bitstream"
)

// MaxFieldPathDepth максимальная глубина пути поля
const MaxFieldPathDepth = 7

// maxOpBits длина самого длинного кода операции
const maxOpBits = 17

// ErrFieldPathDepth операция вывела путь за допустимую глубину
var ErrFieldPathDepth = errors.New("недопустимая глубина пути поля")

// FieldPath путь к полю в дереве схемы: индексы по уровням вложенности
type FieldPath struct {
	path [MaxFieldPathDepth]int32
	last int
}

func newFieldPath() FieldPath {
	return FieldPath{path: [MaxFieldPathDepth]int32{-1}}
}

// NewFieldPath создает путь из индексов
func NewFieldPath(indices ...int32) FieldPath {
	var fp FieldPath
	copy(fp.path[:], indices)
	fp.last = len(indices) - 1
	return fp
}

// Len глубина пути
func (fp FieldPath) Len() int { return fp.last + 1 }

// Indices копия индексов пути
func (fp FieldPath) Indices() []int32 {
	return append([]int32(nil), fp.path[:fp.last+1]...)
}

func (fp FieldPath) String() string {
	parts := make([]string, fp.last+1)
	for i := 0; i <= fp.last; i++ {
		parts[i] = strconv.Itoa(int(fp.path[i]))
	}
	return "/" + strings.Join(parts, "/")
}

func (fp *FieldPath) add(v int32) { fp.path[fp.last] += v }

func (fp *FieldPath) push(v int32) error {
	if fp.last+1 >= MaxFieldPathDepth {
		return ErrFieldPathDepth
	}
	fp.last++
	fp.path[fp.last] = v
	return nil
}

func (fp *FieldPath) pop(n int) error {
	if n > fp.last {
		return ErrFieldPathDepth
	}
	for i := 0; i < n; i++ {
		fp.path[fp.last] = 0
		fp.last--
	}
	return nil
}

// popN снимает n уровней, но всегда оставляет первый
func (fp *FieldPath) popN(n int) error {
	if n > fp.last+1 {
		return ErrFieldPathDepth
	}
	return fp.pop(min(n, fp.last))
}

func (fp *FieldPath) popAllButOne() {
	for fp.last > 0 {
		fp.path[fp.last] = 0
		fp.last--
	}
}

type fieldOp struct {
	name  string
	apply func(r *bitstream.Reader, fp *FieldPath) error
}

func plus(n int32) func(*bitstream.Reader, *FieldPath) error {
	return func(_ *bitstream.Reader, fp *FieldPath) error {
		fp.add(n)
		return nil
	}
}

// pushAll добавляет значения, прочитанные read, count раз
func pushAll(fp *FieldPath, count int, read func() int32) error {
	for i := 0; i < count; i++ {
		if err := fp.push(read()); err != nil {
			return err
		}
	}
	return nil
}

func nonTopo(r *bitstream.Reader, fp *FieldPath, delta func() int32) {
	for i := 0; i <= fp.last; i++ {
		if r.ReadBool() {
			fp.path[i] += delta()
		}
	}
}

// fieldOps операции путей, индексированные кодом Хаффмана
var fieldOps = map[uint32]fieldOp{
	0:   {"PlusOne", plus(1)},
	14:  {"PlusTwo", plus(2)},
	50:  {"PlusThree", plus(3)},
	223: {"PlusFour", plus(4)},
	26: {"PlusN", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(int32(r.ReadFPBitVar()) + 5)
		return nil
	}},
	3469: {"PushOneLeftDeltaZeroRightZero", func(_ *bitstream.Reader, fp *FieldPath) error {
		return fp.push(0)
	}},
	27749: {"PushOneLeftDeltaZeroRightNonZero", func(r *bitstream.Reader, fp *FieldPath) error {
		return fp.push(int32(r.ReadFPBitVar()))
	}},
	218: {"PushOneLeftDeltaOneRightZero", func(_ *bitstream.Reader, fp *FieldPath) error {
		fp.add(1)
		return fp.push(0)
	}},
	24: {"PushOneLeftDeltaOneRightNonZero", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(1)
		return fp.push(int32(r.ReadFPBitVar()))
	}},
	220: {"PushOneLeftDeltaNRightZero", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(int32(r.ReadFPBitVar()))
		return fp.push(0)
	}},
	217: {"PushOneLeftDeltaNRightNonZero", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(int32(r.ReadFPBitVar()) + 2)
		return fp.push(int32(r.ReadFPBitVar()) + 1)
	}},
	15: {"PushOneLeftDeltaNRightNonZeroPack6Bits", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(int32(r.ReadBits(3)) + 2)
		return fp.push(int32(r.ReadBits(3)) + 1)
	}},
	438: {"PushOneLeftDeltaNRightNonZeroPack8Bits", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.add(int32(r.ReadBits(4)) + 2)
		return fp.push(int32(r.ReadBits(4)) + 1)
	}},
	55496:  {"PushTwoLeftDeltaZero", pushN(2, 0, false)},
	110995: {"PushTwoPack5LeftDeltaZero", pushN(2, 0, true)},
	110994: {"PushThreeLeftDeltaZero", pushN(3, 0, false)},
	111005: {"PushThreePack5LeftDeltaZero", pushN(3, 0, true)},
	111004: {"PushTwoLeftDeltaOne", pushN(2, 1, false)},
	111007: {"PushTwoPack5LeftDeltaOne", pushN(2, 1, true)},
	111006: {"PushThreeLeftDeltaOne", pushN(3, 1, false)},
	111001: {"PushThreePack5LeftDeltaOne", pushN(3, 1, true)},
	111000: {"PushTwoLeftDeltaN", pushN(2, -1, false)},
	111003: {"PushTwoPack5LeftDeltaN", pushN(2, -1, true)},
	111002: {"PushThreeLeftDeltaN", pushN(3, -1, false)},
	55493:  {"PushThreePack5LeftDeltaN", pushN(3, -1, true)},
	55492: {"PushN", func(r *bitstream.Reader, fp *FieldPath) error {
		n := int(r.ReadUBitVar())
		fp.add(int32(r.ReadUBitVar()))
		return pushAll(fp, n, func() int32 { return int32(r.ReadFPBitVar()) })
	}},
	443: {"PushNAndNonTopological", func(r *bitstream.Reader, fp *FieldPath) error {
		nonTopo(r, fp, func() int32 { return r.ReadVarInt32() + 1 })
		n := int(r.ReadUBitVar())
		return pushAll(fp, n, func() int32 { return int32(r.ReadFPBitVar()) })
	}},
	27745: {"PopOnePlusOne", func(_ *bitstream.Reader, fp *FieldPath) error {
		if err := fp.pop(1); err != nil {
			return err
		}
		fp.add(1)
		return nil
	}},
	55495: {"PopOnePlusN", func(r *bitstream.Reader, fp *FieldPath) error {
		if err := fp.pop(1); err != nil {
			return err
		}
		fp.add(int32(r.ReadFPBitVar()) + 1)
		return nil
	}},
	51: {"PopAllButOnePlusOne", func(_ *bitstream.Reader, fp *FieldPath) error {
		fp.popAllButOne()
		fp.add(1)
		return nil
	}},
	432: {"PopAllButOnePlusN", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.popAllButOne()
		fp.add(int32(r.ReadFPBitVar()) + 1)
		return nil
	}},
	442: {"PopAllButOnePlusNPack3Bits", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.popAllButOne()
		fp.add(int32(r.ReadBits(3)) + 1)
		return nil
	}},
	222: {"PopAllButOnePlusNPack6Bits", func(r *bitstream.Reader, fp *FieldPath) error {
		fp.popAllButOne()
		fp.add(int32(r.ReadBits(6)) + 1)
		return nil
	}},
	55494: {"PopNPlusOne", func(r *bitstream.Reader, fp *FieldPath) error {
		if err := fp.popN(int(r.ReadFPBitVar())); err != nil {
			return err
		}
		fp.add(1)
		return nil
	}},
	55489: {"PopNPlusN", func(r *bitstream.Reader, fp *FieldPath) error {
		if err := fp.popN(int(r.ReadFPBitVar())); err != nil {
			return err
		}
		fp.add(r.ReadVarInt32())
		return nil
	}},
	55488: {"PopNAndNonTopological", func(r *bitstream.Reader, fp *FieldPath) error {
		if err := fp.popN(int(r.ReadFPBitVar())); err != nil {
			return err
		}
		nonTopo(r, fp, r.ReadVarInt32)
		return nil
	}},
	1735: {"NonTopoComplex", func(r *bitstream.Reader, fp *FieldPath) error {
		nonTopo(r, fp, r.ReadVarInt32)
		return nil
	}},
	439: {"NonTopoPenultimatePlusOne", func(_ *bitstream.Reader, fp *FieldPath) error {
		if fp.last < 1 {
			return ErrFieldPathDepth
		}
		fp.path[fp.last-1]++
		return nil
	}},
	866: {"NonTopoComplexPack4Bits", func(r *bitstream.Reader, fp *FieldPath) error {
		nonTopo(r, fp, func() int32 { return int32(r.ReadBits(4)) - 7 })
		return nil
	}},
}

// opFinish код завершения списка путей
const opFinish = 2

// pushN операции PushTwo*/PushThree*: delta < 0 означает ubitvar+2
func pushN(count int, delta int32, pack5 bool) func(*bitstream.Reader, *FieldPath) error {
	return func(r *bitstream.Reader, fp *FieldPath) error {
		switch {
		case delta < 0:
			fp.add(int32(r.ReadUBitVar()) + 2)
		case delta > 0:
			fp.add(delta)
		}
		if pack5 {
			return pushAll(fp, count, func() int32 { return int32(r.ReadBits(5)) })
		}
		return pushAll(fp, count, func() int32 { return int32(r.ReadFPBitVar()) })
	}
}

// ReadFieldPaths читает пути полей до маркера завершения
func ReadFieldPaths(r *bitstream.Reader) ([]FieldPath, error) {
	fp := newFieldPath()
	paths := make([]FieldPath, 0, 16)

	for {
		var code uint32
		var op fieldOp
		found, finished := false, false

		for i := 0; i < maxOpBits; i++ {
			code = code<<1 | r.ReadBits(1)
			if code == opFinish {
				finished = true
				break
			}
			if op, found = fieldOps[code]; found {
				break
			}
		}
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("чтение пути поля: %w", err)
		}
		if finished {
			return paths, nil
		}
		if !found {
			return nil, fmt.Errorf("неизвестная операция пути поля (код %d)", code)
		}

		if err := op.apply(r, &fp); err != nil {
			return nil, fmt.Errorf("операция %s над %s: %w", op.name, fp, err)
		}
		paths = append(paths, fp)
	}
}

// Коды операций, которыми пользуется WriteFieldPaths
const (
	codePlusOne     = 0
	codePlusTwo     = 14
	codePlusThree   = 50
	codePlusFour    = 223
	codePlusN       = 26
	codeNonTopo     = 1735
	codePushNonTopo = 443
	codePopNonTopo  = 55488
)

func writeOp(w *bitstream.Writer, code uint32) {
	n := uint(bits.Len32(code))
	if n == 0 {
		n = 1
	}
	for i := int(n) - 1; i >= 0; i-- {
		w.WriteBits(code>>uint(i)&1, 1)
	}
}

// writeDeltas пишет поправки общих уровней для NonTopo-операций
func writeDeltas(w *bitstream.Writer, from, to FieldPath, depth int, bias int32) {
	for i := 0; i < depth; i++ {
		d := to.path[i] - from.path[i]
		w.WriteBool(d != 0)
		if d != 0 {
			w.WriteVarInt32(d - bias)
		}
	}
}

// WriteFieldPaths кодирует пути в формате ReadFieldPaths.
// Каждый путь кодируется ровно одной операцией.
func WriteFieldPaths(w *bitstream.Writer, paths []FieldPath) error {
	cur := newFieldPath()

	for _, p := range paths {
		if p.last < 0 || p.last >= MaxFieldPathDepth {
			return ErrFieldPathDepth
		}
		delta := p.path[0] - cur.path[0]

		switch {
		case p.last == 0 && cur.last == 0 && delta >= 1:
			switch delta {
			case 1:
				writeOp(w, codePlusOne)
			case 2:
				writeOp(w, codePlusTwo)
			case 3:
				writeOp(w, codePlusThree)
			case 4:
				writeOp(w, codePlusFour)
			default:
				writeOp(w, codePlusN)
				w.WriteFPBitVar(uint32(delta - 5))
			}
		case p.last == cur.last:
			writeOp(w, codeNonTopo)
			writeDeltas(w, cur, p, p.last+1, 0)
		case p.last > cur.last:
			writeOp(w, codePushNonTopo)
			writeDeltas(w, cur, p, cur.last+1, 1)
			w.WriteUBitVar(uint32(p.last - cur.last))
			for i := cur.last + 1; i <= p.last; i++ {
				if p.path[i] < 0 {
					return fmt.Errorf("отрицательный индекс в пути %s", p)
				}
				w.WriteFPBitVar(uint32(p.path[i]))
			}
		default:
			writeOp(w, codePopNonTopo)
			w.WriteFPBitVar(uint32(cur.last - p.last))
			writeDeltas(w, cur, p, p.last+1, 0)
		}
		cur = p
	}

	writeOp(w, opFinish)
	return nil
}
