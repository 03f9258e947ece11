package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/annel0/demoparse/internal/demo"
)

// ErrSeekUnavailable до нужного тика нет ни одного DEM_FullPacket
var ErrSeekUnavailable = errors.New("переход по потоку невозможен")

// seekIndex положение полных пакетов, строится один раз
type seekIndex struct {
	full      []demo.FrameInfo
	signonEnd int64 // смещение первого игрового кадра
}

func (p *Parser) buildSeekIndex() (*seekIndex, error) {
	if p.seekIdx != nil {
		return p.seekIdx, nil
	}
	idx := &seekIndex{signonEnd: -1}
	err := p.demo.Scan(func(fi demo.FrameInfo) bool {
		switch fi.Kind {
		case demo.KindFullPacket:
			idx.full = append(idx.full, fi)
			fallthrough
		case demo.KindPacket, demo.KindStop:
			if idx.signonEnd < 0 {
				idx.signonEnd = fi.Offset
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if idx.signonEnd < 0 {
		idx.signonEnd = p.demo.Size()
	}
	p.seekIdx = idx
	p.log.Debug("Индекс %s: полных пакетов %d", p.id, len(idx.full))
	return idx, nil
}

// Seek переводит разбор к тику tick через ближайший DEM_FullPacket не позже него.
//
// Вызывается до ParseAll, можно несколько раз и в любую сторону. Если схемы,
// классы и таблицы строк ещё не прочитаны, сначала применяются кадры до первого
// игрового пакета. Затем сущности и записи таблиц строк сбрасываются,
// применяется полный пакет и кадры после него с тиком меньше tick.
// Наблюдатель при этом ничего не получает: следующий ParseAll продолжает с
// первого кадра тика tick или позже и на первом тике сообщает CREATED для
// каждой живой сущности.
//
// Фатальная ошибка потока завершает сессию, как в ParseAll.
func (p *Parser) Seek(ctx context.Context, tick int32) error {
	if p.state == StateFinished {
		return ErrParserFinished
	}
	if p.running {
		return ErrInParse
	}

	idx, err := p.buildSeekIndex()
	if err != nil {
		return p.fail(err)
	}
	target := -1
	for i, fi := range idx.full {
		if fi.Tick > tick {
			break
		}
		target = i
	}
	if target < 0 {
		return fmt.Errorf("%w: нет DEM_FullPacket до тика %d", ErrSeekUnavailable, tick)
	}
	full := idx.full[target]

	p.seeking = true
	defer func() { p.seeking = false }()

	for p.demo.Position() < idx.signonEnd {
		if err := p.replayFrame(); err != nil {
			return p.fail(err)
		}
	}
	if !p.haveSchemas || p.classes.Len() == 0 {
		return fmt.Errorf("%w: до первого пакета нет схем или классов", ErrSeekUnavailable)
	}

	p.tables.Reset()
	p.entities.Reset()
	p.tickPending = false
	if err := p.demo.SetPosition(full.Offset); err != nil {
		return p.fail(err)
	}

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := p.demo.Position()
		f, err := p.demo.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.fail(err)
		}
		if !first && (f.Kind == demo.KindStop || f.Tick >= tick) {
			if err := p.demo.SetPosition(offset); err != nil {
				return p.fail(err)
			}
			break
		}
		if err := p.applyFrame(f); err != nil {
			return p.fail(err)
		}
	}

	p.entities.Announce()
	p.log.Info("Переход %s к тику %d: полный пакет тика %d, сущностей %d", p.id, tick, full.Tick, p.entities.Len())
	return nil
}

// replayFrame читает и применяет один кадр без уведомлений
func (p *Parser) replayFrame() error {
	f, err := p.demo.Next()
	if err != nil {
		return err
	}
	return p.applyFrame(f)
}

func (p *Parser) applyFrame(f *demo.Frame) error {
	p.tick = f.Tick
	p.diag.Frames++
	p.metrics.Frame(f.Kind.String())
	return p.handleFrame(f)
}
