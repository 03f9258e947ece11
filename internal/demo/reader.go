package demo

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic сигнатура демо-файла Source 2
var Magic = [8]byte{'P', 'B', 'D', 'E', 'M', 'S', '2', 0}

// HeaderSize размер заголовка файла: сигнатура и два смещения
const HeaderSize = 16

// Header заголовок файла
type Header struct {
	FileInfoOffset    int32 // смещение кадра DEM_FileInfo
	SpawnGroupsOffset int32 // смещение кадра DEM_SpawnGroups
}

// Frame один кадр потока.
// Payload уже распакован, даже если Compressed == true.
type Frame struct {
	Kind       Kind
	Compressed bool
	Tick       int32
	Payload    []byte
	Offset     int64 // смещение заголовка кадра в файле
}

// Reader последовательно читает кадры из источника.
// Последовательность конечная и не перезапускается.
type Reader struct {
	src    io.ReadSeeker
	br     *bufio.Reader
	pos    int64
	size   int64
	header Header
	dec    Decompressor
}

// NewReader проверяет заголовок и возвращает читатель, стоящий на первом кадре
func NewReader(src io.ReadSeeker) (*Reader, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения размера потока: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки потока: %w", err)
	}

	r := &Reader{
		src:  src,
		br:   bufio.NewReaderSize(src, 64*1024),
		size: size,
		dec:  NewSnappyDecompressor(),
	}

	var hdr [HeaderSize]byte
	n, err := io.ReadFull(r.br, hdr[:])
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrInvalidHeader
		}
		return nil, err
	}
	if !bytes.Equal(hdr[:8], Magic[:]) {
		return nil, ErrInvalidHeader
	}

	r.header = Header{
		FileInfoOffset:    int32(binary.LittleEndian.Uint32(hdr[8:12])),
		SpawnGroupsOffset: int32(binary.LittleEndian.Uint32(hdr[12:16])),
	}
	return r, nil
}

// Header возвращает заголовок файла
func (r *Reader) Header() Header { return r.header }

// Position текущее смещение в байтах
func (r *Reader) Position() int64 { return r.pos }

// Size полный размер источника в байтах
func (r *Reader) Size() int64 { return r.size }

// ReadByte реализует io.ByteReader для binary.ReadUvarint
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err == nil {
		r.pos++
	}
	return b, err
}

// Next читает следующий кадр. В конце потока возвращает io.EOF.
func (r *Reader) Next() (*Frame, error) {
	start := r.pos

	cmd, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) && r.pos == start {
			return nil, io.EOF
		}
		return nil, r.truncated(start, err)
	}
	tick, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, r.truncated(start, err)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, r.truncated(start, err)
	}

	if remaining := r.size - r.pos; int64(size) > remaining || size > 1<<31 {
		return nil, &TruncatedStreamError{Offset: start, Want: int64(size), Got: max(remaining, 0)}
	}

	payload := make([]byte, size)
	n, err := io.ReadFull(r.br, payload)
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TruncatedStreamError{Offset: start, Want: int64(size), Got: int64(n)}
		}
		return nil, err
	}

	f := &Frame{
		Kind:       Kind(cmd &^ compressedFlag),
		Compressed: cmd&compressedFlag != 0,
		Tick:       int32(uint32(tick)),
		Payload:    payload,
		Offset:     start,
	}
	if f.Compressed {
		f.Payload, err = r.dec.Decompress(payload)
		if err != nil {
			return nil, &DecompressionError{Offset: start, Err: err}
		}
	}
	return f, nil
}

func (r *Reader) truncated(start int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TruncatedStreamError{Offset: start, Want: 1, Got: 0}
	}
	return err
}

// FrameAt читает кадр по абсолютному смещению, не сбивая текущую позицию
func (r *Reader) FrameAt(offset int64) (*Frame, error) {
	if offset < HeaderSize || offset >= r.size {
		return nil, fmt.Errorf("смещение %d вне файла (размер %d)", offset, r.size)
	}

	saved := r.pos
	defer func() {
		if _, err := r.src.Seek(saved, io.SeekStart); err == nil {
			r.br.Reset(r.src)
		}
		r.pos = saved
	}()

	if _, err := r.src.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	r.br.Reset(r.src)
	r.pos = offset
	return r.Next()
}

// ReadFileInfo читает кадр DEM_FileInfo, на который указывает заголовок
func (r *Reader) ReadFileInfo() (*Frame, error) {
	f, err := r.FrameAt(int64(r.header.FileInfoOffset))
	if err != nil {
		return nil, err
	}
	if f.Kind != KindFileInfo {
		return nil, fmt.Errorf("по смещению %d ожидался %s, найден %s", r.header.FileInfoOffset, KindFileInfo, f.Kind)
	}
	return f, nil
}

// FrameInfo заголовок кадра без содержимого
type FrameInfo struct {
	Kind       Kind
	Compressed bool
	Tick       int32
	Offset     int64
	Size       int64
}

// Scan обходит заголовки всех кадров с начала потока, пропуская содержимое.
// Текущая позиция чтения не меняется. fn может вернуть false, чтобы прекратить обход.
func (r *Reader) Scan(fn func(FrameInfo) bool) (err error) {
	saved := r.pos
	defer func() {
		if serr := r.SetPosition(saved); serr != nil && err == nil {
			err = serr
		}
	}()

	if err := r.SetPosition(HeaderSize); err != nil {
		return err
	}
	for {
		start := r.pos
		cmd, err := binary.ReadUvarint(r)
		if err != nil {
			if errors.Is(err, io.EOF) && r.pos == start {
				return nil
			}
			return r.truncated(start, err)
		}
		tick, err := binary.ReadUvarint(r)
		if err != nil {
			return r.truncated(start, err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return r.truncated(start, err)
		}
		if remaining := r.size - r.pos; int64(size) > remaining {
			return &TruncatedStreamError{Offset: start, Want: int64(size), Got: max(remaining, 0)}
		}
		n, err := r.br.Discard(int(size))
		r.pos += int64(n)
		if err != nil {
			return &TruncatedStreamError{Offset: start, Want: int64(size), Got: int64(n)}
		}

		info := FrameInfo{
			Kind:       Kind(cmd &^ compressedFlag),
			Compressed: cmd&compressedFlag != 0,
			Tick:       int32(uint32(tick)),
			Offset:     start,
			Size:       int64(size),
		}
		if !fn(info) || info.Kind == KindStop {
			return nil
		}
	}
}

// SetPosition переставляет чтение на абсолютное смещение начала кадра
func (r *Reader) SetPosition(offset int64) error {
	if offset < HeaderSize || offset > r.size {
		return fmt.Errorf("смещение %d вне файла (размер %d)", offset, r.size)
	}
	if _, err := r.src.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.src)
	r.pos = offset
	return nil
}
