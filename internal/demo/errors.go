package demo

import (
	"errors"
	"fmt"
)

// ErrInvalidHeader возвращается, если поток не начинается с сигнатуры демо-файла
var ErrInvalidHeader = errors.New("invalid demo header")

// TruncatedStreamError поток закончился раньше, чем объявленный размер кадра
type TruncatedStreamError struct {
	Offset int64 // смещение начала кадра
	Want   int64 // сколько байт ожидалось
	Got    int64 // сколько удалось прочитать
}

func (e *TruncatedStreamError) Error() string {
	return fmt.Sprintf("обрезанный поток на смещении %d: ожидалось %d байт, прочитано %d", e.Offset, e.Want, e.Got)
}

// DecompressionError повреждённые сжатые данные кадра
type DecompressionError struct {
	Offset int64
	Err    error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("ошибка распаковки кадра на смещении %d: %v", e.Offset, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }
