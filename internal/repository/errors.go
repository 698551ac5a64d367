package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageCorruption 文件中存在无法解析的行
	ErrStorageCorruption = errors.New("存储文件损坏")
	// ErrStorageWrite 写文件失败
	ErrStorageWrite = errors.New("写入存储文件失败")
)

func corruption(path string, line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s 第%d行: %s", ErrStorageCorruption, path, line, fmt.Sprintf(format, args...))
}

func writeFailure(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageWrite, path, err)
}
