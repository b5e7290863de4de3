package repository

import "errors"

var (
	// 保存データが無い
	ErrNotFound = errors.New("not found")

	// 保存データが壊れていて読めない
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
