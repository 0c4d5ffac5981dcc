package service

import "errors"

var (
	// ErrNotFound 表示 id 无效、记录不存在，或记录指向的文件已经丢失。
	ErrNotFound = errors.New("document not found")
	// ErrBusy 表示转换队列已满，本次上传已被回滚。
	ErrBusy = errors.New("conversion queue is full, try again later")
)

// ValidationError 表示上传内容未通过校验，Reason 可以直接展示给用户。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func newValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}
