package service

import "errors"

var (
	// ErrInvalidScope 计数作用域为空时返回
	ErrInvalidScope = errors.New("visit scope is required")
	// ErrInvalidThreadID 帖子 ID 为空时返回
	ErrInvalidThreadID = errors.New("thread id is required")
	// ErrThreadNotFound 帖子不存在
	ErrThreadNotFound = errors.New("thread not found")
	// ErrWriteConflict 事务提交时与并发写入冲突，可重试
	ErrWriteConflict = errors.New("write conflict")
	// ErrIndexUnavailable 排序查询所需的索引不存在或不可用
	ErrIndexUnavailable = errors.New("ranked index unavailable")
)
