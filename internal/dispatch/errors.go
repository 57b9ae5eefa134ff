package dispatch

import "errors"

var (
	// ErrTableFull は割り当てテーブルに空きがない
	ErrTableFull = errors.New("assignment table is full")
	// ErrInvalidArgument はリスナーまたは発生元が指定されていない
	ErrInvalidArgument = errors.New("invalid listener or source")
)
