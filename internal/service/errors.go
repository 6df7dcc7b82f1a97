package service

import "errors"

var (
	ErrNoRecordKind = errors.New("at least one record kind is required")
	ErrTimeRange    = errors.New("invalid time range")
	ErrFetch        = errors.New("fetch failed")
	ErrLoad         = errors.New("load failed")
)
