package contracts

import (
	"errors"
	"fmt"
	"time"
)

// ⭐ SSOT: 엔진 오류 분류

// DataGapError means a required prior bar or factor point is missing
// 로컬 복구: 새로 시딩하거나 0으로 처리
type DataGapError struct {
	Key    string // instrument 또는 연속 선물 심볼
	Date   time.Time
	Reason string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap for %s on %s: %s", e.Key, FormatDate(e.Date), e.Reason)
}

// InconsistentFactorError means a ratio would divide by zero or be non-finite
// 로컬 복구: 해당 비율만 건너뜀 (무이벤트 처리)
type InconsistentFactorError struct {
	Instrument string
	Date       time.Time
	PrevClose  float64
	PreClose   float64
}

func (e *InconsistentFactorError) Error() string {
	return fmt.Sprintf("inconsistent factor for %s on %s: prev close %v, pre close %v",
		e.Instrument, FormatDate(e.Date), e.PrevClose, e.PreClose)
}

// StorageIOError wraps a failed or timed-out store operation
// 재시도 가능: 해당 종목은 이번 실행에서 실패로 보고
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// Retryable is always true; the next scheduled run retries
func (e *StorageIOError) Retryable() bool { return true }

// OutOfOrderDataError means a daily bar is older than the latest stored bar
type OutOfOrderDataError struct {
	Instrument string
	Date       time.Time
	LastStored time.Time
}

func (e *OutOfOrderDataError) Error() string {
	return fmt.Sprintf("out-of-order bar for %s: %s is before last stored %s",
		e.Instrument, FormatDate(e.Date), FormatDate(e.LastStored))
}

// IsRetryable reports whether err (or anything it wraps) can succeed on a later run
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// WrapStorage wraps err as a StorageIOError unless it already is one
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var sio *StorageIOError
	if errors.As(err, &sio) {
		return err
	}
	return &StorageIOError{Op: op, Err: err}
}
