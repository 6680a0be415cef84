package service

import (
	"errors"
	"math/rand/v2"

	"kb-admin-go/internal/model"
)

// ErrSimulatedFailure 是模拟处理失败时写入文件任务项的错误。
var ErrSimulatedFailure = errors.New("檔案處理失敗：無法解析文件內容")

// FailurePolicy 在文件处理完成后判定该文件是否失败，返回非 nil 即失败。
type FailurePolicy func(item model.FileTaskItem) error

// RandomFailure 以 rate 的概率让文件失败。
func RandomFailure(rate float64) FailurePolicy {
	return func(model.FileTaskItem) error {
		if rand.Float64() < rate {
			return ErrSimulatedFailure
		}
		return nil
	}
}

func NeverFail() FailurePolicy {
	return func(model.FileTaskItem) error { return nil }
}

func AlwaysFail() FailurePolicy {
	return func(model.FileTaskItem) error { return ErrSimulatedFailure }
}
