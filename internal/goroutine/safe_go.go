package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/orderdesk-backend/internal/logger"
)

// SafeGo запускает горутину; panic логируется вместе со стеком и не роняет процесс.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

// Recover перехватывает panic в текущей горутине. Вызывать через defer.
func Recover(task string) {
	if r := recover(); r != nil {
		log().WithFields(logrus.Fields{
			"task":  task,
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("panic in task")
	}
}

func recoverPanic() {
	if r := recover(); r != nil {
		log().WithFields(logrus.Fields{
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("panic in goroutine")
	}
}

func log() *logrus.Logger {
	if logger.Log != nil {
		return logger.Log
	}
	return logrus.StandardLogger()
}
