package main

import (
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"go.uber.org/zap"
)

// startCPUProfile begins writing a CPU profile to path. The returned stop
// func is idempotent; when d is positive it also fires on its own after d.
func startCPUProfile(path string, d time.Duration, logger *zap.Logger) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("CPU profiling started", zap.String("path", path), zap.Duration("duration", d))
	var once sync.Once
	stop := func() {
		once.Do(func() {
			pprof.StopCPUProfile()
			_ = f.Close()
			logger.Info("CPU profile written", zap.String("path", path))
		})
	}
	if d > 0 {
		time.AfterFunc(d, stop)
	}
	return stop, nil
}
