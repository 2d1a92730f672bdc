package logger

import "go.uber.org/zap"

var Log *zap.Logger

func Init() {
	Log = zap.Must(zap.NewProduction())
}

// InitDevelopment is for tests and local runs that want readable output.
func InitDevelopment() {
	Log = zap.Must(zap.NewDevelopment())
}

func Sugar() *zap.SugaredLogger {
	return Log.Sugar()
}
