package classifier

import "time"

const (
	InputWidth         = 224
	InputHeight        = 224
	DefaultPoolSize    = 4
	AcquireTimeout     = 5 * time.Second
	HealthCheckPeriod  = 60 * time.Second
	DefaultInputName   = "input"
	DefaultOutputName  = "output"
	maxRecordedErrors  = 10
	libraryPathEnvName = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
)
