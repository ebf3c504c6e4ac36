package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger returns a no-op logger when disabled, a console logger when no file is given and a
// JSON file logger otherwise.
func BuildLogger(enabled bool, outputFilePath string) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}
	if outputFilePath != "" {
		return BuildProductionLogger(outputFilePath)
	}
	return BuildDevelopmentLogger()
}

func BuildDevelopmentLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build()
}

func BuildProductionLogger(outputFilePath string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{outputFilePath}
	return cfg.Build()
}
