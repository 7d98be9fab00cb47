package config

type LogConfig struct {
	LogLevel   string `json:"logLevel,omitempty" yaml:"logLevel"`
	LogHandler string `json:"logHandler,omitempty" yaml:"logHandler"`
}

func NewLogConfig() *LogConfig {
	return &LogConfig{
		LogLevel:   "debug",
		LogHandler: "default",
	}
}
