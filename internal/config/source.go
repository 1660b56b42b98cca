package config

import (
	scfg "sluice/source/sqs"
)

// LoadSQSConfig delegates to the SQS source loader while centralizing
// loader entrypoints under internal/config.
func LoadSQSConfig(path string) (scfg.Config, error) {
	return scfg.LoadConfig(path)
}
