// Package config loads plystream CLI configuration from YAML files
// and PLYSTREAM_-prefixed environment variables, with precedence
// defaults < file < environment < flags.
package config
