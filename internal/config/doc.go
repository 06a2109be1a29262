// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. Every key can be
// overridden with a METIS_ prefixed variable, dots replaced by underscores.
package config
