// Package config loads the uiwarden orchestrator configuration from YAML.
//
// Components never read the environment themselves. The CLI calls ApplyEnv
// once with os.LookupEnv and passes the resulting struct down, so a bypass
// switch can only take effect through an explicit Config value.
package config
