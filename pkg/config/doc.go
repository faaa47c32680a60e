// Package config loads declarative configuration structs from environment
// variables via caarlos0/env field tags, with optional .env bootstrap
// through godotenv for local development.
//
// Every backend package in this module (pgstore, mongostore, redisstore)
// declares a Config struct with `env` tags; this package turns them into
// populated values:
//
//	var cfg pgstore.Config
//	config.MustLoad(&cfg)
//
// There is no ambient registry or caching: Load parses the environment on
// every call, and the resulting value is passed explicitly to whatever
// needs it.
package config
