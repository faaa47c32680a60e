// Package logger constructs log/slog loggers from environment-driven
// config with a small set of options: level, JSON or text encoding, call
// site reporting and static attributes.
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//
//	log := logger.New(cfg, logger.WithAttr(slog.String("service", "loopforge")))
//	svc := loop.MustNew(repo, loop.WithLogger(log))
package logger
