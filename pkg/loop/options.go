package loop

import "log/slog"

// Option configures a Service during construction.
type Option func(*Service)

// WithLogger sets the structured logger used for transition and hook
// logging. Nil loggers are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHook registers a hook at construction time.
func WithHook(hook Hook) Option {
	return func(s *Service) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// WithHooks registers multiple hooks at construction time, preserving
// order. Nil hooks are filtered out.
func WithHooks(hooks ...Hook) Option {
	return func(s *Service) {
		for _, hook := range hooks {
			if hook != nil {
				s.hooks = append(s.hooks, hook)
			}
		}
	}
}

// CreateOption sets optional fields on a record being created.
type CreateOption func(*Record)

// WithRepo sets the owning repository identifier (e.g. "org/repo").
func WithRepo(repo string) CreateOption {
	return func(r *Record) { r.Repo = repo }
}

// WithRefNumber sets the numeric external reference (issue number, etc.).
func WithRefNumber(n int) CreateOption {
	return func(r *Record) { r.RefNumber = n }
}

// WithAutoMerge marks the record for auto-merge once CI passes. The flag is
// advisory: the engine never acts on it, external automation reads it.
func WithAutoMerge(autoMerge bool) CreateOption {
	return func(r *Record) { r.AutoMerge = autoMerge }
}

// WithLabels sets user-defined labels on the record.
func WithLabels(labels map[string]string) CreateOption {
	return func(r *Record) { r.Labels = cloneStringMap(labels) }
}

// WithMetadata attaches caller-supplied context to the record. The engine
// treats it as opaque pass-through data.
func WithMetadata(metadata map[string]any) CreateOption {
	return func(r *Record) { r.Metadata = cloneAnyMap(metadata) }
}
