package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"microblog/internal/domain"
)

// Target is one social platform client.
type Target interface {
	Name() domain.Target
	Post(ctx context.Context, post *domain.Rendered) error
}

// Adapter fans a rendered post out to the requested platforms. Each platform is
// attempted on its own; a failure on one never stops the others. No retries here.
type Adapter struct {
	targets map[domain.Target]Target
	logger  *slog.Logger
}

func NewAdapter(logger *slog.Logger, targets ...Target) *Adapter {
	a := &Adapter{
		targets: make(map[domain.Target]Target, len(targets)),
		logger:  logger.With("component", "publisher"),
	}
	for _, t := range targets {
		a.targets[t.Name()] = t
	}
	return a
}

// Publish returns one outcome per requested target. An empty set is a no-op.
func (a *Adapter) Publish(ctx context.Context, post *domain.Rendered, targets domain.TargetSet) domain.Outcomes {
	outcomes := domain.Outcomes{}
	for _, name := range targets.List() {
		err := a.publishOne(ctx, name, post)
		if err != nil {
			a.logger.Warn("target publish failed", "error", &domain.TargetError{Target: name, Err: err})
			outcomes[name] = domain.Outcome{Success: false, Error: err.Error()}
			continue
		}
		a.logger.Info("published to target", "target", name)
		outcomes[name] = domain.Outcome{Success: true}
	}
	return outcomes
}

func (a *Adapter) publishOne(ctx context.Context, name domain.Target, post *domain.Rendered) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	target, ok := a.targets[name]
	if !ok {
		return fmt.Errorf("target not configured")
	}
	return target.Post(ctx, post)
}
