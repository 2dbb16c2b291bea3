package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Backend is a storage medium addressed by root (a directory or a key
// prefix) and a slash-separated key below it.
type Backend interface {
	Name() string
	// CheckWritable checks that root accepts writes, creating it when the medium
	// supports that.
	CheckWritable(ctx context.Context, root string) error
	// Write stores data under key and fails if key already exists.
	Write(ctx context.Context, root, key string, data []byte) error
	Read(ctx context.Context, root, key string) ([]byte, error)
	Remove(ctx context.Context, root, key string) error
	List(ctx context.Context, root, prefix string) ([]string, error)
}

var (
	ErrObjectExists   = errors.New("artifact object already exists")
	ErrObjectNotFound = errors.New("artifact object not found")
)

type State string

const (
	StateReady    State = "ready"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
)

// Resolution is the outcome of choosing a root from an ordered candidate
// list. It is computed once and never retried.
type Resolution struct {
	State     State
	Root      string
	Primary   string
	Attempted []string
	Causes    []error
}

func Resolve(ctx context.Context, backend Backend, candidates []string, logger *slog.Logger) Resolution {
	if logger == nil {
		logger = slog.Default()
	}
	res := Resolution{State: StateFailed}
	for _, root := range candidates {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		if res.Primary == "" {
			res.Primary = root
		}
		res.Attempted = append(res.Attempted, root)
		err := backend.CheckWritable(ctx, root)
		if err != nil {
			res.Causes = append(res.Causes, fmt.Errorf("%s: %w", root, err))
			continue
		}
		res.Root = root
		if len(res.Attempted) == 1 {
			res.State = StateReady
			logger.Info("artifact storage ready", "backend", backend.Name(), "root", root)
		} else {
			res.State = StateDegraded
			logger.Warn("artifact storage degraded; primary root unusable, using fallback",
				"backend", backend.Name(),
				"primary", res.Primary,
				"fallback", root,
				"error", errors.Join(res.Causes...),
			)
		}
		return res
	}
	logger.Error("artifact storage unavailable",
		"backend", backend.Name(),
		"attempted", strings.Join(res.Attempted, ", "),
		"error", errors.Join(res.Causes...),
	)
	return res
}
