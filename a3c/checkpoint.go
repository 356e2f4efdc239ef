package a3c

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/essentials"
)

const (
	checkpointPrefix = "agent-"
	checkpointExt    = ".ckpt"
)

// A Checkpointer periodically saves the global agent of a
// ParamServer into numbered files in a directory.
type Checkpointer struct {
	Dir    string
	Server ParamServer

	// Interval is the time between saves in Run.
	Interval time.Duration

	// Keep is the number of checkpoints to retain.
	// If it is 0, all checkpoints are kept.
	Keep int

	Log zerolog.Logger
}

// Run saves a checkpoint every Interval until ctx is
// done.
func (c *Checkpointer) Run(ctx context.Context) error {
	if c.Interval <= 0 {
		return fmt.Errorf("invalid checkpoint interval: %v", c.Interval)
	}
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Save(); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}

// Save writes a new checkpoint and prunes old ones.
func (c *Checkpointer) Save() (path string, err error) {
	defer essentials.AddCtxTo("save checkpoint", &err)
	agent, err := c.Server.LocalCopy()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return "", err
	}
	existing, err := Checkpoints(c.Dir)
	if err != nil {
		return "", err
	}
	next := 1
	if len(existing) > 0 {
		next = checkpointIndex(existing[len(existing)-1]) + 1
	}
	path = filepath.Join(c.Dir, fmt.Sprintf("%s%06d%s", checkpointPrefix, next,
		checkpointExt))
	if err := agent.Save(path); err != nil {
		return "", err
	}
	c.Log.Info().Str("path", path).Msg("saved checkpoint")

	existing = append(existing, path)
	if c.Keep > 0 && len(existing) > c.Keep {
		for _, old := range existing[:len(existing)-c.Keep] {
			if err := os.Remove(old); err != nil {
				return "", err
			}
		}
	}
	return path, nil
}

// Checkpoints lists the checkpoint files in a directory,
// oldest first.
//
// A missing directory has no checkpoints.
func Checkpoints(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var res []string
	for _, entry := range entries {
		if entry.IsDir() || checkpointIndex(entry.Name()) < 0 {
			continue
		}
		res = append(res, filepath.Join(dir, entry.Name()))
	}
	sort.Slice(res, func(i, j int) bool {
		return checkpointIndex(res[i]) < checkpointIndex(res[j])
	})
	return res, nil
}

// LatestCheckpoint returns the newest checkpoint in dir,
// or "" if there is none.
func LatestCheckpoint(dir string) (string, error) {
	paths, err := Checkpoints(dir)
	if err != nil || len(paths) == 0 {
		return "", err
	}
	return paths[len(paths)-1], nil
}

// checkpointIndex parses the number of a checkpoint file,
// returning -1 for other files.
func checkpointIndex(path string) int {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name,
		checkpointExt) {
		return -1
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), checkpointExt)
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 0 {
		return -1
	}
	return idx
}
