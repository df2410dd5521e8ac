package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"fswatcher/internal/config"
	"fswatcher/internal/mirror"
)

// SelfTestStep is the result of one self test check.
type SelfTestStep struct {
	Name    string
	Skipped bool
	Err     error
}

func (s SelfTestStep) String() string {
	switch {
	case s.Skipped:
		return fmt.Sprintf("%-8s skipped", s.Name)
	case s.Err != nil:
		return fmt.Sprintf("%-8s FAILED: %v", s.Name, s.Err)
	default:
		return fmt.Sprintf("%-8s ok", s.Name)
	}
}

// SelfTest checks that the configured credentials can write, read back, list
// and (if allow_delete is set) delete objects in the configured bucket.
func SelfTest(ctx context.Context, cfg *config.Config) ([]SelfTestStep, error) {
	if strings.Trim(cfg.Bucket, "/ ") == "" {
		return nil, config.ErrMissingBucket
	}
	bucket, err := mirror.ParseBucketSpec(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	slogger, _, err := newLogger("", "selftest", cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	factory, err := newSessionFactory(cfg, bucket, &slogAdapter{l: slogger})
	if err != nil {
		return nil, err
	}
	return RunSelfTest(ctx, factory, bucket, cfg.AllowDelete, mirror.UUIDGenerator{})
}

// RunSelfTest puts a probe object under the bucket prefix and checks it.
// It stops at the first failed step and returns that step's error.
func RunSelfTest(ctx context.Context, factory mirror.SessionFactory, bucket mirror.BucketSpec, allowDelete bool, ids mirror.IDGenerator) ([]SelfTestStep, error) {
	var steps []SelfTestStep
	check := func(name string, fn func() error) error {
		err := fn()
		steps = append(steps, SelfTestStep{Name: name, Err: err})
		return err
	}

	var store mirror.ObjectStore
	if err := check("connect", func() error {
		var err error
		store, err = factory(ctx)
		return err
	}); err != nil {
		return steps, err
	}

	key := bucket.Prefix + "fswatcher-selftest-" + ids.New() + ".txt"
	if err := check("put", func() error {
		return store.Put(ctx, key, strings.NewReader("fswatcher self test\n"), "")
	}); err != nil {
		return steps, err
	}

	if err := check("exists", func() error {
		ok, err := store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("probe object not found after upload")
		}
		return nil
	}); err != nil {
		return steps, err
	}

	if err := check("list", func() error {
		keys, err := store.List(ctx, bucket.Prefix)
		if err != nil {
			return err
		}
		if !slices.Contains(keys, key) {
			return errors.New("probe object missing from listing")
		}
		return nil
	}); err != nil {
		return steps, err
	}

	if !allowDelete {
		steps = append(steps, SelfTestStep{Name: "delete", Skipped: true})
		return steps, nil
	}
	if err := check("delete", func() error {
		return store.Delete(ctx, key)
	}); err != nil {
		return steps, err
	}
	return steps, nil
}
