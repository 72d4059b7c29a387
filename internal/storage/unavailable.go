package storage

import (
	"context"
	"fmt"
)

// UnavailableKV stands in for a backend that could not be opened. Every read
// and write fails with the open error, so callers fall back to defaults on
// read and report failed saves.
type UnavailableKV struct {
	err error
}

func Unavailable(err error) *UnavailableKV {
	return &UnavailableKV{err: err}
}

func (u *UnavailableKV) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, u.failure()
}

func (u *UnavailableKV) Set(_ context.Context, _ string, _ []byte) error {
	return u.failure()
}

func (u *UnavailableKV) Delete(_ context.Context, _ string) error {
	return u.failure()
}

func (u *UnavailableKV) Close() error { return nil }

func (u *UnavailableKV) failure() error {
	return fmt.Errorf("settings storage unavailable: %w", u.err)
}
