package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"bsid.es/despertador"
	"bsid.es/despertador/config"
	"bsid.es/despertador/mem"
)

// newGate builds the permission gate from the configured permission state.
func newGate(cfg *config.Config) *despertador.CapabilityGate {
	caps := mem.NewCapabilities()
	caps.Grant(cfg.Permissions.Granted...)
	caps.Grantable(cfg.Permissions.Grantable...)
	return &despertador.CapabilityGate{Provider: caps, Required: cfg.Capabilities}
}

// admit runs the permission gate for an alarm just saved. When the gate
// refuses, the save is undone: a new alarm is deleted and an existing one
// disabled, so nothing is stored that could not ring.
func admit(ctx context.Context, gate despertador.PermissionGate, store despertador.AlarmStore, a despertador.Alarm, created bool) error {
	if !a.Enabled {
		return nil
	}
	err := gate.EnsureReady(ctx)
	if err == nil {
		return nil
	}
	if despertador.ErrorCode(err) != despertador.ErrPermissionDenied {
		err = despertador.Errorf(despertador.ErrPermissionDenied, "%v", err)
	}

	var undo error
	if created {
		undo = store.Delete(ctx, a.ID)
	} else {
		undo = store.SetEnabled(ctx, a.ID, false)
	}
	if undo != nil {
		return errors.Join(err, fmt.Errorf("undo save of alarm %s: %w", a.ID, undo))
	}
	return err
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// signalDaemon asks the daemon recorded in path to reconcile. A missing
// pid file or an exited daemon is not an error: the next start reconciles
// anyway.
func signalDaemon(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("malformed pid file %s", path)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = p.Signal(syscall.SIGHUP)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// changed tells a running daemon that the alarm store was modified.
func changed(w io.Writer, cfg *config.Config) {
	if err := signalDaemon(cfg.PIDFile); err != nil {
		fmt.Fprintf(w, "Warning: daemon not notified: %v\n", err)
	}
}

// describe returns the message shown for a failed command. Application
// errors are shown by their description.
func describe(err error) string {
	if despertador.ErrorCode(err) == despertador.ErrInternal {
		return err.Error()
	}
	return despertador.ErrorDescription(err)
}
