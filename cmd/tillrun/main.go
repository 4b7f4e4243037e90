// tillrun - back-office client runtime for the till network.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/tillrun/internal/audit"
	"github.com/jeranaias/tillrun/internal/auth"
	"github.com/jeranaias/tillrun/internal/config"
	"github.com/jeranaias/tillrun/internal/runtime"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `tillrun - POS back-office client runtime

Usage:
  tillrun status                     Show session and outbox state
  tillrun login --id ID --name NAME [--role ROLE] [--token TOKEN]
                                     Install a session on this terminal
  tillrun logout                     End the session
  tillrun audit [pending|synced|failed|counts]
                                     Inspect the audit outbox
  tillrun audit prune --before DUR   Drop synced entries older than DUR
  tillrun sync                       Flush the outbox to the sink now
  tillrun prefs [show|theme V|shop-name V]
                                     Terminal preferences
  tillrun run                        Stay resident: monitor + syncer
  tillrun version                    Show version
  tillrun help                       Show this help

Configuration is read from ~/.tillrun/config.toml; TILLRUN_* environment
variables override it. With no sink URL configured the outbox only
accumulates locally.
`

func main() {
	cmd := "status"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	case "version", "-v", "--version":
		fmt.Printf("tillrun %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	rt, err := runtime.Open(cfg)
	if err != nil {
		fatal(err)
	}
	defer rt.Close()

	switch cmd {
	case "status":
		err = handleStatus(rt)
	case "login":
		err = handleLogin(rt, args)
	case "logout":
		rt.Logout()
		fmt.Println("Logged out.")
	case "audit":
		err = handleAudit(rt, args)
	case "sync":
		err = handleSync(rt, cfg)
	case "prefs":
		err = handlePrefs(rt, args)
	case "run":
		err = handleRun(rt)
	default:
		fmt.Fprintf(os.Stderr, "tillrun: unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "tillrun: %v\n", err)
	os.Exit(1)
}

// ===== STATUS =====

func handleStatus(rt *runtime.Runtime) error {
	if u, ok := rt.State.User(); ok {
		fmt.Printf("Session:   %s (%s)\n", u.Label(), u.Role)
		if deadline, ok := rt.State.Deadline(); ok {
			fmt.Printf("Token:     expires %s\n", deadline.Format(time.RFC3339))
		} else {
			fmt.Println("Token:     no expiry")
		}
		if last, ok := rt.Tracker.Read(); ok {
			fmt.Printf("Last seen: %s\n", last.Format(time.RFC3339))
		}
	} else {
		fmt.Println("Session:   none")
	}

	fmt.Printf("Shop:      %s (theme %s)\n", rt.Prefs.ShopName(), rt.Prefs.Theme())

	counts, err := rt.Audit.CountByStatus()
	if err != nil {
		return err
	}
	fmt.Printf("Outbox:    %d pending, %d synced, %d failed\n",
		counts[audit.StatusPending], counts[audit.StatusSynced], counts[audit.StatusFailed])
	return nil
}

// ===== SESSION =====

func handleLogin(rt *runtime.Runtime, args []string) error {
	opts := parseFlags(args)
	id, name := opts["id"], opts["name"]
	if id == "" || name == "" {
		return fmt.Errorf("login requires --id and --name")
	}

	role := opts["role"]
	if role == "" {
		role = auth.RoleCashier
	}
	switch role {
	case auth.RoleAdmin, auth.RoleManager, auth.RoleCashier:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	token := opts["token"]
	if token == "" {
		token = auth.OfflineToken
	}

	rt.Login(auth.User{
		ID:          id,
		Username:    id,
		DisplayName: name,
		Role:        role,
	}, token, "")
	fmt.Printf("Logged in as %s (%s).\n", name, role)
	return nil
}

// ===== AUDIT =====

func handleAudit(rt *runtime.Runtime, args []string) error {
	sub := "pending"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "pending", "synced", "failed":
		entries, err := rt.Audit.ListByStatus(audit.Status(sub))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("No %s entries.\n", sub)
			return nil
		}
		for _, e := range entries {
			fmt.Println(e.String())
		}
	case "counts":
		counts, err := rt.Audit.CountByStatus()
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\nsynced:  %d\nfailed:  %d\n",
			counts[audit.StatusPending], counts[audit.StatusSynced], counts[audit.StatusFailed])
	case "prune":
		opts := parseFlags(args[1:])
		dur, err := time.ParseDuration(opts["before"])
		if err != nil {
			return fmt.Errorf("prune requires --before DURATION: %w", err)
		}
		n, err := rt.Audit.Prune(time.Now().Add(-dur).UnixMilli())
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d synced entries.\n", n)
	default:
		return fmt.Errorf("unknown audit subcommand %q", sub)
	}
	return nil
}

func handleSync(rt *runtime.Runtime, cfg config.Config) error {
	if cfg.Audit.SinkURL == "" {
		return fmt.Errorf("no sink URL configured (set audit.sink_url or TILLRUN_SINK_URL)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stats, err := rt.SyncNow(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d, failed %d.\n", stats.Synced, stats.Failed)
	return nil
}

// ===== PREFS =====

func handlePrefs(rt *runtime.Runtime, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		fmt.Printf("theme:     %s\nshop-name: %s\n", rt.Prefs.Theme(), rt.Prefs.ShopName())
	case "theme":
		if len(args) < 2 {
			return fmt.Errorf("usage: tillrun prefs theme VALUE")
		}
		rt.Prefs.SetTheme(args[1])
		fmt.Printf("theme: %s\n", rt.Prefs.Theme())
	case "shop-name":
		if len(args) < 2 {
			return fmt.Errorf("usage: tillrun prefs shop-name VALUE")
		}
		rt.Prefs.SetShopName(strings.Join(args[1:], " "))
		fmt.Printf("shop-name: %s\n", rt.Prefs.ShopName())
	default:
		return fmt.Errorf("unknown prefs subcommand %q", sub)
	}
	return nil
}

// ===== RUN =====

// handleRun keeps the runtime resident so the session monitor and the
// audit syncer do their work. Intended to back a long-lived terminal
// process rather than the one-shot commands above.
func handleRun(rt *runtime.Runtime) error {
	rt.Start()
	fmt.Println("tillrun running; Ctrl-C to stop.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	fmt.Println("Shutting down.")
	return nil
}

// parseFlags reads --key value pairs. Unknown keys pass through so the
// handlers can reject them with context.
func parseFlags(args []string) map[string]string {
	opts := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "--") {
			continue
		}
		key := strings.TrimPrefix(args[i], "--")
		if i+1 < len(args) {
			opts[key] = args[i+1]
			i++
		}
	}
	return opts
}
