// Command admin runs one-off maintenance operations against the budget
// Firestore database.
//
//	admin reset-quota -uid <uid> -n 20
//	admin release-lease -uid <uid>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/GregMSThompson/budget-backend/internal/bootstrap"
	"github.com/GregMSThompson/budget-backend/internal/config"
	"github.com/GregMSThompson/budget-backend/internal/store"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <reset-quota|release-lease> -uid <uid> [-n quota]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	ctx := logger.ToContext(context.Background(), log)

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		log.Error("admin command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	uid := fs.String("uid", "", "user id")
	n := fs.Int("n", cfg.InitialChatQuota, "quota to restore (reset-quota)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" {
		return fmt.Errorf("-uid is required")
	}

	client, err := bootstrap.InitFirestore(ctx, cfg.ProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	log := logger.FromContext(ctx).With("uid", *uid)
	switch command {
	case "reset-quota":
		if err := store.NewUserStore(client).ResetQuota(ctx, *uid, *n); err != nil {
			return err
		}
		log.Info("quota reset", "quota", *n)
	case "release-lease":
		// The cipher is only needed for credential reads and writes.
		if err := store.NewLinkStore(client, nil).ForceReleaseLease(ctx, *uid); err != nil {
			return err
		}
		log.Info("lease released")
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
