package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/upgrade"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

func upgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Show schema upgrade status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgradeStatus()
		},
	}
}

func runUpgradeStatus() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("  App version:     %s (protocol %d)\n", Version, protocol.ProtocolVersion)

	if !cfg.IsManagedMode() {
		fmt.Printf("  Mode:            %s\n", cfg.Database.Mode)
		fmt.Println("  Status:          N/A (schema is applied on open)")
		return nil
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	fmt.Printf("  Schema current:  %d\n", s.CurrentVersion)
	fmt.Printf("  Schema required: %d\n", s.RequiredVersion)

	switch {
	case s.Dirty:
		fmt.Println("  Status:          DIRTY (failed migration)")
		fmt.Println()
		fmt.Print(upgrade.FormatError(s))
	case s.Compatible:
		fmt.Println("  Status:          UP TO DATE")
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Println("  Status:          BINARY TOO OLD")
	default:
		fmt.Printf("  Status:          UPGRADE NEEDED (%d -> %d)\n", s.CurrentVersion, s.RequiredVersion)
		fmt.Println()
		fmt.Println("  Run 'messenger migrate up' to apply pending changes.")
	}
	return nil
}
