package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/bots/handlers"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

func handlersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List the registered bot action handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			reg := bots.NewRegistry()
			if err := handlers.Register(reg, messenger.New(messenger.Options{Config: cfg})); err != nil {
				return err
			}
			fmt.Print(formatHandlers(reg.All(), cfg.Limits.BotPayloadSize))
			return nil
		},
	}
}

func formatHandlers(all []bots.Settings, payloadLimit int) string {
	var b strings.Builder
	now := time.Now()
	maxCooldown := humanize.RelTime(now, now.Add(bots.MaxCooldown*time.Second), "", "")
	fmt.Fprintf(&b, "  Handlers:     %d\n", len(all))
	fmt.Fprintf(&b, "  Max cooldown: %s\n", strings.TrimSpace(maxCooldown))
	fmt.Fprintf(&b, "  Max payload:  %s\n\n", humanize.Bytes(uint64(payloadLimit)))

	for _, s := range all {
		fmt.Fprintf(&b, "  %-10s %s\n", s.Alias, s.Name)
		fmt.Fprintf(&b, "  %-10s %s\n", "", s.Description)
		var traits []string
		switch {
		case s.Triggerless:
			traits = append(traits, "triggerless")
		case len(s.Triggers) > 0:
			traits = append(traits, "triggers "+strings.Join(s.Triggers, "|"))
		}
		if s.Match != "" {
			traits = append(traits, "match "+s.Match)
		}
		if s.Unique {
			traits = append(traits, "unique")
		}
		if s.Authorize {
			traits = append(traits, "authorized")
		}
		if s.Queued {
			traits = append(traits, "queued")
		}
		if len(traits) > 0 {
			fmt.Fprintf(&b, "  %-10s [%s]\n", "", strings.Join(traits, ", "))
		}
	}
	return b.String()
}
