package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfenderov/calscrape/internal/dedup"
	"github.com/mfenderov/calscrape/internal/ics"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.ics",
	Short: "Print the events of an iCalendar file",
	Long: `Parse an iCalendar file and print its events, flagging any that would
fail validation.

Examples:
  calscrape inspect events.ics
  calscrape inspect events.ics --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format: text or json")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	evs, err := ics.Parse(string(data))
	if err != nil {
		return err
	}

	valid, invalid := dedup.Validate(evs)

	if inspectFormat == "json" {
		output, err := json.MarshalIndent(evs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("%d events (%d valid)\n\n", len(evs), len(valid))
	for _, ev := range evs {
		fmt.Printf("%s\n", ev.Title)
		fmt.Printf("  When:  %s\n", formatWhen(ev.Start, ev.End, ev.Timezone))
		fmt.Printf("  Where: %s\n", ev.Location)
		if ev.RecurrenceRule != "" {
			fmt.Printf("  Repeats: %s\n", ev.RecurrenceRule)
		}
		if len(ev.Categories) > 0 {
			fmt.Printf("  Categories: %v\n", ev.Categories)
		}
		fmt.Printf("  UID:   %s\n", ev.UID)
	}

	for _, iv := range invalid {
		fmt.Printf("\nWarning: %s\n", iv.Warning())
	}

	return nil
}
