package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/panelcast/internal/frames"
)

func init() {
	rootCmd.AddCommand(framesCmd)

	framesCmd.Flags().BoolP("json", "j", false, "Print the normalized manifest as JSON")
}

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Print the normalized frames and tracks of a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := loadManifest()
		if err != nil {
			return err
		}

		fs, ts := frames.Normalize(raw, trackIDs())
		if lo.Must(cmd.Flags().GetBool("json")) {
			return printManifest(cmd.OutOrStdout(), fs, ts)
		}
		fmt.Fprintln(cmd.OutOrStdout(), frameTable(fs, ts))
		return nil
	},
}

// trackIDs numbers tracks t0, t1, ... so the table is stable between runs.
func trackIDs() func() string {
	n := 0
	return func() string {
		id := "t" + strconv.Itoa(n)
		n++
		return id
	}
}

func formatBound(d time.Duration) string {
	if d == frames.Unbounded {
		return "-"
	}
	return d.String()
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func frameTable(fs []frames.Frame, ts []frames.Track) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "TRACK", "BEGIN", "END", "URL").
		Rows(lo.Map(fs, func(f frames.Frame, i int) []string {
			return []string{
				strconv.Itoa(i),
				ts[f.Track].ID,
				formatBound(f.Begin),
				formatBound(f.End),
				ts[f.Track].URL,
			}
		})...)
}

func printManifest(w io.Writer, fs []frames.Frame, ts []frames.Track) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(lo.Map(fs, func(f frames.Frame, _ int) frames.Raw { return f.Raw(ts) }))
}
