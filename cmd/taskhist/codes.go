package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/codes"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

type codeRow struct {
	Kind        string `json:"kind"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func newCodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "codes [levels|events|states] [code]",
		Short: "Print the level, event ID and task state descriptions",
		Example: `  taskhist codes
  taskhist codes events 101`,
		Args:      cobra.MaximumNArgs(2),
		ValidArgs: []string{"levels", "events", "states"},
		RunE: func(_ *cobra.Command, args []string) error {
			kind := ""
			if len(args) > 0 {
				kind = args[0]
			}
			rows, err := codeRows(kind)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("code must be an integer, got %q", args[1])
				}
				rows = filterCode(rows, n)
				if len(rows) == 0 {
					return fmt.Errorf("no description for %s code %d", kind, n)
				}
			}
			return a.render(rows, []string{"Kind", "Code", "Description"}, func() [][]string {
				out := make([][]string, 0, len(rows))
				for _, r := range rows {
					out = append(out, []string{r.Kind, itoa(r.Code), r.Description})
				}
				return out
			})
		},
	}
}

func codeRows(kind string) ([]codeRow, error) {
	var rows []codeRow
	all := kind == ""
	if all || kind == "levels" {
		for _, level := range codes.Levels() {
			text, _ := codes.LevelDescription(level)
			rows = append(rows, codeRow{Kind: "level", Code: level, Description: text})
		}
	}
	if all || kind == "events" {
		for _, id := range codes.EventIDs() {
			text, _ := codes.EventIDDescription(id)
			rows = append(rows, codeRow{Kind: "event", Code: id, Description: text})
		}
	}
	if all || kind == "states" {
		for _, state := range tasks.States {
			rows = append(rows, codeRow{Kind: "state", Code: int(state), Description: state.String()})
		}
	}
	if rows == nil {
		return nil, fmt.Errorf("unknown code kind %q (want levels, events or states)", kind)
	}
	return rows, nil
}

func filterCode(rows []codeRow, code int) []codeRow {
	var out []codeRow
	for _, r := range rows {
		if r.Code == code {
			out = append(out, r)
		}
	}
	return out
}
