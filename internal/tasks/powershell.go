package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/patrickspencer/taskhist/internal/command"
)

// listScript emits one JSON object per registered task. Times are written as
// ISO-8601 so the output does not depend on the PowerShell version.
const listScript = `$ErrorActionPreference = 'Stop'
Get-ScheduledTask | ForEach-Object {
  $info = $_ | Get-ScheduledTaskInfo -ErrorAction SilentlyContinue
  [pscustomobject]@{
    Name               = $_.TaskName
    Path               = $_.TaskPath + $_.TaskName
    Author             = $_.Author
    State              = [int]$_.State
    Enabled            = [bool]$_.Settings.Enabled
    NumberOfMissedRuns = [int]$info.NumberOfMissedRuns
    LastTaskResult     = [int64]$info.LastTaskResult
    LastRunTime        = if ($info.LastRunTime) { $info.LastRunTime.ToUniversalTime().ToString("yyyy-MM-dd'T'HH:mm:ss'Z'") } else { $null }
    NextRunTime        = if ($info.NextRunTime) { $info.NextRunTime.ToUniversalTime().ToString("yyyy-MM-dd'T'HH:mm:ss'Z'") } else { $null }
  }
} | ConvertTo-Json -Depth 3 -Compress`

// PowerShellStore lists tasks through the ScheduledTasks PowerShell module.
type PowerShellStore struct {
	Binary  string
	Timeout time.Duration
}

func (s *PowerShellStore) Describe() string {
	return "powershell Get-ScheduledTask"
}

// ListTaskSnapshots implements Store.
func (s *PowerShellStore) ListTaskSnapshots(ctx context.Context) ([]TaskSnapshot, error) {
	bin := s.Binary
	if bin == "" {
		bin = "powershell.exe"
	}
	args := []string{"-NoProfile", "-NonInteractive", "-Command", listScript}
	out, err := command.Output(ctx, bin, args, &command.Options{Timeout: s.Timeout})
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	return decodeTaskList(out)
}

type psTask struct {
	Name               string  `json:"Name"`
	Path               string  `json:"Path"`
	Author             *string `json:"Author"`
	State              int     `json:"State"`
	Enabled            bool    `json:"Enabled"`
	NumberOfMissedRuns int     `json:"NumberOfMissedRuns"`
	LastTaskResult     int64   `json:"LastTaskResult"`
	LastRunTime        *string `json:"LastRunTime"`
	NextRunTime        *string `json:"NextRunTime"`
}

// decodeTaskList accepts the array ConvertTo-Json writes for several tasks,
// the bare object it writes for exactly one, and empty output for none.
func decodeTaskList(data []byte) ([]TaskSnapshot, error) {
	data = bytes.TrimSpace(data)
	// Windows PowerShell may prefix redirected output with a UTF-8 BOM.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(data) == 0 {
		return []TaskSnapshot{}, nil
	}

	var raw []psTask
	if data[0] == '{' {
		var one psTask
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		raw = []psTask{one}
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}

	snaps := make([]TaskSnapshot, 0, len(raw))
	for _, t := range raw {
		snap := TaskSnapshot{
			Name:               t.Name,
			Path:               t.Path,
			State:              State(t.State),
			NumberOfMissedRuns: t.NumberOfMissedRuns,
			Enabled:            t.Enabled,
			LastTaskResult:     t.LastTaskResult,
		}
		if t.Author != nil {
			snap.Author = *t.Author
		}
		var err error
		if snap.LastRunTime, err = parseOptionalTime(t.LastRunTime); err != nil {
			return nil, fmt.Errorf("task %s: last run time: %w", t.Path, err)
		}
		if snap.NextRunTime, err = parseOptionalTime(t.NextRunTime); err != nil {
			return nil, fmt.Errorf("task %s: next run time: %w", t.Path, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := dateparse.ParseStrict(*s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
