package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/matthewjhunter/consoom"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatText, FormatHuman:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

func (f *Formatter) encode(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OutputSyncReport prints the tally of a sync run.
func (f *Formatter) OutputSyncReport(report *consoom.SyncReport) error {
	switch f.format {
	case FormatJSON:
		return f.encode(report)
	case FormatText:
		fmt.Fprintf(f.out, "total=%d\n", report.Total)
		fmt.Fprintf(f.out, "success=%d\n", report.Success)
		fmt.Fprintf(f.out, "failed=%d\n", report.Failed)
		for _, a := range report.Accounts {
			fmt.Fprintf(f.out, "account=%s\tprovider=%s\tusername=%s\tentries=%d\tinserted=%d\tok=%t\n",
				a.AccountID, a.Provider, a.Username, a.Entries, a.Inserted, a.OK)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Synced %d of %d accounts", report.Success, report.Total)
		if report.Failed > 0 {
			fmt.Fprintf(f.out, " (%d failed)", report.Failed)
		}
		fmt.Fprintln(f.out)
		if len(report.Accounts) == 0 {
			return nil
		}
		rows := make([][]string, 0, len(report.Accounts))
		for _, a := range report.Accounts {
			status := "ok"
			if !a.OK {
				status = a.Error
			}
			rows = append(rows, []string{
				string(a.Provider), a.Username,
				strconv.Itoa(a.Entries), strconv.Itoa(a.Inserted), status,
			})
		}
		fmt.Fprintln(f.out, renderTable(
			[]string{"Provider", "Username", "Entries", "New", "Status"},
			rows, map[int]bool{2: true, 3: true}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputImportResult prints the outcome of a batch import.
func (f *Formatter) OutputImportResult(result *consoom.ImportResult) error {
	switch f.format {
	case FormatJSON:
		return f.encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "imported=%d\n", result.Imported)
		fmt.Fprintf(f.out, "inserted=%d\n", result.Inserted)
		fmt.Fprintf(f.out, "skipped=%d\n", result.Skipped)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Imported %d entries (%d new)\n", result.Imported, result.Inserted)
		if result.Skipped > 0 {
			fmt.Fprintf(f.out, "Skipped %d rows\n", result.Skipped)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputAccounts prints a user's linked accounts.
func (f *Formatter) OutputAccounts(accounts []consoom.LinkedAccount) error {
	switch f.format {
	case FormatJSON:
		return f.encode(accounts)
	case FormatText:
		for _, a := range accounts {
			fmt.Fprintf(f.out, "provider=%s\tusername=%s\tfeed=%s\tlast_synced=%s\n",
				a.Provider, a.Username, a.FeedURL, formatTime(a.LastSyncedAt))
		}
		return nil
	case FormatHuman:
		if len(accounts) == 0 {
			fmt.Fprintln(f.out, "No linked accounts")
			return nil
		}
		rows := make([][]string, 0, len(accounts))
		for _, a := range accounts {
			synced := "never"
			if a.LastSyncedAt != nil {
				synced = a.LastSyncedAt.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{string(a.Provider), a.Username, synced})
		}
		fmt.Fprintln(f.out, renderTable([]string{"Provider", "Username", "Last synced"}, rows, nil))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputMediaList prints consumption entries in the order given.
func (f *Formatter) OutputMediaList(entries []consoom.MediaEntry) error {
	switch f.format {
	case FormatJSON:
		return f.encode(entries)
	case FormatText:
		for _, e := range entries {
			fmt.Fprintf(f.out, "date=%s\ttype=%s\trating=%s\ttitle=%s\n",
				e.ConsumedAt.Format("2006-01-02"), e.MediaType, formatRating(e.Rating), e.Title)
		}
		return nil
	case FormatHuman:
		if len(entries) == 0 {
			fmt.Fprintln(f.out, "Nothing logged")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.ConsumedAt.Format("2006-01-02"), string(e.MediaType), e.Title, formatRating(e.Rating),
			})
		}
		fmt.Fprintln(f.out, renderTable([]string{"Date", "Type", "Title", "Rating"}, rows, map[int]bool{3: true}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputYearProgress prints goal progress for a year.
func (f *Formatter) OutputYearProgress(p *consoom.YearProgress) error {
	switch f.format {
	case FormatJSON:
		return f.encode(p)
	case FormatText:
		for _, g := range []consoom.GoalProgress{p.Movies, p.Books} {
			fmt.Fprintf(f.out, "year=%d\ttype=%s\tcurrent=%d\ttarget=%d\tpercent=%.0f\n",
				p.Year, g.MediaType, g.Current, g.Target, g.Percent)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%d progress\n", p.Year)
		rows := [][]string{
			progressRow("Movies", p.Movies),
			progressRow("Books", p.Books),
		}
		fmt.Fprintln(f.out, renderTable([]string{"Type", "Logged", "Goal", "Progress"}, rows,
			map[int]bool{1: true, 2: true, 3: true}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...any) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...any) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func progressRow(label string, g consoom.GoalProgress) []string {
	return []string{label, strconv.Itoa(g.Current), strconv.Itoa(g.Target), fmt.Sprintf("%.0f%%", g.Percent)}
}

// renderTable draws a rounded table; right holds zero-based column indexes
// to right-align.
func renderTable(headers []string, rows [][]string, right map[int]bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func formatRating(r *int) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d/10", *r)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
