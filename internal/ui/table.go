package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/koaarchive/koa/internal/table"
)

// RenderTable draws tbl with the theme's table styles. At most maxRows rows
// are shown; maxRows <= 0 shows every row.
func RenderTable(tbl *table.Table, theme Theme, maxRows int) string {
	if tbl == nil || len(tbl.Columns) == 0 {
		return ""
	}
	styles := theme.Styles()

	rows := tbl.Rows
	truncated := 0
	if maxRows > 0 && len(rows) > maxRows {
		truncated = len(rows) - maxRows
		rows = rows[:maxRows]
	}

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.TableBorder).
		Headers(tbl.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return styles.TableHeader
			}
			return styles.TableCell
		})

	var b strings.Builder
	b.WriteString(t.Render())
	if truncated > 0 {
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(fmt.Sprintf("... %d more rows", truncated)))
	}
	return b.String()
}
