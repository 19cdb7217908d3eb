package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PeerRow is one line of the peers table.
type PeerRow struct {
	Username string
	PeerID   string
	Status   string
}

// PeersTableView renders the presence list as a table.
func PeersTableView(title string, rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No one else is online")
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Title.Align = text.AlignCenter
	tw.Style().Format.Header = text.FormatUpper
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"#", "Username", "Peer ID", "Status"})
	for i, r := range rows {
		tw.AppendRow(table.Row{i + 1, r.Username, r.PeerID, r.Status})
	}
	tw.AppendFooter(table.Row{"", "", "Total", len(rows)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: 36},
		{Number: 4, Transformer: statusTransformer},
	})
	return tw.Render()
}

func statusTransformer(val any) string {
	s := fmt.Sprint(val)
	switch s {
	case "connected":
		return text.FgGreen.Sprint(s)
	case "connecting":
		return text.FgYellow.Sprint(s)
	case "failed":
		return text.FgRed.Sprint(s)
	default:
		return s
	}
}

func RenderPeersTable(title string, rows []PeerRow) {
	fmt.Println(PeersTableView(title, rows))
}
