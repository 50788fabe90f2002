package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// maxColumnWidth fits a step checksum.
const maxColumnWidth = 60

// renderTable writes rows to w as a borderless, left-aligned table.
func renderTable(header []string, rows [][]string, w io.Writer) error {
	noLines := tw.Rendition{
		Borders: tw.BorderNone,
		Symbols: tw.NewSymbols(tw.StyleASCII),
		Settings: tw.Settings{
			Lines: tw.Lines{
				ShowHeaderLine: tw.Off,
				ShowFooterLine: tw.Off,
				ShowTop:        tw.Off,
				ShowBottom:     tw.Off,
			},
			Separators: tw.Separators{
				ShowHeader:     tw.Off,
				ShowFooter:     tw.Off,
				BetweenRows:    tw.Off,
				BetweenColumns: tw.Off,
			},
		},
	}
	left := tw.CellAlignment{Global: tw.AlignLeft}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(noLines)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{Alignment: left},
			Row: tw.CellConfig{
				Formatting:   tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:    left,
				ColMaxWidths: tw.CellWidth{Global: maxColumnWidth},
			},
		}),
	)

	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}
