package client

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/mdouchement/unionboard/pkg/structs"
	"github.com/oleiade/reflections"
	"github.com/olekukonko/tablewriter"
	"github.com/sanity-io/litter"
)

const (
	labelWidth = 60
	dateLayout = "2006-01-02 15:04"
)

// Fields tried, in order, to describe a record in one line.
var labelFields = []string{"Title", "Name", "Subject", "Email"}

type row struct {
	ID        string
	Label     string
	Category  string
	CreatedAt time.Time
	Record    any
}

func (a *App) renderRecords(collection string, rows []row) error {
	table := a.table()
	table.SetHeader([]string{"id", "label", "category", "created_at"})
	for _, r := range rows {
		table.Append([]string{r.ID, r.Label, r.Category, r.CreatedAt.In(a.location).Format(dateLayout)})
	}
	table.Render()

	fmt.Fprintf(a.out, "%d %s\n", len(rows), collection)

	if a.debug {
		for _, r := range rows {
			fmt.Fprintln(a.out, litter.Sdump(r.Record))
		}
	}
	return nil
}

func (a *App) renderRecord(item any) error {
	payload, err := toYAML(item)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, string(payload))

	if a.debug {
		fmt.Fprintln(a.out, litter.Sdump(item))
	}
	return nil
}

func (a *App) renderCalendar(slots []cms.Slot[content.Event]) error {
	table := a.table()
	table.SetHeader([]string{"start", "end", "title", "location", "type"})
	for _, s := range slots {
		table.Append([]string{
			s.Start.Format(dateLayout),
			s.End.Format(dateLayout),
			truncate(s.Item.Title),
			s.Item.Location,
			s.Item.Type,
		})
	}
	table.Render()

	fmt.Fprintf(a.out, "%d events\n", len(slots))
	return nil
}

func (a *App) table() *tablewriter.Table {
	table := tablewriter.NewWriter(a.out)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// clear moves the cursor home and clears the terminal.
func (a *App) clear() {
	fmt.Fprint(a.out, "\033[H\033[2J")
}

func label(item any) string {
	for _, field := range labelFields {
		if ok, _ := reflections.HasField(item, field); ok {
			return truncate(fmt.Sprint(structs.GetField(item, field)))
		}
	}
	return ""
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= labelWidth {
		return s
	}
	return string([]rune(s)[:labelWidth-1]) + "…"
}
