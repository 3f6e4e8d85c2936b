package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/docker/cli/cli/command/formatter/tabwriter"

	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
)

const noColumnsHint = "No columns found. Try re-onboarding this table to sync schema."

func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}

func renderTables(out io.Writer, records []service.TableRecord) error {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No tables onboarded yet.")
		return nil
	}

	w := newTabWriter(out)
	_, _ = fmt.Fprintln(w, "#\tName\tDatabase\tType\tDescription\tTable ID")

	for i, rec := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, rec.Name, orDash(rec.DBName), rec.Type, orDash(rec.Description), rec.TableID)
	}

	return w.Flush()
}

func renderSchema(out io.Writer, snapshot *service.SchemaSnapshot) error {
	if snapshot == nil {
		return nil
	}

	w := newTabWriter(out)
	_, _ = fmt.Fprintln(w, "Table\tColumn\tType")

	for _, t := range snapshot.Tables {
		for _, c := range t.Columns {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.TableName, c.Name, c.Type)
		}
	}

	return w.Flush()
}

func renderMetadata(out io.Writer, rec service.TableRecord, meta service.TableMetadata, source core.MetadataSource, dirty bool) error {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", rec.Name, rec.TableID)
	_, _ = fmt.Fprintf(out, "Description: %s\n", orDash(meta.Description))

	if dirty {
		_, _ = fmt.Fprintln(out, "Unsaved changes.")
	}

	if len(meta.Columns) == 0 {
		_, _ = fmt.Fprintln(out, noColumnsHint)
		return nil
	}

	if source == core.SourceLive {
		_, _ = fmt.Fprintln(out, "Columns read from the live schema, save to keep them.")
	}

	w := newTabWriter(out)
	_, _ = fmt.Fprintln(w, "Column\tType\tDescription")

	for _, c := range meta.Columns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, orDash(c.Type), orDash(c.Description))
	}

	return w.Flush()
}

func renderResult(out io.Writer, table *service.ResultTable) error {
	if table == nil {
		return nil
	}

	w := newTabWriter(out)
	_, _ = fmt.Fprintln(w, strings.Join(table.Header, "\t"))

	for _, row := range table.Rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return w.Flush()
}

func renderMessage(out io.Writer, msg service.ChatMessage) error {
	prefix := "datatalk"
	if msg.Role == service.RoleUser {
		prefix = "you"
	}

	_, _ = fmt.Fprintf(out, "%s> %s\n", prefix, msg.Text)

	d := msg.Details
	if d == nil {
		return nil
	}

	if d.BusinessExplanation != "" {
		_, _ = fmt.Fprintf(out, "  Business: %s\n", d.BusinessExplanation)
	}

	if d.EntityExplanation != "" {
		_, _ = fmt.Fprintf(out, "  Entities: %s\n", d.EntityExplanation)
	}

	if d.GeneratedQuery != "" {
		_, _ = fmt.Fprintf(out, "  Query: %s\n", d.GeneratedQuery)
	}

	return renderResult(out, d.Rows.Table())
}
