package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
	"github.com/navikt/datatalk/pkg/service/core"
)

const usage = `Connection:
  kind sqlite|postgres      choose the kind of data source
  set <field> <value>       set file_path, host, port, database or table_name
  state                     show the connection form and test result
  test                      test the connection
  onboard                   onboard the tested data source
Tables:
  tables                    reload and list onboarded tables
  list                      list onboarded tables without reloading
  select <#|table_id>       select a table and load its metadata
  show                      show the metadata of the selected table
  describe <text>           set the table description
  column <name> <text>      set a column description
  save                      save the metadata of the selected table
  prompt <#|id> [text]      show or set the prompt used for a table
Chat:
  model [provider [name]]   show or switch the model answering questions
  ask <question>            ask a question about your data
  history                   show the conversation
  help                      show this help
  quit                      leave the shell
`

// Shell is a line based front end for the core services.
type Shell struct {
	services *core.Services
	model    service.ModelSelector
	in       *bufio.Scanner
	out      io.Writer
}

func NewShell(services *core.Services, model service.ModelSelector, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		services: services,
		model:    model,
		in:       bufio.NewScanner(in),
		out:      out,
	}
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) printErr(err error) {
	s.printf("Error: %s\n", errs.Msg(err))
}

// Run reads commands until the input ends, quit is entered or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.services.Registry.Load(ctx); err != nil {
		s.printErr(err)
	}

	for _, msg := range s.services.Chat.Messages() {
		_ = renderMessage(s.out, msg)
	}

	for {
		s.printf("> ")

		if !s.in.Scan() {
			s.printf("\n")
			return s.in.Err()
		}

		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}

		if line == "quit" || line == "exit" {
			return nil
		}

		s.Exec(ctx, line)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	var err error

	switch cmd {
	case "help":
		s.printf("%s", usage)
	case "kind":
		err = s.kind(rest)
	case "set":
		err = s.set(rest)
	case "state":
		s.state()
	case "test":
		err = s.test(ctx)
	case "onboard":
		err = s.onboard(ctx)
	case "tables":
		err = s.tables(ctx)
	case "list":
		err = renderTables(s.out, s.services.Registry.Records())
	case "select":
		err = s.selectTable(ctx, rest)
	case "show":
		err = s.show()
	case "describe":
		err = s.services.Metadata.SetDescription(rest)
	case "column":
		name, text, _ := strings.Cut(rest, " ")
		err = s.services.Metadata.SetColumnDescription(name, strings.TrimSpace(text))
	case "save":
		err = s.save(ctx)
	case "prompt":
		err = s.prompt(ctx, rest)
	case "model":
		err = s.setModel(rest)
	case "ask":
		err = s.ask(ctx, rest)
	case "history":
		for _, msg := range s.services.Chat.Messages() {
			_ = renderMessage(s.out, msg)
		}
	default:
		s.printf("Unknown command %q, type help for a list of commands.\n", cmd)
	}

	if err != nil {
		s.printErr(err)
	}
}

func (s *Shell) kind(arg string) error {
	kind, err := service.ParseKind(arg)
	if err != nil {
		return errs.E(errs.Validation, errs.Op("Shell.kind"), err)
	}

	s.services.Connection.SetKind(kind)

	return nil
}

func (s *Shell) set(arg string) error {
	field, value, _ := strings.Cut(arg, " ")

	switch field {
	case service.FieldFilePath, service.FieldHost, service.FieldPort, service.FieldDatabase, service.FieldTableName:
		s.services.Connection.SetField(field, strings.TrimSpace(value))
		return nil
	}

	return errs.E(errs.Validation, errs.Op("Shell.set"), errs.Parameter(field), fmt.Sprintf("unknown field %q", field))
}

func (s *Shell) state() {
	st := s.services.Connection.State()

	s.printf("Kind: %s\n", st.Form.Kind)

	for _, field := range []string{service.FieldFilePath, service.FieldHost, service.FieldPort, service.FieldDatabase, service.FieldTableName} {
		if v, ok := st.Form.Fields[field]; ok {
			s.printf("  %s: %s\n", field, v)
		}
	}

	s.printf("Status: %s\n", st.Phase)

	if st.Phase == core.PhaseFailed {
		s.printf("  %s\n", st.Message)
	}
}

func (s *Shell) test(ctx context.Context) error {
	st, err := s.services.Connection.Test(ctx)
	if err != nil {
		return err
	}

	if st.Phase == core.PhaseFailed {
		s.printf("Connection failed: %s\n", st.Message)
		return nil
	}

	s.printf("Connection successful.\n")

	return renderSchema(s.out, st.Snapshot)
}

func (s *Shell) onboard(ctx context.Context) error {
	rec, err := s.services.Onboarding.Submit(ctx)
	if err != nil {
		return err
	}

	s.printf("Onboarded %s (%s).\n", rec.Name, rec.TableID)

	return nil
}

func (s *Shell) tables(ctx context.Context) error {
	if err := s.services.Registry.Load(ctx); err != nil {
		return err
	}

	return renderTables(s.out, s.services.Registry.Records())
}

func (s *Shell) lookup(arg string) (service.TableRecord, error) {
	const op errs.Op = "Shell.lookup"

	records := s.services.Registry.Records()

	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(records) {
		return records[n-1], nil
	}

	if rec, ok := s.services.Registry.Record(arg); ok {
		return rec, nil
	}

	return service.TableRecord{}, errs.E(errs.NotExist, op, errs.Parameter("table_id"), fmt.Sprintf("no table %q", arg))
}

func (s *Shell) selectTable(ctx context.Context, arg string) error {
	rec, err := s.lookup(arg)
	if err != nil {
		return err
	}

	if err := s.services.Metadata.Select(ctx, rec); err != nil {
		return err
	}

	return s.show()
}

func (s *Shell) show() error {
	rec, ok := s.services.Metadata.Selected()
	if !ok {
		return errs.E(errs.Invalid, errs.Op("Shell.show"), "no table selected")
	}

	m := s.services.Metadata

	return renderMetadata(s.out, rec, m.Buffer(), m.Source(), m.Dirty())
}

func (s *Shell) save(ctx context.Context) error {
	if err := s.services.Metadata.Save(ctx); err != nil {
		return err
	}

	s.printf("Metadata saved.\n")

	return nil
}

func (s *Shell) ask(ctx context.Context, question string) error {
	msg, err := s.services.Chat.Send(ctx, question, s.model)
	if err != nil {
		return err
	}

	return renderMessage(s.out, *msg)
}

func (s *Shell) prompt(ctx context.Context, arg string) error {
	id, text, _ := strings.Cut(arg, " ")
	text = strings.TrimSpace(text)

	if id == "" {
		return errs.E(errs.Validation, errs.Op("Shell.prompt"), errs.Parameter("table_id"), "usage: prompt <#|table_id> [text]")
	}

	rec, err := s.lookup(id)
	if err != nil {
		return err
	}

	if text == "" {
		cfg, err := s.services.Prompts.Get(ctx, rec)
		if err != nil {
			return err
		}

		if cfg.Prompt == "" {
			s.printf("No prompt set for %s.\n", rec.Name)
			return nil
		}

		s.printf("Prompt for %s: %s\n", rec.Name, cfg.Prompt)

		return nil
	}

	if err := s.services.Prompts.Save(ctx, rec, text); err != nil {
		return err
	}

	s.printf("Prompt saved.\n")

	return nil
}

func (s *Shell) setModel(arg string) error {
	fields := strings.Fields(arg)

	switch len(fields) {
	case 0:
	case 1:
		s.model = service.ModelSelector{Provider: fields[0]}
	case 2:
		s.model = service.ModelSelector{Provider: fields[0], Name: fields[1]}
	default:
		return errs.E(errs.Validation, errs.Op("Shell.setModel"), "usage: model [provider [name]]")
	}

	name := s.model.Name
	if name == "" {
		name = "default"
	}

	s.printf("Model: %s (%s)\n", s.model.Provider, name)

	return nil
}
