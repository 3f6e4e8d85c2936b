package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ModelSelector picks the LLM used to answer a question.
type ModelSelector struct {
	Provider string
	Name     string
}

type QuestionRequest struct {
	Question      string `json:"question"`
	ModelProvider string `json:"model_provider"`
	ModelName     string `json:"model_name,omitempty"`
}

func (r QuestionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Required.Error("question is required")),
	)
}

// PlainAnswer is the response of the plain question endpoint.
type PlainAnswer struct {
	Question    string  `json:"question"`
	SQLQuery    *string `json:"sql_query"`
	QueryResult *string `json:"query_result"`
	Answer      *string `json:"answer"`
	Error       *string `json:"error"`
	Provider    string  `json:"provider"`
	Model       *string `json:"model"`
}

// RichAnswer is the response of the question endpoint that explains itself.
type RichAnswer struct {
	Question            string     `json:"question"`
	BusinessExplanation string     `json:"business_explanation"`
	EntityExplanation   string     `json:"entity_explanation"`
	SQLQuery            string     `json:"sql_query"`
	TableLayout         string     `json:"table_layout"`
	Data                ResultRows `json:"data"`
	Summary             string     `json:"summary"`
	Error               *string    `json:"error"`
}

type QnAAPI interface {
	Ask(ctx context.Context, req QuestionRequest) (*PlainAnswer, error)
	AskRich(ctx context.Context, req QuestionRequest) (*RichAnswer, error)
}

// Cell is a single key/value of a result row.
type Cell struct {
	Key   string
	Value any
}

// Row is a result object with its keys in the order they were received.
type Row []Cell

func (r Row) Get(key string) (any, bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}

	return nil, false
}

// ResultRows is a list of result objects that keeps key order, so the first
// row decides the column order of a rendered table.
type ResultRows []Row

func (rows *ResultRows) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok == nil {
		*rows = nil
		return nil
	}

	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("result rows: expected array, got %v", tok)
	}

	out := ResultRows{}

	for dec.More() {
		row, err := decodeRow(dec)
		if err != nil {
			return err
		}

		out = append(out, row)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*rows = out

	return nil
}

func decodeRow(dec *json.Decoder) (Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("result rows: expected object, got %v", tok)
	}

	row := Row{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("result rows: expected key, got %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}

		row = append(row, Cell{Key: key, Value: v})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return row, nil
}

func (rows ResultRows) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('[')

	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteByte('{')

		for j, c := range row {
			if j > 0 {
				buf.WriteByte(',')
			}

			k, err := json.Marshal(c.Key)
			if err != nil {
				return nil, err
			}

			v, err := json.Marshal(c.Value)
			if err != nil {
				return nil, err
			}

			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}

		buf.WriteByte('}')
	}

	buf.WriteByte(']')

	return buf.Bytes(), nil
}

// ResultTable is the tabular rendering of result rows.
type ResultTable struct {
	Header []string
	Rows   [][]string
}

// Table derives the columns from the keys of the first row. Empty or absent
// data gives nil: no table is rendered.
func (rows ResultRows) Table() *ResultTable {
	if len(rows) == 0 {
		return nil
	}

	header := make([]string, 0, len(rows[0]))
	for _, c := range rows[0] {
		header = append(header, c.Key)
	}

	t := &ResultTable{Header: header}

	for _, row := range rows {
		cells := make([]string, len(header))

		for i, key := range header {
			if v, ok := row.Get(key); ok {
				cells[i] = FormatValue(v)
			}
		}

		t.Rows = append(t.Rows, cells)
	}

	return t
}

// FormatValue renders a decoded JSON value as text.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DetailBundle is the structured explanation attached to an answer.
type DetailBundle struct {
	BusinessExplanation string     `json:"business_explanation,omitempty"`
	EntityExplanation   string     `json:"entity_explanation,omitempty"`
	GeneratedQuery      string     `json:"sql_query,omitempty"`
	TableLayout         string     `json:"table_layout,omitempty"`
	Rows                ResultRows `json:"data,omitempty"`
}

// ChatMessage is one entry in the chat log. Messages are never changed after
// they have been appended.
type ChatMessage struct {
	ID      string        `json:"id"`
	Role    Role          `json:"role"`
	Text    string        `json:"text"`
	Details *DetailBundle `json:"details,omitempty"`
	Error   bool          `json:"error"`
}
