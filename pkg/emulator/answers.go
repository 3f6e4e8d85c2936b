package emulator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

var _ service.QnAAPI = &Canned{}

// Canned answers questions from a fixed set of answers, keyed by the question
// text. Unknown questions get an answer carrying an error.
type Canned struct {
	mu    sync.Mutex
	plain map[string]service.PlainAnswer
	rich  map[string]service.RichAnswer
}

func NewCanned() *Canned {
	return &Canned{
		plain: map[string]service.PlainAnswer{},
		rich:  map[string]service.RichAnswer{},
	}
}

func questionKey(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func (c *Canned) SetPlain(question string, answer service.PlainAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.plain[questionKey(question)] = answer
}

func (c *Canned) SetRich(question string, answer service.RichAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rich[questionKey(question)] = answer
}

// CannedAnswer is one entry of an answers file. Data holds the result rows as
// a JSON array of objects.
type CannedAnswer struct {
	Question            string `yaml:"question"`
	Answer              string `yaml:"answer"`
	Summary             string `yaml:"summary"`
	SQLQuery            string `yaml:"sql_query"`
	BusinessExplanation string `yaml:"business_explanation"`
	EntityExplanation   string `yaml:"entity_explanation"`
	TableLayout         string `yaml:"table_layout"`
	Data                string `yaml:"data"`
}

// Load reads a yaml list of answers and serves each of them on both question
// endpoints.
func (c *Canned) Load(r io.Reader) error {
	const op errs.Op = "Canned.Load"

	var answers []CannedAnswer

	if err := yaml.NewDecoder(r).Decode(&answers); err != nil && err != io.EOF {
		return errs.E(errs.Invalid, op, err)
	}

	for i, a := range answers {
		if strings.TrimSpace(a.Question) == "" {
			return errs.E(errs.Invalid, op, errs.Parameter("question"), fmt.Sprintf("answer %d has no question", i+1))
		}

		var rows service.ResultRows
		if a.Data != "" {
			if err := rows.UnmarshalJSON([]byte(a.Data)); err != nil {
				return errs.E(errs.Invalid, op, errs.Parameter("data"), err)
			}
		}

		text := a.Answer
		if text == "" {
			text = a.Summary
		}

		summary := a.Summary
		if summary == "" {
			summary = a.Answer
		}

		plain := service.PlainAnswer{Answer: &text}
		if a.SQLQuery != "" {
			query := a.SQLQuery
			plain.SQLQuery = &query
		}

		if a.Data != "" {
			result := a.Data
			plain.QueryResult = &result
		}

		c.SetPlain(a.Question, plain)
		c.SetRich(a.Question, service.RichAnswer{
			BusinessExplanation: a.BusinessExplanation,
			EntityExplanation:   a.EntityExplanation,
			SQLQuery:            a.SQLQuery,
			TableLayout:         a.TableLayout,
			Data:                rows,
			Summary:             summary,
		})
	}

	return nil
}

func unanswered(question string) *string {
	msg := fmt.Sprintf("no answer available for %q", question)

	return &msg
}

func (c *Canned) Ask(_ context.Context, req service.QuestionRequest) (*service.PlainAnswer, error) {
	c.mu.Lock()
	answer, ok := c.plain[questionKey(req.Question)]
	c.mu.Unlock()

	if !ok {
		answer = service.PlainAnswer{Error: unanswered(req.Question)}
	}

	answer.Question = req.Question
	answer.Provider = req.ModelProvider

	if req.ModelName != "" {
		name := req.ModelName
		answer.Model = &name
	}

	return &answer, nil
}

func (c *Canned) AskRich(_ context.Context, req service.QuestionRequest) (*service.RichAnswer, error) {
	c.mu.Lock()
	answer, ok := c.rich[questionKey(req.Question)]
	c.mu.Unlock()

	if !ok {
		answer = service.RichAnswer{Error: unanswered(req.Question)}
	}

	answer.Question = req.Question

	return &answer, nil
}

func (e *Emulator) Answers() *Canned {
	c, _ := e.answerer.(*Canned)

	return c
}

func (e *Emulator) ask(ctx context.Context, _ *http.Request, in service.QuestionRequest) (*service.PlainAnswer, error) {
	const op errs.Op = "Emulator.ask"

	answer, err := e.answerer.Ask(ctx, in)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	return answer, nil
}

func (e *Emulator) askRich(ctx context.Context, _ *http.Request, in service.QuestionRequest) (*service.RichAnswer, error) {
	const op errs.Op = "Emulator.askRich"

	answer, err := e.answerer.AskRich(ctx, in)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	return answer, nil
}
