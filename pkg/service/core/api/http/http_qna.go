package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

var _ service.QnAAPI = &qnaAPI{}

type qnaAPI struct {
	*client
}

func (a *qnaAPI) Ask(ctx context.Context, req service.QuestionRequest) (*service.PlainAnswer, error) {
	const op errs.Op = "qnaAPI.Ask"

	answer := &service.PlainAnswer{}

	if err := a.request(ctx, http.MethodPost, "/api/v1/query", req, answer); err != nil {
		return nil, errs.E(op, err)
	}

	return answer, nil
}

func (a *qnaAPI) AskRich(ctx context.Context, req service.QuestionRequest) (*service.RichAnswer, error) {
	const op errs.Op = "qnaAPI.AskRich"

	answer := &service.RichAnswer{}

	if err := a.request(ctx, http.MethodPost, "/api/v1/qna", req, answer); err != nil {
		return nil, errs.E(op, err)
	}

	return answer, nil
}

func NewQnAAPI(apiURL string, timeout time.Duration, debug bool, log zerolog.Logger) *qnaAPI {
	return &qnaAPI{
		client: newClient(apiURL, timeout, debug, log),
	}
}
