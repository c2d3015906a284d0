package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/agent"
	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/pkg/matchdto"
)

const (
	codeUnauthorized = "unauthorized"
	codeInvalidName  = "invalid_name"
	codeNameTaken    = "name_taken"
	codeBadRequest   = "bad_request"
	codeInternal     = "internal"
)

var kindStatus = map[match.Kind]int{
	match.KindNotFound:           fiber.StatusNotFound,
	match.KindNotAParticipant:    fiber.StatusForbidden,
	match.KindInvalidPhase:       fiber.StatusConflict,
	match.KindAlreadySubmitted:   fiber.StatusConflict,
	match.KindConflict:           fiber.StatusConflict,
	match.KindInvalidInput:       fiber.StatusBadRequest,
	match.KindIntegrityViolation: fiber.StatusUnprocessableEntity,
	match.KindPhaseExpired:       fiber.StatusGone,
}

// classify maps err to an HTTP status, a stable code and the template data
// for its message.
func classify(err error) (int, string, map[string]any) {
	var me *match.Error
	switch {
	case errors.As(err, &me):
		status, ok := kindStatus[me.Kind]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return status, string(me.Kind), map[string]any{"Subject": "match", "Detail": me.Msg}
	case errors.Is(err, agent.ErrUnauthorized):
		return fiber.StatusUnauthorized, codeUnauthorized, nil
	case errors.Is(err, agent.ErrInvalidName):
		return fiber.StatusBadRequest, codeInvalidName, nil
	case errors.Is(err, agent.ErrNameTaken):
		return fiber.StatusConflict, codeNameTaken, nil
	case errors.Is(err, agent.ErrNotFound):
		return fiber.StatusNotFound, string(match.KindNotFound), map[string]any{"Subject": "agent"}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return fe.Code, string(match.KindNotFound), map[string]any{"Subject": "route"}
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			return fiber.StatusBadRequest, codeBadRequest, nil
		}
		return fe.Code, codeInternal, nil
	}
	return fiber.StatusInternalServerError, codeInternal, nil
}

func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	status, code, data := classify(err)
	body := matchdto.DomainError{
		Code:      code,
		Message:   s.msgs.Text("errors."+code, data, code),
		Retryable: code == string(match.KindConflict),
	}
	if status >= fiber.StatusInternalServerError {
		s.log.Error("http_handler_error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(body)
}
