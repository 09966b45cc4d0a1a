package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/model"
)

// ok writes a success envelope.
func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, model.Envelope{Success: true, Message: message, Data: data})
}

// fail writes an error envelope.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, model.Envelope{Success: false, Error: msg})
}

// internal logs err and answers 500 with msg.  In development the error
// text travels in Message.
func internal(c echo.Context, dev bool, msg string, err error) error {
	c.Logger().Errorj(log.JSON{"error": err.Error(), "path": c.Path(), "request_id": c.Response().Header().Get(echo.HeaderXRequestID)})
	env := model.Envelope{Success: false, Error: msg}
	if dev {
		env.Message = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, env)
}

// HTTPErrorHandler renders framework errors (unknown route, wrong method,
// oversized body, panics caught by Recover) as envelopes.
func HTTPErrorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		env := model.Envelope{Success: false}
		status := http.StatusInternalServerError

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		switch status {
		case http.StatusNotFound:
			env.Error = "Rota não encontrada"
		case http.StatusMethodNotAllowed:
			env.Error = "Método não permitido"
		case http.StatusRequestEntityTooLarge:
			env.Error = "Requisição muito grande"
		case http.StatusInternalServerError:
			c.Logger().Errorf("unhandled error on %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
			env.Error = "Erro interno do servidor"
			if dev {
				env.Message = err.Error()
			}
		default:
			env.Error = http.StatusText(status)
			if he != nil {
				if m, ok := he.Message.(string); ok {
					env.Error = m
				}
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, env)
		}
		if err != nil {
			c.Logger().Error(err)
		}
	}
}
