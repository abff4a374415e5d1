package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
)

// ErrorHandler отвечает за ошибки, которые хэндлер положил в c.Errors, но не отправил клиенту.
// Внутренние ошибки маскируются, прикладные отдаются с их кодом.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		logger.WithComponent("http").WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("request error")

		statusCode := http.StatusInternalServerError
		body := gin.H{"error": "внутренняя ошибка сервера"}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			statusCode = appErr.HTTPStatus
			body = gin.H{"error": appErr.Message, "code": string(appErr.Code)}
		}

		c.JSON(statusCode, body)
	}
}
