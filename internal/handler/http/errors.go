package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dormdesign/internal/service"
)

// HandleServiceError 把服务层错误转换为 HTTP 响应
func HandleServiceError(c *gin.Context, err error) {
	status, message := service.Classify(err)
	if !service.IsClientError(err) {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled internal server error")
	}
	ErrorResponse(c, status, message)
}
