package common

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{Success: false, Error: msg})
}

// AbortFail writes a failure envelope and stops the handler chain.
func AbortFail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: msg})
}

// FailErr maps err to a status through its Kind.
func FailErr(c *gin.Context, err error) {
	kind := KindOf(err)
	msg := "internal error"
	if e, ok := AsError(err); ok && kind != KindUnknown {
		msg = e.Msg
	}
	Fail(c, HTTPStatus(kind), msg)
}
