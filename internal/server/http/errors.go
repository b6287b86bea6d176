package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/and161185/borga/internal/errs"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindExtSvcFailure:
		return http.StatusServiceUnavailable
	case errs.KindAlreadyExists:
		return http.StatusConflict
	case errs.KindMissingParam, errs.KindInvalidParam:
		return http.StatusBadRequest
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Cause *errs.Error `json:"cause"`
}

// respondError writes the error envelope and aborts the chain.
func respondError(c *gin.Context, err error) {
	e := errs.From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusOf(e.Kind), errorBody{Cause: e})
}

// bearerToken extracts the token from "Authorization: Bearer <t>". The scheme is case-insensitive
// and must be followed by whitespace.
func bearerToken(header string) string {
	h := strings.TrimSpace(header)
	if len(h) < 7 || !strings.EqualFold(h[:6], "bearer") || (h[6] != ' ' && h[6] != '\t') {
		return ""
	}
	return strings.TrimSpace(h[6:])
}
