package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/domain"
	"github.com/viagen-dev/viagen-sdk-sub000/internal/service"
)

func TestAPITokenKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Empty(t, APITokenKey(c))

	c.Set(principalKey, &service.Principal{User: domain.User{ID: "u-1"}})
	require.Empty(t, APITokenKey(c))

	c.Set(principalKey, &service.Principal{User: domain.User{ID: "u-1"}, APIToken: &domain.APIToken{ID: "digest"}})
	require.Equal(t, "token:digest", APITokenKey(c))
}
