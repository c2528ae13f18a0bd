package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage"
	"github.com/platinummonkey/workbench/pkg/users"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"user", fmt.Errorf("lookup: %w", users.ErrUserNotFound), http.StatusNotFound, "user not found"},
		{"project", projects.ErrProjectNotFound, http.StatusNotFound, projects.ErrProjectNotFound.Error()},
		{"document", assets.ErrDocumentNotFound, http.StatusNotFound, assets.ErrDocumentNotFound.Error()},
		{"blob", fmt.Errorf("open: %w", storage.ErrBlobNotFound), http.StatusNotFound, "file content not found"},
		{"email taken", users.ErrEmailTaken, http.StatusBadRequest, users.ErrEmailTaken.Error()},
		{"member exists", projects.ErrMemberExists, http.StatusConflict, projects.ErrMemberExists.Error()},
		{"forbidden", auth.NewError(auth.KindForbidden, "no access to this project"), http.StatusForbidden, "no access to this project"},
		{"invalid argument", auth.NewError(auth.KindInvalidArgument, "name is required"), http.StatusBadRequest, "name is required"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest("GET", "/", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, errorMessage(t, w))
		})
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(Config{RememberMeTTL: 1}, Dependencies{})
	assert.Equal(t, s.cfg.AccessTokenTTL, s.cfg.RememberMeTTL)
	assert.Equal(t, int64(50<<20), s.cfg.MaxUploadBytes)
	assert.NotNil(t, s.audit)
	assert.NotNil(t, s.Router())
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/nothing", 1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
