package service_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"dormdesign/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "validation", err: service.NewValidationError("'name' is required"), wantStatus: http.StatusBadRequest, wantMsg: "'name' is required"},
		{name: "room not found", err: fmt.Errorf("%w: abc", service.ErrRoomNotFound), wantStatus: http.StatusNotFound, wantMsg: "room not found: abc"},
		{name: "template not found", err: service.ErrTemplateNotFound, wantStatus: http.StatusNotFound, wantMsg: "template not found"},
		{name: "item not found", err: fmt.Errorf("%w: i1", service.ErrItemNotFound), wantStatus: http.StatusNotFound, wantMsg: "item not found: i1"},
		{name: "internal", err: service.ErrInternalServer, wantStatus: http.StatusInternalServerError, wantMsg: service.InternalErrorMessage},
		{name: "unknown", err: errors.New("dial tcp: connection refused"), wantStatus: http.StatusInternalServerError, wantMsg: service.InternalErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := service.Classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, tt.wantStatus < http.StatusInternalServerError, service.IsClientError(tt.err))
		})
	}
}
