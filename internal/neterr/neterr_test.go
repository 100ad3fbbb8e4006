package neterr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xaitan80/iopnet/internal/netstatus"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("fetch update: %w", New(BrokenServer, "handshake", io.ErrUnexpectedEOF))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, BrokenServer, kind)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, netstatus.BrokenServer, StatusOf(err))
}

func TestUnclassified(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, netstatus.IoError, StatusOf(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "connect: io error: refused", New(IoError, "connect", errors.New("refused")).Error())
	assert.Equal(t, "resolve: broken client", New(BrokenClient, "resolve", nil).Error())
}

func TestKindStatus(t *testing.T) {
	assert.Equal(t, netstatus.IoError, IoError.Status())
	assert.Equal(t, netstatus.BrokenClient, BrokenClient.Status())
}
