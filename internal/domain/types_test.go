package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusMonitored, StatusActive},
		{StatusActive, StatusMonitored},
		{StatusMonitored, StatusArchived},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	denied := [][2]Status{
		{StatusActive, StatusArchived},
		{StatusArchived, StatusMonitored},
		{StatusArchived, StatusActive},
		{StatusMonitored, StatusMonitored},
		{StatusActive, StatusActive},
	}
	for _, edge := range denied {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusMonitored, StatusActive, StatusArchived} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("deleted").Valid())
	assert.False(t, Status("").Valid())
}

func TestErrIllegalTransition(t *testing.T) {
	err := error(&ErrIllegalTransition{From: StatusArchived, To: StatusActive})
	var ill *ErrIllegalTransition
	assert.True(t, errors.As(err, &ill))
	assert.Contains(t, err.Error(), string(StatusArchived))
	assert.Contains(t, err.Error(), string(StatusActive))
}
