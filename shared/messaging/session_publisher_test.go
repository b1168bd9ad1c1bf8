package messaging_test

import (
	"context"
	"testing"
	"venue-server/shared/messaging"
	"venue-server/shared/models"

	"github.com/stretchr/testify/assert"
)

func TestNopSessionPublisher(t *testing.T) {
	var p messaging.NopSessionPublisher
	assert.NoError(t, p.PublishSessionEvent(context.Background(), models.SessionEvent{}))
	assert.NoError(t, p.Close())
}
