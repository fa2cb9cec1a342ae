package glog

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelValid(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestSetLevelInvalid(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	log.SetLevel(log.InfoLevel)

	err := SetLevel("not-a-level")
	require.Error(t, err)
	assert.Equal(t, log.InfoLevel, log.GetLevel(), "an invalid level must not change the current one")
}

func TestForBufferTagsBufferID(t *testing.T) {
	entry := ForBuffer("doc-1")
	assert.Equal(t, "doc-1", entry.Data["buffer_id"])
}

func TestWithEpochTagsEpoch(t *testing.T) {
	entry := WithEpoch(ForBuffer("doc-1"), 7)
	assert.Equal(t, "doc-1", entry.Data["buffer_id"])
	assert.EqualValues(t, 7, entry.Data["epoch"])
}
