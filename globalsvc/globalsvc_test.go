package globalsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGlobal(t *testing.T) {
	assert.True(t, IsGlobal("iam-role"))
	assert.True(t, IsGlobal("s3-bucket"))
	assert.True(t, IsGlobal("route53-hosted-zone"))

	assert.False(t, IsGlobal("ec2-instance"))
	assert.False(t, IsGlobal(""))
	assert.False(t, IsGlobal("made-up-type"))
}

func TestQueryRegion(t *testing.T) {
	assert.Equal(t, "us-east-1", QueryRegion())
}
