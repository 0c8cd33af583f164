package version

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf)
	assert.Equal(t, "balancer version unknown\n", buf.String())

	buf.Reset()
	PrintFull(&buf)
	assert.Contains(t, buf.String(), "balancer - version unknown\n")
	assert.Contains(t, buf.String(), "  go version: \t"+runtime.Version()+"\n")
	assert.Equal(t, runtime.Version(), Version().GoVersion)
}
