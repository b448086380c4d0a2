package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgentCarriesVersion(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })

	assert.Equal(t, "pricefeed/1.2.3", UserAgent())
	assert.Regexp(t, `^pricefeed 1\.2\.3\n`, String())
}
