package artifactstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanKey(t *testing.T) {
	k, err := CleanKey("sampleA/plots/./x.png")
	assert.NoError(t, err)
	assert.Equal(t, "sampleA/plots/x.png", k)

	k, err = CleanKey(`sampleA\go_results\x.xlsx`)
	assert.NoError(t, err)
	assert.Equal(t, "sampleA/go_results/x.xlsx", k)

	for _, bad := range []string{"", "  ", "/etc/passwd", "../up", "a/../../b"} {
		_, err := CleanKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, ContentTypeXLSX, ContentTypeFor("a/b.XLSX"))
	assert.Equal(t, ContentTypePNG, ContentTypeFor("a/b.png"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a/b"))
}
