package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTML_ExtractStripsMarkup(t *testing.T) {
	body := []byte(`<html><body><h1>Article 9</h1><p>Risk management system</p><script>evil()</script></body></html>`)

	text, err := NewHTML().Extract(body)
	require.NoError(t, err)
	require.Contains(t, text, "Article 9")
	require.Contains(t, text, "Risk management system")
	require.NotContains(t, text, "evil()")
	require.NotContains(t, text, "<")
}

func TestPDF_ExtractReturnsEmpty(t *testing.T) {
	text, err := NewPDF().Extract([]byte("%PDF-1.4 ..."))
	require.NoError(t, err)
	require.Equal(t, "", text)
}
