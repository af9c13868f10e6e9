package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderError(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		explanation string
		want        string
	}{
		{
			name: "exact code match wins",
			code: "102",
			want: "The recipient alias is not registered for electronic documents.",
		},
		{
			name:        "exact code beats pattern",
			code:        "101",
			explanation: "recipient alias not registered",
			want:        "The document failed schema validation. Check the document content and resubmit.",
		},
		{
			name:        "pattern fallback on unknown code",
			code:        "737",
			explanation: "ERROR: document already exists for this account",
			want:        "A document with this id was already submitted to the provider.",
		},
		{
			name:        "pattern match is case-insensitive",
			code:        "999",
			explanation: "XSD check failed at line 4",
			want:        "The document failed schema validation. Check the document content and resubmit.",
		},
		{
			name:        "generic default when nothing matches",
			code:        "424",
			explanation: "unmapped condition",
			want:        GenericProviderError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapProviderError(tt.code, tt.explanation))
		})
	}
}
