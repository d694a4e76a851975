package cmd

import (
	"reflect"
	"testing"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "paragraphs",
			text: "first paragraph\n\nsecond paragraph",
			want: []string{"first paragraph", "second paragraph"},
		},
		{
			name: "blank paragraphs dropped",
			text: "a\n\n\n\n  \n\nb\n\n",
			want: []string{"a", "b"},
		},
		{
			name: "windows line endings",
			text: "a\r\n\r\nb",
			want: []string{"a", "b"},
		},
		{
			name: "single paragraph keeps inner newlines",
			text: "line one\nline two",
			want: []string{"line one\nline two"},
		},
		{
			name: "empty input",
			text: "   \n \n",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitChunks(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitChunks(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
