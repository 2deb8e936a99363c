package search

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"simple", "red dress", []string{"red", "dress"}},
		{"mixed case", "Red SILK Dress", []string{"red", "silk", "dress"}},
		{"extra whitespace", "  red \t dress \n", []string{"red", "dress"}},
		{"empty", "", nil},
		{"whitespace only", "   \t\n ", nil},
		{"single term", "sneakers", []string{"sneakers"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
