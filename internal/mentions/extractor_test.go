package mentions

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single mention",
			text: "playing with @foobar today",
			want: []string{"foobar"},
		},
		{
			name: "duplicate collapses to one in first occurrence order",
			text: "with @foorunner and @foorunner again",
			want: []string{"foorunner"},
		},
		{
			name: "case folded",
			text: "shoutout to @FooBar and @fooBAR",
			want: []string{"foobar"},
		},
		{
			name: "multiple preserve order",
			text: "@zeta_one then @alpha_two then @zeta_one",
			want: []string{"zeta_one", "alpha_two"},
		},
		{
			name: "too short ignored",
			text: "ping @abc please",
			want: nil,
		},
		{
			name: "handle truncated at max length",
			text: "@abcdefghijklmnopqrstuvwxy_overflow",
			want: []string{"abcdefghijklmnopqrstuvwxy"},
		},
		{
			name: "punctuation terminates handle",
			text: "thanks @some_user! and (@other_user)",
			want: []string{"some_user", "other_user"},
		},
		{
			name: "no mentions",
			text: "just ranked grinding today",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		handle string
		want   bool
	}{
		{"foobar", true},
		{"a_b_1", true},
		{"abcd", true},
		{"abc", false},
		{"", false},
		{"has space", false},
		{"toolongtoolongtoolongtoolong", false},
		{"dash-ed", false},
	}

	for _, tt := range tests {
		if got := wellFormed(tt.handle); got != tt.want {
			t.Errorf("wellFormed(%q) = %v, want %v", tt.handle, got, tt.want)
		}
	}
}
