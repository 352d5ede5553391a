package client

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuffer(t *testing.T) {
	tests := []struct {
		name string
		fn   func(b *Buffer)
		want []string
	}{
		{"set", func(b *Buffer) { b.Set(1, "B") }, []string{"a", "B", "c"}},
		{"set_grows", func(b *Buffer) { b.Set(4, "e") }, []string{"a", "b", "c", "", "e"}},
		{"replace", func(b *Buffer) { b.Replace(1, []string{"x", "y"}) }, []string{"a", "x", "y", "c"}},
		{"replace_last", func(b *Buffer) { b.Replace(2, []string{"z"}) }, []string{"a", "b", "z"}},
		{"replace_past_end", func(b *Buffer) { b.Replace(3, []string{"d", "e"}) }, []string{"a", "b", "c", "d", "e"}},
		{"resize_grows", func(b *Buffer) { b.Resize(4) }, []string{"a", "b", "c", ""}},
		{"resize_never_shrinks", func(b *Buffer) { b.Resize(1) }, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer([]string{"a", "b", "c"})
			tt.fn(b)
			if diff := cmp.Diff(tt.want, b.Rows()); diff != "" {
				t.Errorf("Rows() mismatch (-want +got):\n%s", diff)
			}
			if b.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", b.Len(), len(tt.want))
			}
		})
	}
	t.Run("copies", func(t *testing.T) {
		in := []string{"a"}
		b := NewBuffer(in)
		in[0] = "changed"
		out := b.Rows()
		out[0] = "changed"
		if got := b.Rows()[0]; got != "a" {
			t.Errorf("buffer aliased caller slice: %q", got)
		}
	})
}

func TestHeld(t *testing.T) {
	if diff := cmp.Diff([]int{1, 4}, held([]int{0, 2, 3}, 5)); diff != "" {
		t.Errorf("held() mismatch (-want +got):\n%s", diff)
	}
	if got := held([]int{0, 1}, 2); got != nil {
		t.Errorf("held() = %v, want nil", got)
	}
}
