package morphology

import (
	"errors"
	"testing"
)

func TestBuildTree(t *testing.T) {
	records := []Record[string]{
		{ID: 1, Parent: NoParent, Value: "soma"},
		{ID: 2, Parent: 1, Value: "trunk"},
		{ID: 3, Parent: 2, Value: "left"},
		{ID: 4, Parent: 2, Value: "right"},
		{ID: 5, Parent: 1, Value: "basal"},
	}

	tree, err := BuildTree(records)
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if tree.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tree.Len())
	}
	if tree.Root.ID != 1 || !tree.Root.IsRoot() {
		t.Errorf("Root = %d, want 1", tree.Root.ID)
	}

	var order []int
	for _, n := range tree.PreOrder() {
		order = append(order, n.ID)
	}
	want := []int{1, 2, 3, 4, 5}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("PreOrder() = %v, want %v", order, want)
		}
	}

	sub, err := tree.Subtree(2)
	if err != nil {
		t.Fatalf("Subtree() error = %v", err)
	}
	if len(sub) != 3 {
		t.Errorf("Subtree(2) has %d nodes, want 3", len(sub))
	}

	if _, err := tree.Subtree(42); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Subtree(42) error = %v, want ErrNodeNotFound", err)
	}
}

func TestBuildTreeErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []Record[int]
		want    error
	}{
		{
			name:    "empty",
			records: nil,
			want:    ErrNoRoot,
		},
		{
			name: "duplicate id",
			records: []Record[int]{
				{ID: 1, Parent: NoParent},
				{ID: 1, Parent: NoParent},
			},
			want: ErrDuplicateNode,
		},
		{
			name: "missing parent",
			records: []Record[int]{
				{ID: 1, Parent: NoParent},
				{ID: 2, Parent: 7},
			},
			want: ErrMissingParent,
		},
		{
			name: "two roots",
			records: []Record[int]{
				{ID: 1, Parent: NoParent},
				{ID: 2, Parent: NoParent},
			},
			want: ErrMultipleRoots,
		},
		{
			name: "pure cycle",
			records: []Record[int]{
				{ID: 1, Parent: 2},
				{ID: 2, Parent: 1},
			},
			want: ErrCycle,
		},
		{
			name: "cycle beside root",
			records: []Record[int]{
				{ID: 1, Parent: NoParent},
				{ID: 2, Parent: 3},
				{ID: 3, Parent: 2},
			},
			want: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTree(tt.records)
			if !errors.Is(err, tt.want) {
				t.Errorf("BuildTree() error = %v, want %v", err, tt.want)
			}
		})
	}
}
