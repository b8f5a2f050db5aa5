package mapper

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSlice(t *testing.T) {
	assert.Nil(t, MapSlice[int, string](nil, strconv.Itoa))
	assert.Equal(t, []string{}, MapSlice([]int{}, strconv.Itoa))
	assert.Equal(t, []string{"1", "2", "3"}, MapSlice([]int{1, 2, 3}, strconv.Itoa))
}

func TestMapSliceWithError(t *testing.T) {
	errOdd := errors.New("odd value")
	evenOnly := func(i int) (string, error) {
		if i%2 != 0 {
			return "", errOdd
		}
		return strconv.Itoa(i), nil
	}

	tests := []struct {
		name    string
		input   []int
		want    []string
		wantErr error
	}{
		{name: "nil input returns nil", input: nil, want: nil},
		{name: "empty slice returns empty slice", input: []int{}, want: []string{}},
		{name: "all values mapped", input: []int{2, 4}, want: []string{"2", "4"}},
		{name: "first failure aborts", input: []int{2, 3, 4}, wantErr: errOdd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapSliceWithError(tt.input, evenOnly)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
