// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionUids(t *testing.T) {
	tests := []struct {
		name     string
		uids     []UID
		size     int
		expected [][]UID
	}{
		{"empty", []UID{}, 2, nil},
		{"exact", []UID{1, 2, 3, 4}, 2, [][]UID{{1, 2}, {3, 4}}},
		{"remainder", []UID{1, 2, 3, 4, 5}, 2, [][]UID{{1, 2}, {3, 4}, {5}}},
		{"single batch", []UID{1, 2}, 500, [][]UID{{1, 2}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PartitionUids(tc.uids, tc.size))
		})
	}
}
